// Package view содержит чистые функции построения представлений коллекций:
// фильтрацию, сортировку, вычисление статусов и статистики.
package view

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// Spec описывает поля поиска и порядок сортировки коллекции.
type Spec[T any] struct {
	// Fields возвращает текстовые поля записи, по которым выполняется поиск.
	Fields func(T) []string
	// Compare задаёт порядок записей в представлении.
	Compare func(a, b T) int
}

// Apply фильтрует записи по запросу и сортирует результат. Исходный срез не изменяется.
func (s Spec[T]) Apply(records []T, query string) []T {
	return Sort(Filter(records, query, s.Fields), s.Compare)
}

// Filter возвращает записи, у которых хотя бы одно поле содержит query без учёта регистра.
// Пустой запрос возвращает копию всех записей.
func Filter[T any](records []T, query string, fields func(T) []string) []T {
	if query == "" {
		return slices.Clone(records)
	}

	fold := cases.Fold()
	needle := fold.String(query)

	return lo.Filter(records, func(rec T, _ int) bool {
		for _, f := range fields(rec) {
			if strings.Contains(fold.String(f), needle) {
				return true
			}
		}
		return false
	})
}

// Sort возвращает устойчиво отсортированную копию записей.
func Sort[T any](records []T, cmp func(a, b T) int) []T {
	out := slices.Clone(records)
	if out == nil {
		out = []T{}
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// compareDates сравнивает даты по возрастанию. Некорректные даты всегда идут последними.
func compareDates(a, b string) int {
	ta, okA := model.ParseDate(a)
	tb, okB := model.ParseDate(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return ta.Compare(tb)
}

// compareDatesDesc сравнивает даты по убыванию. Некорректные даты всегда идут последними.
func compareDatesDesc(a, b string) int {
	ta, okA := model.ParseDate(a)
	tb, okB := model.ParseDate(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	return tb.Compare(ta)
}

func sameMonth(date string, now time.Time) bool {
	d, ok := model.ParseDate(date)
	if !ok {
		return false
	}
	now = now.In(time.Local)
	return d.Year() == now.Year() && d.Month() == now.Month()
}
