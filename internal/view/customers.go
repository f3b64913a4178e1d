package view

import (
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// LastPurchase возвращает дату самой поздней покупки клиента.
// Покупки с некорректной датой не учитываются.
func LastPurchase(c model.Customer) (time.Time, bool) {
	var (
		last  time.Time
		found bool
	)
	for _, p := range c.Purchases {
		d, ok := model.ParseDate(p.Date)
		if !ok {
			continue
		}
		if !found || d.After(last) {
			last, found = d, true
		}
	}
	return last, found
}

// CustomerSpec ищет по имени, логину и заметкам и сортирует по последней покупке,
// новые первыми. Клиенты без покупок идут последними.
var CustomerSpec = Spec[model.Customer]{
	Fields: func(c model.Customer) []string { return []string{c.Name, c.Username, c.Notes} },
	Compare: func(a, b model.Customer) int {
		la, okA := LastPurchase(a)
		lb, okB := LastPurchase(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		return lb.Compare(la)
	},
}

// CustomerRow - клиент с датой последней покупки и покупками по убыванию даты.
type CustomerRow struct {
	model.Customer
	LastPurchase string `json:"lastPurchase,omitempty"`
}

// Customers строит отфильтрованный и отсортированный список клиентов.
func Customers(records []model.Customer, query string) []CustomerRow {
	return lo.Map(CustomerSpec.Apply(records, query), func(c model.Customer, _ int) CustomerRow {
		row := CustomerRow{Customer: c.Clone()}
		slices.SortStableFunc(row.Purchases, func(a, b model.Purchase) int {
			return compareDatesDesc(a.Date, b.Date)
		})
		if last, ok := LastPurchase(c); ok {
			row.LastPurchase = model.FormatDate(last)
		}
		return row
	})
}

// CustomerStats - число клиентов и общее число их покупок.
type CustomerStats struct {
	Total     int `json:"total"`
	Purchases int `json:"purchases"`
}

// CustomerSummary считает статистику клиентов.
func CustomerSummary(records []model.Customer) CustomerStats {
	return CustomerStats{
		Total:     len(records),
		Purchases: lo.SumBy(records, func(c model.Customer) int { return len(c.Purchases) }),
	}
}
