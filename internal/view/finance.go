package view

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// TransactionSpec ищет по исполнителю и описанию и сортирует по дате, новые первыми.
var TransactionSpec = Spec[model.Transaction]{
	Fields: func(t model.Transaction) []string { return []string{t.Person, t.Description} },
	Compare: func(a, b model.Transaction) int {
		return compareDatesDesc(a.Date, b.Date)
	},
}

// Transactions возвращает операции типа typ, отфильтрованные по запросу.
func Transactions(records []model.Transaction, typ model.TransactionType, query string) []model.Transaction {
	return TransactionSpec.Apply(ofType(records, typ), query)
}

// TransactionStats - суммы операций одного типа.
type TransactionStats struct {
	Type              model.TransactionType `json:"type"`
	Count             int                   `json:"count"`
	CurrentMonthTotal decimal.Decimal       `json:"currentMonthTotal"`
	AllTimeTotal      decimal.Decimal       `json:"allTimeTotal"`
}

// TransactionSummary считает суммы операций типа typ за текущий месяц now и за всё время.
func TransactionSummary(records []model.Transaction, typ model.TransactionType, now time.Time) TransactionStats {
	selected := ofType(records, typ)

	stats := TransactionStats{
		Type:              typ,
		Count:             len(selected),
		CurrentMonthTotal: decimal.Zero,
		AllTimeTotal:      decimal.Zero,
	}
	for _, t := range selected {
		amount := decimal.NewFromFloat(t.Amount)
		stats.AllTimeTotal = stats.AllTimeTotal.Add(amount)
		if sameMonth(t.Date, now) {
			stats.CurrentMonthTotal = stats.CurrentMonthTotal.Add(amount)
		}
	}
	return stats
}

func ofType(records []model.Transaction, typ model.TransactionType) []model.Transaction {
	return lo.Filter(records, func(t model.Transaction, _ int) bool { return t.Type == typ })
}
