package view

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// ProductSpec ищет по названию и поставщику и сортирует по названию
// с учётом правил сравнения строк локали.
// Возвращаемый Spec нельзя использовать из нескольких горутин одновременно.
func ProductSpec(locale language.Tag) Spec[model.Product] {
	collator := collate.New(locale)
	return Spec[model.Product]{
		Fields: func(p model.Product) []string { return []string{p.Name, p.Supplier} },
		Compare: func(a, b model.Product) int {
			return collator.CompareString(a.Name, b.Name)
		},
	}
}

// ProductRow - товар с вычисленной прибылью.
type ProductRow struct {
	model.Product
	Profit decimal.Decimal `json:"profit"`
}

// Products строит отфильтрованный и отсортированный список товаров.
func Products(records []model.Product, query string, locale language.Tag) []ProductRow {
	return lo.Map(ProductSpec(locale).Apply(records, query), func(p model.Product, _ int) ProductRow {
		return ProductRow{Product: p, Profit: p.Profit()}
	})
}

// ProductStats - число товаров и суммарная прибыль с единицы каждого.
type ProductStats struct {
	Total           int             `json:"total"`
	PotentialProfit decimal.Decimal `json:"potentialProfit"`
}

// ProductSummary считает статистику товаров.
func ProductSummary(records []model.Product) ProductStats {
	return ProductStats{
		Total: len(records),
		PotentialProfit: lo.Reduce(records, func(acc decimal.Decimal, p model.Product, _ int) decimal.Decimal {
			return acc.Add(p.Profit())
		}, decimal.Zero),
	}
}

// SaleSpec ищет по клиенту, товару и заметкам и сортирует по дате, новые первыми.
var SaleSpec = Spec[model.SaleRecord]{
	Fields: func(s model.SaleRecord) []string {
		return []string{s.CustomerName, s.CustomerUsername, s.ProductName, s.Notes}
	},
	Compare: func(a, b model.SaleRecord) int {
		return compareDatesDesc(a.Date, b.Date)
	},
}

// Sales строит отфильтрованный и отсортированный список продаж.
func Sales(records []model.SaleRecord, query string) []model.SaleRecord {
	return SaleSpec.Apply(records, query)
}

// SalesStats - число продаж и выручка.
type SalesStats struct {
	Total   int             `json:"total"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SalesSummary считает статистику продаж.
func SalesSummary(records []model.SaleRecord) SalesStats {
	return SalesStats{
		Total: len(records),
		Revenue: lo.Reduce(records, func(acc decimal.Decimal, s model.SaleRecord, _ int) decimal.Decimal {
			return acc.Add(decimal.NewFromFloat(s.Price))
		}, decimal.Zero),
	}
}
