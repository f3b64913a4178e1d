package view

import (
	"time"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// Snapshots - снимки всех коллекций для построения дашборда.
type Snapshots struct {
	Subscriptions []model.Subscription
	Transactions  []model.Transaction
	Customers     []model.Customer
	Products      []model.Product
	Sales         []model.SaleRecord
}

// Dashboard - сводная статистика всех экранов.
type Dashboard struct {
	Date          string            `json:"date"`
	Subscriptions SubscriptionStats `json:"subscriptions"`
	Expenses      TransactionStats  `json:"expenses"`
	Income        TransactionStats  `json:"income"`
	Customers     CustomerStats     `json:"customers"`
	Products      ProductStats      `json:"products"`
	Sales         SalesStats        `json:"sales"`
}

// BuildDashboard считает статистику всех коллекций на момент now.
func BuildDashboard(s Snapshots, now time.Time) Dashboard {
	return Dashboard{
		Date:          model.FormatDate(now),
		Subscriptions: SubscriptionSummary(s.Subscriptions, now),
		Expenses:      TransactionSummary(s.Transactions, model.TransactionExpense, now),
		Income:        TransactionSummary(s.Transactions, model.TransactionIncome, now),
		Customers:     CustomerSummary(s.Customers),
		Products:      ProductSummary(s.Products),
		Sales:         SalesSummary(s.Sales),
	}
}
