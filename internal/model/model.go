// Package model содержит доменные сущности бэк-офиса магазина.
package model

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ludex-store/internal/validation"
)

// Collection - имя коллекции записей одного вида.
type Collection string

const (
	CollectionSubscriptions Collection = "subscriptions"
	CollectionTransactions  Collection = "transactions"
	CollectionCustomers     Collection = "customers"
	CollectionProducts      Collection = "products"
	CollectionSales         Collection = "sales"
)

// Collections перечисляет все коллекции в порядке вывода в дашборде.
var Collections = []Collection{
	CollectionSubscriptions,
	CollectionTransactions,
	CollectionCustomers,
	CollectionProducts,
	CollectionSales,
}

// Valid сообщает, является ли имя коллекции известным.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Entity - ограничение для типизированных сущностей коллекций.
// Методы объявлены на значении, поэтому их можно вызывать на нулевом T.
type Entity[T any] interface {
	Key() string
	WithKey(id string) T
	Clone() T
	Validate() error
	Collection() Collection
}

// DefaultCategory - категория подписки по умолчанию («общая»).
const DefaultCategory = "عام"

// Subscription описывает лицензию-подписку. Статус вычисляется, а не хранится.
type Subscription struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name"`
	ActivationDate string `json:"activationDate"`
	ExpirationDate string `json:"expirationDate"`
	Notes          string `json:"notes"`
	Category       string `json:"category"`
}

// NewSubscription возвращает черновик подписки со значениями по умолчанию.
func NewSubscription(today string) Subscription {
	return Subscription{ActivationDate: today, Category: DefaultCategory}
}

func (s Subscription) Key() string                    { return s.ID }
func (s Subscription) Clone() Subscription            { return s }
func (Subscription) Collection() Collection           { return CollectionSubscriptions }
func (s Subscription) WithKey(id string) Subscription { s.ID = id; return s }

// Validate проверяет обязательные поля подписки.
func (s Subscription) Validate() error {
	var b validation.Builder
	b.Required("name", s.Name)
	b.Date("activationDate", s.ActivationDate)
	b.Date("expirationDate", s.ExpirationDate)
	return b.Err()
}

// TransactionType описывает направление финансовой операции.
type TransactionType string

const (
	TransactionExpense TransactionType = "expense"
	TransactionIncome  TransactionType = "income"
)

// Valid сообщает, является ли тип операции известным.
func (t TransactionType) Valid() bool {
	return t == TransactionExpense || t == TransactionIncome
}

// Transaction описывает расход или поступление.
type Transaction struct {
	ID          string          `json:"id,omitempty"`
	Type        TransactionType `json:"type"`
	Person      string          `json:"person"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Date        string          `json:"date"`
}

// NewTransaction возвращает черновик операции указанного типа.
func NewTransaction(typ TransactionType, today string) Transaction {
	return Transaction{Type: typ, Date: today}
}

func (t Transaction) Key() string                   { return t.ID }
func (t Transaction) Clone() Transaction            { return t }
func (Transaction) Collection() Collection          { return CollectionTransactions }
func (t Transaction) WithKey(id string) Transaction { t.ID = id; return t }

// Validate проверяет обязательные поля операции.
func (t Transaction) Validate() error {
	var b validation.Builder
	if !t.Type.Valid() {
		b.Add("type", "must be expense or income")
	}
	b.Required("person", t.Person)
	b.Required("description", t.Description)
	b.NonNegative("amount", t.Amount)
	b.Date("date", t.Date)
	return b.Err()
}

// Purchase - элемент встроенной истории покупок клиента.
type Purchase struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Details string `json:"details"`
}

// Customer описывает клиента магазина со встроенной историей покупок.
type Customer struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Purchases []Purchase `json:"purchases"`
	Notes     string     `json:"notes"`
}

// NewCustomer возвращает пустой черновик клиента.
func NewCustomer() Customer {
	return Customer{Purchases: []Purchase{}}
}

func (c Customer) Key() string                { return c.ID }
func (Customer) Collection() Collection       { return CollectionCustomers }
func (c Customer) WithKey(id string) Customer { c.ID = id; return c }

// Clone возвращает глубокую копию клиента, не разделяющую список покупок.
func (c Customer) Clone() Customer {
	purchases := make([]Purchase, len(c.Purchases))
	copy(purchases, c.Purchases)
	c.Purchases = purchases
	return c
}

// Validate проверяет обязательные поля клиента и его покупок.
func (c Customer) Validate() error {
	var b validation.Builder
	b.Required("name", c.Name)
	for i, p := range c.Purchases {
		if p.ID == "" {
			b.Add(purchaseField(i, "id"), "required")
		}
		b.Date(purchaseField(i, "date"), p.Date)
		b.Required(purchaseField(i, "details"), p.Details)
	}
	return b.Err()
}

// AddPurchase добавляет в конец списка новую покупку с пустым описанием.
// До сохранения описание нужно заполнить.
func (c *Customer) AddPurchase(id, date string) Purchase {
	p := Purchase{ID: id, Date: date}
	c.Purchases = append(c.Purchases, p)
	return p
}

// UpdatePurchase изменяет покупку с указанным идентификатором.
// Возвращает false, если покупка не найдена.
func (c *Customer) UpdatePurchase(id string, fn func(p *Purchase)) bool {
	for i := range c.Purchases {
		if c.Purchases[i].ID == id {
			fn(&c.Purchases[i])
			c.Purchases[i].ID = id
			return true
		}
	}
	return false
}

// RemovePurchase удаляет покупку с указанным идентификатором.
func (c *Customer) RemovePurchase(id string) bool {
	for i := range c.Purchases {
		if c.Purchases[i].ID == id {
			c.Purchases = append(c.Purchases[:i:i], c.Purchases[i+1:]...)
			return true
		}
	}
	return false
}

func purchaseField(i int, name string) string {
	return "purchases[" + strconv.Itoa(i) + "]." + name
}

// Product описывает товар с закупочной и продажной ценой.
type Product struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	CostPrice    float64 `json:"costPrice"`
	SellingPrice float64 `json:"sellingPrice"`
	Supplier     string  `json:"supplier"`
	Notes        string  `json:"notes"`
}

// NewProduct возвращает пустой черновик товара.
func NewProduct() Product { return Product{} }

func (p Product) Key() string               { return p.ID }
func (p Product) Clone() Product            { return p }
func (Product) Collection() Collection      { return CollectionProducts }
func (p Product) WithKey(id string) Product { p.ID = id; return p }

// Profit возвращает прибыль с единицы товара без ошибок округления float64.
func (p Product) Profit() decimal.Decimal {
	return decimal.NewFromFloat(p.SellingPrice).Sub(decimal.NewFromFloat(p.CostPrice))
}

// Validate проверяет обязательные поля товара.
func (p Product) Validate() error {
	var b validation.Builder
	b.Required("name", p.Name)
	b.Required("supplier", p.Supplier)
	b.NonNegative("costPrice", p.CostPrice)
	b.NonNegative("sellingPrice", p.SellingPrice)
	return b.Err()
}

// SaleRecord - запись о продаже. Имена клиента и товара скопированы, а не связаны.
type SaleRecord struct {
	ID               string  `json:"id,omitempty"`
	CustomerName     string  `json:"customerName"`
	CustomerUsername string  `json:"customerUsername"`
	Date             string  `json:"date"`
	ProductName      string  `json:"productName"`
	Price            float64 `json:"price"`
	Notes            string  `json:"notes"`
}

// NewSale возвращает черновик продажи с сегодняшней датой.
func NewSale(today string) SaleRecord {
	return SaleRecord{Date: today}
}

func (s SaleRecord) Key() string                  { return s.ID }
func (s SaleRecord) Clone() SaleRecord            { return s }
func (SaleRecord) Collection() Collection         { return CollectionSales }
func (s SaleRecord) WithKey(id string) SaleRecord { s.ID = id; return s }

// Validate проверяет обязательные поля продажи.
func (s SaleRecord) Validate() error {
	var b validation.Builder
	b.Required("customerName", s.CustomerName)
	b.Required("productName", s.ProductName)
	b.Date("date", s.Date)
	b.NonNegative("price", s.Price)
	return b.Err()
}
