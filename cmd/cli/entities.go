package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/mmeshcher/ludex-store/internal/confirm"
	"github.com/mmeshcher/ludex-store/internal/form"
	"github.com/mmeshcher/ludex-store/internal/livestore"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/screen"
	"github.com/mmeshcher/ludex-store/internal/view"
)

// viewOptions - параметры представления, общие для команд.
type viewOptions struct {
	query string
	typ   model.TransactionType
}

// entityCommands - операции команд над одной коллекцией.
type entityCommands interface {
	// rows строит представление снимка для list и watch.
	rows(a *app, records any, o viewOptions) any
	stats(a *app, records any, o viewOptions) any
	open(ctx context.Context, a *app, opts ...livestore.Option) (entityScreen, error)
	add(ctx context.Context, a *app, doc string, o viewOptions) error
	edit(ctx context.Context, a *app, id, doc string) error
	gate(a *app) *confirm.Gate
}

// entityScreen - открытый экран коллекции без параметра типа.
type entityScreen interface {
	records() any
	stale() bool
	close()
}

// entity связывает типизированный экран коллекции с её представлением.
type entity[T model.Entity[T]] struct {
	draft   func(a *app, o viewOptions) T
	view    func(a *app, records []T, o viewOptions) any
	summary func(a *app, records []T, o viewOptions) any
}

type openScreen[T model.Entity[T]] struct {
	s *screen.Screen[T]
}

func (o openScreen[T]) records() any { return o.s.Records() }
func (o openScreen[T]) stale() bool  { return o.s.Store.Stale() }
func (o openScreen[T]) close()       { o.s.Close() }

func (e entity[T]) newScreen(a *app, opts ...livestore.Option) *screen.Screen[T] {
	return screen.New[T](a.gw, a.prefs, a.log, opts...)
}

func (e entity[T]) open(ctx context.Context, a *app, opts ...livestore.Option) (entityScreen, error) {
	s := e.newScreen(a, opts...)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return openScreen[T]{s: s}, nil
}

func (e entity[T]) rows(a *app, records any, o viewOptions) any {
	return e.view(a, records.([]T), o)
}

func (e entity[T]) stats(a *app, records any, o viewOptions) any {
	return e.summary(a, records.([]T), o)
}

func (e entity[T]) add(ctx context.Context, a *app, doc string, o viewOptions) error {
	s := e.newScreen(a)
	s.Form.Create(e.draft(a, o))
	if err := overlay(s.Form, doc); err != nil {
		return err
	}
	return s.Form.Submit(ctx)
}

func (e entity[T]) edit(ctx context.Context, a *app, id, doc string) error {
	s := e.newScreen(a)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()

	if err := s.Edit(id); err != nil {
		return err
	}
	if err := overlay(s.Form, doc); err != nil {
		return err
	}
	return s.Form.Submit(ctx)
}

func (e entity[T]) gate(a *app) *confirm.Gate {
	return e.newScreen(a).Gate
}

// overlay накладывает поля JSON-документа doc на черновик сессии.
func overlay[T model.Entity[T]](s *form.Session[T], doc string) error {
	if doc == "" {
		return nil
	}
	draft, err := s.Draft()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), &draft); err != nil {
		return fmt.Errorf("parse -json document: %w", err)
	}
	return s.Update(func(d *T) { *d = draft })
}

var entities = map[model.Collection]entityCommands{
	model.CollectionSubscriptions: entity[model.Subscription]{
		draft: func(a *app, _ viewOptions) model.Subscription { return model.NewSubscription(a.today()) },
		view: func(a *app, records []model.Subscription, o viewOptions) any {
			return view.Subscriptions(records, o.query, a.now())
		},
		summary: func(a *app, records []model.Subscription, _ viewOptions) any {
			return view.SubscriptionSummary(records, a.now())
		},
	},
	model.CollectionTransactions: entity[model.Transaction]{
		draft: func(a *app, o viewOptions) model.Transaction { return model.NewTransaction(o.typ, a.today()) },
		view: func(_ *app, records []model.Transaction, o viewOptions) any {
			return view.Transactions(records, o.typ, o.query)
		},
		summary: func(a *app, records []model.Transaction, o viewOptions) any {
			return view.TransactionSummary(records, o.typ, a.now())
		},
	},
	model.CollectionCustomers: entity[model.Customer]{
		draft: func(*app, viewOptions) model.Customer { return model.NewCustomer() },
		view: func(_ *app, records []model.Customer, o viewOptions) any {
			return view.Customers(records, o.query)
		},
		summary: func(_ *app, records []model.Customer, _ viewOptions) any {
			return view.CustomerSummary(records)
		},
	},
	model.CollectionProducts: entity[model.Product]{
		draft: func(*app, viewOptions) model.Product { return model.NewProduct() },
		view: func(a *app, records []model.Product, o viewOptions) any {
			return view.Products(records, o.query, a.locale)
		},
		summary: func(_ *app, records []model.Product, _ viewOptions) any {
			return view.ProductSummary(records)
		},
	},
	model.CollectionSales: entity[model.SaleRecord]{
		draft: func(a *app, _ viewOptions) model.SaleRecord { return model.NewSale(a.today()) },
		view: func(_ *app, records []model.SaleRecord, o viewOptions) any {
			return view.Sales(records, o.query)
		},
		summary: func(_ *app, records []model.SaleRecord, _ viewOptions) any {
			return view.SalesSummary(records)
		},
	},
}

// lookup возвращает команды коллекции name.
func lookup(name string) (model.Collection, entityCommands, error) {
	c := model.Collection(name)
	e, ok := entities[c]
	if !ok {
		names := lo.Map(lo.Keys(entities), func(c model.Collection, _ int) string { return string(c) })
		slices.Sort(names)
		return "", nil, fmt.Errorf("%w: unknown collection %q, expected one of %v", errUsage, name, names)
	}
	return c, e, nil
}
