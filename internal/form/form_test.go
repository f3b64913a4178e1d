package form

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/memstore"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/validation"
)

// stubWriter запоминает вызовы и возвращает заданную ошибку.
type stubWriter[T any] struct {
	err      error
	inserted []T
	updated  map[string]T
}

func (w *stubWriter[T]) Insert(_ context.Context, rec T) error {
	if w.err != nil {
		return w.err
	}
	w.inserted = append(w.inserted, rec)
	return nil
}

func (w *stubWriter[T]) Update(_ context.Context, id string, rec T) error {
	if w.err != nil {
		return w.err
	}
	if w.updated == nil {
		w.updated = make(map[string]T)
	}
	w.updated[id] = rec
	return nil
}

func TestSession_CreateSubmit(t *testing.T) {
	w := &stubWriter[model.Subscription]{}
	s := New[model.Subscription](w, zap.NewNop())
	assert.Equal(t, ModeClosed, s.Mode())

	s.Create(model.NewSubscription("2024-06-10"))
	assert.Equal(t, ModeCreating, s.Mode())

	draft, err := s.Draft()
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", draft.ActivationDate)
	assert.Equal(t, model.DefaultCategory, draft.Category)

	require.NoError(t, s.Update(func(d *model.Subscription) {
		d.Name = "Netflix"
		d.ExpirationDate = "2024-07-10"
	}))
	require.NoError(t, s.Submit(context.Background()))

	require.Len(t, w.inserted, 1)
	assert.Equal(t, "Netflix", w.inserted[0].Name)
	assert.Equal(t, ModeClosed, s.Mode())
}

func TestSession_ValidationKeepsSessionOpen(t *testing.T) {
	w := &stubWriter[model.Subscription]{}
	s := New[model.Subscription](w, zap.NewNop())
	s.Create(model.NewSubscription("2024-06-10"))

	err := s.Submit(context.Background())
	require.ErrorIs(t, err, validation.ErrInvalid)

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Fields[0].Field)

	assert.Empty(t, w.inserted)
	assert.Equal(t, ModeCreating, s.Mode())
}

func TestSession_GatewayErrorKeepsSessionOpen(t *testing.T) {
	w := &stubWriter[model.Product]{err: &gateway.Error{Op: "insert", Collection: model.CollectionProducts, Err: errors.New("permission denied")}}
	s := New[model.Product](w, zap.NewNop())
	s.Create(model.Product{Name: "Spotify", Supplier: "site"})

	err := s.Submit(context.Background())
	assert.EqualError(t, err, "insert products: permission denied")
	assert.Equal(t, ModeCreating, s.Mode())

	w.err = nil
	require.NoError(t, s.Submit(context.Background()))
	assert.Len(t, w.inserted, 1)
}

func TestSession_EditDoesNotAliasRecord(t *testing.T) {
	w := &stubWriter[model.Customer]{}
	s := New[model.Customer](w, zap.NewNop())

	cached := model.Customer{
		ID:        "c1",
		Name:      "Ali",
		Purchases: []model.Purchase{{ID: "p1", Date: "2024-01-01", Details: "old"}},
	}
	s.Edit(cached)
	assert.Equal(t, ModeEditing, s.Mode())
	assert.Equal(t, "c1", s.ID())

	require.NoError(t, UpdatePurchase(s, "p1", func(p *model.Purchase) { p.Details = "new" }))
	p, err := AddPurchase(s, "2024-06-10")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "2024-06-10", p.Date)
	assert.Empty(t, p.Details)

	assert.Equal(t, "old", cached.Purchases[0].Details)
	assert.Len(t, cached.Purchases, 1)

	require.NoError(t, s.Submit(context.Background()))
	saved := w.updated["c1"]
	require.Len(t, saved.Purchases, 2)
	assert.Equal(t, "new", saved.Purchases[0].Details)
}

func TestSession_PurchaseEditing(t *testing.T) {
	s := New[model.Customer](&stubWriter[model.Customer]{}, zap.NewNop())
	s.Create(model.NewCustomer())

	a, err := AddPurchase(s, "2024-01-01")
	require.NoError(t, err)
	b, err := AddPurchase(s, "2024-02-01")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, RemovePurchase(s, a.ID))
	assert.ErrorIs(t, RemovePurchase(s, a.ID), ErrPurchaseNotFound)
	assert.ErrorIs(t, UpdatePurchase(s, "missing", func(*model.Purchase) {}), ErrPurchaseNotFound)

	draft, err := s.Draft()
	require.NoError(t, err)
	require.Len(t, draft.Purchases, 1)
	assert.Equal(t, b.ID, draft.Purchases[0].ID)
}

func TestSession_Closed(t *testing.T) {
	s := New[model.SaleRecord](nil, zap.NewNop())

	_, err := s.Draft()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Update(func(*model.SaleRecord) {}), ErrClosed)
	assert.ErrorIs(t, s.Submit(context.Background()), ErrClosed)

	s.Create(model.NewSale("2024-06-10"))
	s.Close()
	assert.Equal(t, ModeClosed, s.Mode())
	_, err = AddPurchase(New[model.Customer](nil, zap.NewNop()), "2024-06-10")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_CreateIgnoresInitialID(t *testing.T) {
	ctx := context.Background()
	col := gateway.For[model.Transaction](memstore.New())
	s := New[model.Transaction](col, zap.NewNop())

	initial := model.NewTransaction(model.TransactionIncome, "2024-06-10")
	initial.ID = "stale"
	s.Create(initial)
	require.NoError(t, s.Update(func(tx *model.Transaction) {
		tx.Person = "Sara"
		tx.Description = "design"
		tx.Amount = 120
	}))
	require.NoError(t, s.Submit(ctx))

	records, err := col.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEqual(t, "stale", records[0].ID)
	assert.Equal(t, model.TransactionIncome, records[0].Type)
	assert.Equal(t, 120.0, records[0].Amount)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "editing", ModeEditing.String())
}
