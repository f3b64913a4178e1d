package screen

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/form"
	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/livestore"
	"github.com/mmeshcher/ludex-store/internal/memstore"
	"github.com/mmeshcher/ludex-store/internal/model"
	"github.com/mmeshcher/ludex-store/internal/prefs"
)

func TestScreen_CreateEditDelete(t *testing.T) {
	ctx := context.Background()
	p := prefs.NewFile(filepath.Join(t.TempDir(), "prefs.yaml"))
	s := New[model.Customer](memstore.New(), p, zap.NewNop(), livestore.WithRetry(0, time.Millisecond))

	require.NoError(t, s.Open(ctx))
	defer s.Close()

	s.Form.Create(model.NewCustomer())
	require.NoError(t, s.Form.Update(func(c *model.Customer) { c.Name = "Ali" }))
	purchase, err := form.AddPurchase(s.Form, "2024-06-10")
	require.NoError(t, err)
	require.NoError(t, form.UpdatePurchase(s.Form, purchase.ID, func(p *model.Purchase) { p.Details = "netflix" }))
	require.NoError(t, s.Form.Submit(ctx))

	require.Eventually(t, func() bool { return len(s.Records()) == 1 }, time.Second, 5*time.Millisecond)
	id := s.Records()[0].ID

	require.NoError(t, s.Edit(id))
	require.NoError(t, s.Form.Update(func(c *model.Customer) { c.Notes = "vip" }))
	require.NoError(t, s.Form.Submit(ctx))

	require.Eventually(t, func() bool {
		c, ok := s.Find(id)
		return ok && c.Notes == "vip"
	}, time.Second, 5*time.Millisecond)
	c, _ := s.Find(id)
	assert.Len(t, c.Purchases, 1)

	deleted, err := s.Gate.Request(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, s.Records(), 1)

	require.NoError(t, s.Gate.Confirm(ctx, false))
	require.Eventually(t, func() bool { return len(s.Records()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestScreen_EditUnknownID(t *testing.T) {
	s := New[model.Product](memstore.New(), prefs.NewFile(filepath.Join(t.TempDir(), "p.yaml")), zap.NewNop())
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	assert.ErrorIs(t, s.Edit("missing"), gateway.ErrNotFound)
	assert.Equal(t, form.ModeClosed, s.Form.Mode())
}

func TestScreen_RecordsBeforeOpen(t *testing.T) {
	s := New[model.SaleRecord](memstore.New(), prefs.NewFile(filepath.Join(t.TempDir(), "p.yaml")), zap.NewNop())
	assert.Nil(t, s.Records())
	_, ok := s.Find("x")
	assert.False(t, ok)
}
