package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ludex-store/internal/model"
)

func TestHub_PublishToCollectionSubscribers(t *testing.T) {
	h := NewHub()

	var products, sales []Change
	subP := h.Subscribe(model.CollectionProducts, func(ch Change) { products = append(products, ch) })
	h.Subscribe(model.CollectionSales, func(ch Change) { sales = append(sales, ch) })

	h.Publish(Change{Collection: model.CollectionProducts, Op: OpInsert, ID: "1"})
	require.Len(t, products, 1)
	assert.Empty(t, sales)

	subP.Unsubscribe()
	subP.Unsubscribe()
	h.Publish(Change{Collection: model.CollectionProducts, Op: OpDelete, ID: "1"})
	assert.Len(t, products, 1)
	assert.Equal(t, 0, h.Subscribers(model.CollectionProducts))
	assert.Equal(t, 1, h.Subscribers(model.CollectionSales))
}

func TestHub_PublishResync(t *testing.T) {
	h := NewHub()

	seen := map[model.Collection]string{}
	for _, c := range model.Collections {
		h.Subscribe(c, func(ch Change) { seen[ch.Collection] = ch.Op })
	}

	h.PublishResync()

	require.Len(t, seen, len(model.Collections))
	for _, op := range seen {
		assert.Equal(t, OpResync, op)
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("insert", model.CollectionSales, nil))

	err := Wrap("delete", model.CollectionSales, ErrNotFound)
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "delete sales: record not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	again := Wrap("other", model.CollectionProducts, err)
	assert.Same(t, err, again)
}
