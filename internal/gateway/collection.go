package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// Collection - типизированное представление одной коллекции шлюза.
type Collection[T model.Entity[T]] struct {
	gw   Gateway
	name model.Collection
}

// For возвращает типизированную коллекцию для сущности T.
func For[T model.Entity[T]](gw Gateway) *Collection[T] {
	var zero T
	return &Collection[T]{gw: gw, name: zero.Collection()}
}

// Name возвращает имя коллекции.
func (c *Collection[T]) Name() model.Collection { return c.name }

// ListAll загружает полный снимок коллекции. Снимок либо разбирается целиком, либо не возвращается.
func (c *Collection[T]) ListAll(ctx context.Context) ([]T, error) {
	docs, err := c.gw.ListAll(ctx, c.name)
	if err != nil {
		return nil, Wrap("list", c.name, err)
	}

	records := make([]T, 0, len(docs))
	for i, doc := range docs {
		var rec T
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, Wrap("list", c.name, fmt.Errorf("decode record %d: %w", i, err))
		}
		records = append(records, rec)
	}
	return records, nil
}

// Insert сохраняет новую запись. Идентификатор записи rec игнорируется.
func (c *Collection[T]) Insert(ctx context.Context, rec T) error {
	doc, err := json.Marshal(rec.WithKey(""))
	if err != nil {
		return Wrap("insert", c.name, fmt.Errorf("encode record: %w", err))
	}
	return Wrap("insert", c.name, c.gw.Insert(ctx, c.name, doc))
}

// Update полностью заменяет запись с идентификатором id.
func (c *Collection[T]) Update(ctx context.Context, id string, rec T) error {
	doc, err := json.Marshal(rec.WithKey(""))
	if err != nil {
		return Wrap("update", c.name, fmt.Errorf("encode record: %w", err))
	}
	return Wrap("update", c.name, c.gw.Update(ctx, c.name, id, doc))
}

// Delete удаляет запись с идентификатором id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return Wrap("delete", c.name, c.gw.Delete(ctx, c.name, id))
}

// Subscribe подписывает onChange на изменения коллекции.
func (c *Collection[T]) Subscribe(ctx context.Context, onChange func(Change)) (Subscription, error) {
	sub, err := c.gw.Subscribe(ctx, c.name, onChange)
	if err != nil {
		return nil, Wrap("subscribe", c.name, err)
	}
	return sub, nil
}
