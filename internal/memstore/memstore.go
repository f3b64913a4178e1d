// Package memstore содержит хранилище коллекций в памяти процесса.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/tidwall/gjson"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/model"
)

type collection struct {
	order []string
	docs  map[string]json.RawMessage
}

// Store реализует gateway.Gateway в памяти. Документы хранятся без поля id.
type Store struct {
	mu          sync.RWMutex
	collections map[model.Collection]*collection
	hub         *gateway.Hub
}

var _ gateway.Gateway = (*Store)(nil)

// New создаёт пустое хранилище со всеми известными коллекциями.
func New() *Store {
	s := &Store{
		collections: make(map[model.Collection]*collection, len(model.Collections)),
		hub:         gateway.NewHub(),
	}
	for _, c := range model.Collections {
		s.collections[c] = &collection{docs: make(map[string]json.RawMessage)}
	}
	return s
}

func (s *Store) get(c model.Collection) (*collection, error) {
	col, ok := s.collections[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnknownCollection, c)
	}
	return col, nil
}

// ListAll возвращает копии всех документов коллекции в порядке вставки.
func (s *Store) ListAll(_ context.Context, c model.Collection) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.get(c)
	if err != nil {
		return nil, err
	}

	out := make([]json.RawMessage, 0, len(col.order))
	for _, id := range col.order {
		doc, err := withID(col.docs[id], id)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Insert сохраняет документ, назначая идентификатор при его отсутствии.
// Повторная вставка того же документа с тем же идентификатором ничего не меняет,
// другой документ с занятым идентификатором отклоняется с gateway.ErrConflict.
func (s *Store) Insert(_ context.Context, c model.Collection, doc json.RawMessage) error {
	id := gjson.GetBytes(doc, "id").String()
	if id == "" {
		v, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		id = v.String()
	}

	stripped, err := withoutID(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	col, err := s.get(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if existing, exists := col.docs[id]; exists {
		s.mu.Unlock()
		if !sameDocument(existing, stripped) {
			return fmt.Errorf("%w: %s", gateway.ErrConflict, id)
		}
		return nil
	}
	col.docs[id] = stripped
	col.order = append(col.order, id)
	s.mu.Unlock()

	s.hub.Publish(gateway.Change{Collection: c, Op: gateway.OpInsert, ID: id})
	return nil
}

// Update заменяет документ записи id.
func (s *Store) Update(_ context.Context, c model.Collection, id string, doc json.RawMessage) error {
	stripped, err := withoutID(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	col, err := s.get(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, exists := col.docs[id]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
	}
	col.docs[id] = stripped
	s.mu.Unlock()

	s.hub.Publish(gateway.Change{Collection: c, Op: gateway.OpUpdate, ID: id})
	return nil
}

// Delete удаляет запись id.
func (s *Store) Delete(_ context.Context, c model.Collection, id string) error {
	s.mu.Lock()
	col, err := s.get(c)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, exists := col.docs[id]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", gateway.ErrNotFound, id)
	}
	delete(col.docs, id)
	for i, v := range col.order {
		if v == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.hub.Publish(gateway.Change{Collection: c, Op: gateway.OpDelete, ID: id})
	return nil
}

// Subscribe регистрирует обработчик изменений коллекции.
func (s *Store) Subscribe(_ context.Context, c model.Collection, onChange func(gateway.Change)) (gateway.Subscription, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnknownCollection, c)
	}
	return s.hub.Subscribe(c, onChange), nil
}

func withoutID(doc json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	delete(fields, "id")
	return json.Marshal(fields)
}

func withID(doc json.RawMessage, id string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	fields["id"] = raw
	return json.Marshal(fields)
}

// sameDocument сравнивает документы по значению, без учёта порядка полей.
func sameDocument(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
