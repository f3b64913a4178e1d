package gateway

import (
	"sync"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// Hub рассылает уведомления подписчикам коллекций.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[model.Collection]map[uint64]func(Change)
}

// NewHub создаёт пустой Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[model.Collection]map[uint64]func(Change))}
}

// Subscribe регистрирует обработчик изменений коллекции c.
func (h *Hub) Subscribe(c model.Collection, fn func(Change)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.subs[c] == nil {
		h.subs[c] = make(map[uint64]func(Change))
	}
	h.subs[c][id] = fn

	return &hubSubscription{hub: h, collection: c, id: id}
}

// Publish вызывает обработчики подписчиков коллекции изменения.
// Обработчики вызываются вне блокировки и не должны блокироваться надолго.
func (h *Hub) Publish(ch Change) {
	h.mu.RLock()
	handlers := make([]func(Change), 0, len(h.subs[ch.Collection]))
	for _, fn := range h.subs[ch.Collection] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ch)
	}
}

// PublishResync рассылает OpResync подписчикам всех коллекций.
func (h *Hub) PublishResync() {
	for _, c := range model.Collections {
		h.Publish(Change{Collection: c, Op: OpResync})
	}
}

// Subscribers возвращает число подписчиков коллекции.
func (h *Hub) Subscribers(c model.Collection) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[c])
}

type hubSubscription struct {
	hub        *Hub
	collection model.Collection
	id         uint64
	once       sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.collection], s.id)
	})
}
