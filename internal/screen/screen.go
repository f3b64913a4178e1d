// Package screen собирает для одной коллекции живой снимок, сессию
// редактирования и подтверждение удаления.
package screen

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/confirm"
	"github.com/mmeshcher/ludex-store/internal/form"
	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/livestore"
	"github.com/mmeshcher/ludex-store/internal/model"
)

// Screen - экран одной коллекции. Экраны разных коллекций не разделяют состояния,
// кроме хранилища настроек.
type Screen[T model.Entity[T]] struct {
	Collection *gateway.Collection[T]
	Store      *livestore.Store[T]
	Form       *form.Session[T]
	Gate       *confirm.Gate
}

// New создаёт экран коллекции сущности T поверх шлюза gw.
func New[T model.Entity[T]](gw gateway.Gateway, prefs confirm.Preferences, logger *zap.Logger, opts ...livestore.Option) *Screen[T] {
	col := gateway.For[T](gw)
	logger = logger.With(zap.String("collection", string(col.Name())))

	return &Screen[T]{
		Collection: col,
		Store:      livestore.New[T](col, logger, opts...),
		Form:       form.New[T](col, logger),
		Gate:       confirm.NewGate(prefs, col.Delete, logger),
	}
}

// Open загружает снимок и подписывается на изменения.
func (s *Screen[T]) Open(ctx context.Context) error {
	return s.Store.Activate(ctx)
}

// Close закрывает форму, снимает ожидающее удаление и отписывается от изменений.
func (s *Screen[T]) Close() {
	s.Form.Close()
	s.Gate.Cancel()
	s.Store.Deactivate()
}

// Records возвращает записи текущего снимка.
func (s *Screen[T]) Records() []T {
	snap := s.Store.Snapshot()
	if snap == nil {
		return nil
	}
	return snap.Records
}

// Find ищет запись снимка по идентификатору.
func (s *Screen[T]) Find(id string) (T, bool) {
	for _, rec := range s.Records() {
		if rec.Key() == id {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Edit открывает форму редактирования записи id из снимка.
func (s *Screen[T]) Edit(id string) error {
	rec, ok := s.Find(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", s.Collection.Name(), id, gateway.ErrNotFound)
	}
	s.Form.Edit(rec)
	return nil
}
