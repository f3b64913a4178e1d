// Package confirm реализует подтверждение удаления записей.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/mo"
	"go.uber.org/zap"
)

// ErrNothingStaged возвращается при подтверждении, когда ни одна запись не ожидает удаления.
var ErrNothingStaged = errors.New("no record is staged for deletion")

// Preferences хранит признак отключения подтверждения. Одно хранилище разделяется всеми Gate.
type Preferences interface {
	SkipDeleteWarning() (bool, error)
	SetSkipDeleteWarning(skip bool) error
}

// DeleteFunc удаляет запись по идентификатору.
type DeleteFunc func(ctx context.Context, id string) error

// Gate решает, удалять запись сразу или ждать подтверждения.
type Gate struct {
	prefs  Preferences
	delete DeleteFunc
	log    *zap.Logger

	mu     sync.Mutex
	staged mo.Option[string]
}

// NewGate создаёт Gate, удаляющий записи функцией del.
func NewGate(prefs Preferences, del DeleteFunc, logger *zap.Logger) *Gate {
	return &Gate{
		prefs:  prefs,
		delete: del,
		log:    logger,
		staged: mo.None[string](),
	}
}

// Request запрашивает удаление id. Если подтверждение отключено, запись удаляется сразу
// и возвращается true. Иначе id ставится в ожидание вместо ранее ожидавшего.
func (g *Gate) Request(ctx context.Context, id string) (bool, error) {
	skip, err := g.prefs.SkipDeleteWarning()
	if err != nil {
		// Без настройки действуем безопасно: спрашиваем подтверждение.
		g.log.Warn("failed to read delete warning preference", zap.Error(err))
		skip = false
	}

	if skip {
		return true, g.delete(ctx, id)
	}

	g.mu.Lock()
	g.staged = mo.Some(id)
	g.mu.Unlock()
	return false, nil
}

// Staged возвращает идентификатор записи, ожидающей подтверждения.
func (g *Gate) Staged() mo.Option[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.staged
}

// Confirm удаляет ожидающую запись. Если dontAskAgain, перед удалением сохраняется
// отказ от подтверждений; запись удаляется, даже если настройку сохранить не удалось.
// Ожидание снимается и при ошибке удаления.
func (g *Gate) Confirm(ctx context.Context, dontAskAgain bool) error {
	g.mu.Lock()
	id, ok := g.staged.Get()
	g.staged = mo.None[string]()
	g.mu.Unlock()

	if !ok {
		return ErrNothingStaged
	}

	var prefErr error
	if dontAskAgain {
		if err := g.prefs.SetSkipDeleteWarning(true); err != nil {
			g.log.Error("failed to save delete warning preference", zap.Error(err))
			prefErr = fmt.Errorf("save preference: %w", err)
		}
	}
	return errors.Join(prefErr, g.delete(ctx, id))
}

// Cancel снимает запись с ожидания.
func (g *Gate) Cancel() {
	g.mu.Lock()
	g.staged = mo.None[string]()
	g.mu.Unlock()
}
