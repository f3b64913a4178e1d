// Package form хранит черновик создаваемой или редактируемой записи
// и отправляет его в хранилище.
package form

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/model"
)

// ErrClosed возвращается при работе с закрытой сессией.
var ErrClosed = errors.New("form session is closed")

// Writer сохраняет записи коллекции. Ему удовлетворяет *gateway.Collection[T].
type Writer[T any] interface {
	Insert(ctx context.Context, rec T) error
	Update(ctx context.Context, id string, rec T) error
}

// Mode - режим сессии.
type Mode int

const (
	ModeClosed Mode = iota
	ModeCreating
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeCreating:
		return "creating"
	case ModeEditing:
		return "editing"
	default:
		return "closed"
	}
}

// Session - сессия редактирования одной записи. Черновик принадлежит сессии
// и не разделяет память со снимком коллекции.
type Session[T model.Entity[T]] struct {
	w   Writer[T]
	log *zap.Logger

	mu    sync.Mutex
	mode  Mode
	id    string
	draft T
	seq   uint64
}

// New создаёт закрытую сессию.
func New[T model.Entity[T]](w Writer[T], logger *zap.Logger) *Session[T] {
	return &Session[T]{w: w, log: logger}
}

// Create открывает сессию создания с начальными значениями initial.
func (s *Session[T]) Create(initial T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.mode = ModeCreating
	s.id = ""
	s.draft = initial.WithKey("").Clone()
}

// Edit открывает сессию редактирования глубокой копии rec.
func (s *Session[T]) Edit(rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.mode = ModeEditing
	s.id = rec.Key()
	s.draft = rec.Clone()
}

// Mode возвращает режим сессии.
func (s *Session[T]) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ID возвращает идентификатор редактируемой записи.
func (s *Session[T]) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Draft возвращает копию черновика.
func (s *Session[T]) Draft() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeClosed {
		var zero T
		return zero, ErrClosed
	}
	return s.draft.Clone(), nil
}

// Update изменяет черновик функцией fn.
func (s *Session[T]) Update(fn func(draft *T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeClosed {
		return ErrClosed
	}
	fn(&s.draft)
	return nil
}

// Submit проверяет черновик и сохраняет его. При ошибке сессия остаётся открытой,
// при успехе закрывается, не дожидаясь обновления снимка коллекции.
func (s *Session[T]) Submit(ctx context.Context) error {
	s.mu.Lock()
	mode, id, seq := s.mode, s.id, s.seq
	draft := s.draft.Clone()
	s.mu.Unlock()

	if mode == ModeClosed {
		return ErrClosed
	}
	if err := draft.Validate(); err != nil {
		return err
	}

	var err error
	if mode == ModeCreating {
		err = s.w.Insert(ctx, draft)
	} else {
		err = s.w.Update(ctx, id, draft)
	}
	if err != nil {
		s.log.Error("failed to save record",
			zap.String("collection", string(draft.Collection())),
			zap.Stringer("mode", mode),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	if s.seq == seq {
		s.close()
	}
	s.mu.Unlock()
	return nil
}

// Close закрывает сессию и отбрасывает черновик.
func (s *Session[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
}

func (s *Session[T]) close() {
	var zero T
	s.mode = ModeClosed
	s.id = ""
	s.draft = zero
}
