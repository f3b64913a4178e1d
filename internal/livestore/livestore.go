// Package livestore хранит клиентский снимок одной коллекции и полностью
// перечитывает его при каждом уведомлении об изменении.
package livestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
)

var (
	// ErrActive возвращается при повторной активации работающего хранилища.
	ErrActive = errors.New("store is already active")
	// ErrDeactivated возвращается, если хранилище деактивировали во время загрузки.
	ErrDeactivated = errors.New("store was deactivated")
)

// Source - источник записей коллекции. Ему удовлетворяет *gateway.Collection[T].
type Source[T any] interface {
	ListAll(ctx context.Context) ([]T, error)
	Subscribe(ctx context.Context, onChange func(gateway.Change)) (gateway.Subscription, error)
}

// State - состояние хранилища.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Snapshot - неизменяемый снимок коллекции. Каждая успешная загрузка создаёт новый снимок.
type Snapshot[T any] struct {
	Records   []T
	Version   uint64
	FetchedAt time.Time
}

type options struct {
	retries  uint64
	backoff  time.Duration
	onUpdate func()
	now      func() time.Time
}

// Option настраивает хранилище.
type Option func(*options)

// WithRetry задаёт число повторов загрузки и начальную задержку экспоненциального backoff.
func WithRetry(retries uint64, base time.Duration) Option {
	return func(o *options) {
		o.retries = retries
		o.backoff = base
	}
}

// WithOnUpdate задаёт функцию, вызываемую после установки каждого нового снимка.
// Функция не должна вызывать Deactivate.
func WithOnUpdate(fn func()) Option {
	return func(o *options) { o.onUpdate = fn }
}

// WithClock подменяет источник времени для FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Store - живой снимок одной коллекции.
type Store[T any] struct {
	src  Source[T]
	log  *zap.Logger
	opts options

	mu      sync.RWMutex
	state   State
	snap    *Snapshot[T]
	err     error
	stale   bool
	gen     uint64
	version uint64
	sub     gateway.Subscription
	cancel  context.CancelFunc
	refresh chan struct{}
	done    chan struct{}
}

// New создаёт неактивное хранилище над источником src.
func New[T any](src Source[T], logger *zap.Logger, opts ...Option) *Store[T] {
	o := options{
		retries: 3,
		backoff: 200 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{src: src, log: logger, opts: o}
}

// Activate загружает снимок и подписывается на изменения коллекции.
// Если загрузка не удалась после всех повторов, хранилище переходит в StateFailed
// и может быть активировано снова.
func (s *Store[T]) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateFailed {
		s.mu.Unlock()
		return ErrActive
	}
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.err = nil
	s.stale = false
	s.mu.Unlock()

	records, err := s.fetch(ctx)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrDeactivated
	}
	if err != nil {
		s.state = StateFailed
		s.err = err
		s.mu.Unlock()
		s.log.Error("failed to load collection", zap.Error(err))
		return err
	}

	s.install(records)
	s.state = StateReady

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	refresh := make(chan struct{}, 1)
	done := make(chan struct{})
	s.cancel = cancel
	s.refresh = refresh
	s.done = done
	s.mu.Unlock()

	go s.run(wctx, gen, refresh, done)
	s.notify()

	sub, err := s.src.Subscribe(wctx, func(gateway.Change) { s.Refresh() })
	if err != nil {
		s.log.Error("failed to subscribe to collection changes", zap.Error(err))
		s.mu.Lock()
		if s.gen == gen {
			s.err = err
			s.stale = true
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Deactivate отписывается от изменений и сбрасывает снимок.
// Результаты незавершённых загрузок отбрасываются.
func (s *Store[T]) Deactivate() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.gen++
	sub, cancel, done := s.sub, s.cancel, s.done
	s.state = StateIdle
	s.snap = nil
	s.err = nil
	s.stale = false
	s.sub = nil
	s.cancel = nil
	s.refresh = nil
	s.done = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Refresh запрашивает перечитывание коллекции. Запросы, пришедшие во время
// загрузки, склеиваются в одну следующую загрузку.
func (s *Store[T]) Refresh() {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()

	if refresh == nil {
		return
	}
	select {
	case refresh <- struct{}{}:
	default:
	}
}

// Snapshot возвращает текущий снимок или nil, если он ещё не загружен.
func (s *Store[T]) Snapshot() *Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State возвращает текущее состояние.
func (s *Store[T]) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err возвращает последнюю ошибку загрузки или подписки.
func (s *Store[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Stale сообщает, что снимок мог устареть: последнее перечитывание
// или подписка завершились ошибкой.
func (s *Store[T]) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func (s *Store[T]) run(ctx context.Context, gen uint64, refresh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh:
			s.reload(ctx, gen)
		}
	}
}

func (s *Store[T]) reload(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateRefreshing
	s.mu.Unlock()

	records, err := s.fetch(ctx)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.state = StateReady
	if err != nil {
		s.err = err
		s.stale = true
		s.mu.Unlock()
		if ctx.Err() == nil {
			s.log.Error("failed to refresh collection, keeping previous snapshot", zap.Error(err))
		}
		return
	}
	s.install(records)
	s.err = nil
	s.stale = false
	s.mu.Unlock()

	s.notify()
}

// install заменяет снимок целиком. Вызывается под s.mu.
func (s *Store[T]) install(records []T) {
	if records == nil {
		records = []T{}
	}
	s.version++
	s.snap = &Snapshot[T]{
		Records:   records,
		Version:   s.version,
		FetchedAt: s.opts.now(),
	}
}

func (s *Store[T]) notify() {
	if s.opts.onUpdate != nil {
		s.opts.onUpdate()
	}
}

func (s *Store[T]) fetch(ctx context.Context) ([]T, error) {
	backoff := retry.WithMaxRetries(s.opts.retries, retry.NewExponential(s.opts.backoff))

	var records []T
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.src.ListAll(ctx)
		if err != nil {
			if errors.Is(err, gateway.ErrUnknownCollection) {
				return err
			}
			s.log.Warn("list collection failed, retrying", zap.Error(err))
			return retry.RetryableError(err)
		}
		records = r
		return nil
	})
	return records, err
}
