package livestore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/ludex-store/internal/gateway"
	"github.com/mmeshcher/ludex-store/internal/memstore"
	"github.com/mmeshcher/ludex-store/internal/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// stubSource - управляемый источник для тестов.
type stubSource struct {
	mu       sync.Mutex
	records  []model.Product
	failures int
	calls    int
	subErr   error
	onChange func(gateway.Change)
	unsubbed atomic.Bool
	block    chan struct{}
}

func (s *stubSource) ListAll(ctx context.Context) ([]model.Product, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	records := append([]model.Product(nil), s.records...)
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, nil
}

func (s *stubSource) Subscribe(_ context.Context, onChange func(gateway.Change)) (gateway.Subscription, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	s.mu.Lock()
	s.onChange = onChange
	s.mu.Unlock()
	return stubSubscription{s}, nil
}

func (s *stubSource) fire() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	fn(gateway.Change{Collection: model.CollectionProducts, Op: gateway.OpUpdate})
}

func (s *stubSource) setFailures(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSubscription struct{ s *stubSource }

func (u stubSubscription) Unsubscribe() { u.s.unsubbed.Store(true) }

func newStore(src Source[model.Product], opts ...Option) *Store[model.Product] {
	opts = append([]Option{WithRetry(0, time.Millisecond)}, opts...)
	return New[model.Product](src, zap.NewNop(), opts...)
}

func TestStore_ActivateLoadsSnapshot(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1", Name: "Netflix"}}}
	store := newStore(src)

	assert.Equal(t, StateIdle, store.State())
	assert.Nil(t, store.Snapshot())

	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()

	assert.Equal(t, StateReady, store.State())
	snap := store.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, src.records, snap.Records)
	assert.Equal(t, uint64(1), snap.Version)
	assert.NoError(t, store.Err())
	assert.False(t, store.Stale())

	assert.ErrorIs(t, store.Activate(context.Background()), ErrActive)
}

func TestStore_NotificationReplacesSnapshot(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1", Name: "Netflix"}}}
	var updates atomic.Int32
	store := newStore(src, WithOnUpdate(func() { updates.Add(1) }))

	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()

	before := store.Snapshot()
	src.fire()

	require.Eventually(t, func() bool {
		return store.Snapshot().Version == before.Version+1
	}, waitFor, tick)

	after := store.Snapshot()
	assert.NotSame(t, before, after, "snapshot must be replaced even when content is identical")
	assert.Equal(t, before.Records, after.Records)
	assert.Eventually(t, func() bool { return updates.Load() == 2 }, waitFor, tick)
	assert.Equal(t, StateReady, store.State())
}

func TestStore_FailedRefreshKeepsSnapshot(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1"}}}
	store := newStore(src)

	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()

	before := store.Snapshot()
	src.setFailures(1)
	store.Refresh()

	require.Eventually(t, store.Stale, waitFor, tick)
	assert.Same(t, before, store.Snapshot())
	assert.Equal(t, StateReady, store.State())
	assert.Error(t, store.Err())

	store.Refresh()
	require.Eventually(t, func() bool { return !store.Stale() }, waitFor, tick)
	assert.NoError(t, store.Err())
	assert.Equal(t, before.Version+1, store.Snapshot().Version)
}

func TestStore_RetriesInitialLoad(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1"}}, failures: 2}
	store := New[model.Product](src, zap.NewNop(), WithRetry(3, time.Millisecond))

	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()

	assert.Equal(t, 3, src.callCount())
	assert.Len(t, store.Snapshot().Records, 1)
}

func TestStore_FailedActivation(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1"}}, failures: 5}
	store := New[model.Product](src, zap.NewNop(), WithRetry(2, time.Millisecond))

	err := store.Activate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, store.State())
	assert.Equal(t, err, store.Err())
	assert.Nil(t, store.Snapshot())
	assert.Equal(t, 3, src.callCount())

	src.setFailures(0)
	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()
	assert.Equal(t, StateReady, store.State())
}

func TestStore_SubscribeFailureMarksStale(t *testing.T) {
	src := &stubSource{subErr: errors.New("realtime disabled")}
	store := newStore(src)

	require.NoError(t, store.Activate(context.Background()))
	defer store.Deactivate()

	assert.Equal(t, StateReady, store.State())
	assert.True(t, store.Stale())
	assert.EqualError(t, store.Err(), "realtime disabled")
	assert.NotNil(t, store.Snapshot())
}

func TestStore_DeactivateDiscardsState(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1"}}}
	store := newStore(src)

	require.NoError(t, store.Activate(context.Background()))
	store.Deactivate()

	assert.True(t, src.unsubbed.Load())
	assert.Equal(t, StateIdle, store.State())
	assert.Nil(t, store.Snapshot())

	// Refresh на неактивном хранилище ничего не делает.
	store.Refresh()
	store.Deactivate()
}

func TestStore_LateLoadIsDiscarded(t *testing.T) {
	src := &stubSource{records: []model.Product{{ID: "1"}}, block: make(chan struct{})}
	store := newStore(src)

	errCh := make(chan error, 1)
	go func() { errCh <- store.Activate(context.Background()) }()

	require.Eventually(t, func() bool { return store.State() == StateLoading }, waitFor, tick)
	store.Deactivate()
	close(src.block)

	assert.ErrorIs(t, <-errCh, ErrDeactivated)
	assert.Equal(t, StateIdle, store.State())
	assert.Nil(t, store.Snapshot())
}

func TestStore_WithMemstore(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	col := gateway.For[model.Subscription](mem)
	store := New[model.Subscription](col, zap.NewNop(), WithRetry(0, time.Millisecond))

	require.NoError(t, store.Activate(ctx))
	defer store.Deactivate()
	assert.Empty(t, store.Snapshot().Records)

	require.NoError(t, col.Insert(ctx, model.Subscription{Name: "Netflix", ExpirationDate: "2024-06-17"}))

	require.Eventually(t, func() bool { return len(store.Snapshot().Records) == 1 }, waitFor, tick)
	rec := store.Snapshot().Records[0]
	assert.Equal(t, "Netflix", rec.Name)
	assert.NotEmpty(t, rec.ID)

	require.NoError(t, col.Delete(ctx, rec.ID))
	require.Eventually(t, func() bool { return len(store.Snapshot().Records) == 0 }, waitFor, tick)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "idle", State(99).String())
}
