package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeenglish/speaking-backend/internal/store"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

type failingStore struct{}

func (failingStore) Load(context.Context) (usage.Ledger, error) {
	return nil, errors.New("store unreachable")
}

func (failingStore) Save(context.Context, usage.Ledger) error {
	return errors.New("store unreachable")
}

func TestGetUsage_FirstReadIsZeroRecord(t *testing.T) {
	svc := usage.NewService(store.NewMemory())

	rec := svc.GetUsage(context.Background(), "alice@example.com")

	assert.Equal(t, 0, rec.Used)
	assert.Equal(t, usage.DefaultMonthlyLimit, rec.Limit)
}

func TestGetUsage_DoesNotMutateStorage(t *testing.T) {
	mem := store.NewMemory()
	svc := usage.NewService(mem)

	svc.GetUsage(context.Background(), "alice@example.com")

	ledger, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestTryConsume_SequentialUpToLimit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := usage.NewService(mem)

	for i := 1; i <= usage.DefaultMonthlyLimit; i++ {
		ledger, rec, allowed := svc.TryConsume(ctx, "alice@example.com")
		require.True(t, allowed, "consume %d should be admitted", i)
		assert.Equal(t, i, rec.Used)
		require.NoError(t, svc.Persist(ctx, ledger))
	}

	// One past the limit: denied, state unchanged.
	_, rec, allowed := svc.TryConsume(ctx, "alice@example.com")
	assert.False(t, allowed)
	assert.Equal(t, usage.DefaultMonthlyLimit, rec.Used)

	final := svc.GetUsage(ctx, "alice@example.com")
	assert.Equal(t, usage.DefaultMonthlyLimit, final.Used)
}

func TestTryConsume_NotDurableUntilPersisted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := usage.NewService(mem)

	_, rec, allowed := svc.TryConsume(ctx, "alice@example.com")
	require.True(t, allowed)
	assert.Equal(t, 1, rec.Used)

	// Without Persist the stored ledger still reads zero.
	assert.Equal(t, 0, svc.GetUsage(ctx, "alice@example.com").Used)
}

func TestMonthRollover_FreshRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	now := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)
	svc := usage.NewService(mem, usage.WithClock(func() time.Time { return now }))

	ledger, rec, allowed := svc.TryConsume(ctx, "alice@example.com")
	require.True(t, allowed)
	assert.Equal(t, 1, rec.Used)
	require.NoError(t, svc.Persist(ctx, ledger))

	now = time.Date(2026, time.February, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, svc.GetUsage(ctx, "alice@example.com").Used)

	_, rec, allowed = svc.TryConsume(ctx, "alice@example.com")
	require.True(t, allowed)
	assert.Equal(t, 1, rec.Used)
}

func TestGetUsage_FailOpenOnStorageError(t *testing.T) {
	svc := usage.NewService(failingStore{})

	rec := svc.GetUsage(context.Background(), "alice@example.com")

	assert.Equal(t, 0, rec.Used)
	assert.Equal(t, usage.DefaultMonthlyLimit, rec.Limit)
}

func TestTryConsume_FailOpenOnStorageError(t *testing.T) {
	_, rec, allowed := usage.NewService(failingStore{}).TryConsume(context.Background(), "alice@example.com")

	assert.True(t, allowed)
	assert.Equal(t, 1, rec.Used)
}

func TestUserNormalization_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc := usage.NewService(store.NewMemory())

	ledger, _, allowed := svc.TryConsume(ctx, "Alice@Example.COM")
	require.True(t, allowed)
	require.NoError(t, svc.Persist(ctx, ledger))

	assert.Equal(t, 1, svc.GetUsage(ctx, "alice@example.com").Used)
}

func TestCustomMonthlyLimit(t *testing.T) {
	ctx := context.Background()
	svc := usage.NewService(store.NewMemory(), usage.WithMonthlyLimit(2))

	for i := 0; i < 2; i++ {
		ledger, _, allowed := svc.TryConsume(ctx, "bob@example.com")
		require.True(t, allowed)
		require.NoError(t, svc.Persist(ctx, ledger))
	}

	_, rec, allowed := svc.TryConsume(ctx, "bob@example.com")
	assert.False(t, allowed)
	assert.Equal(t, 2, rec.Used)
}

func TestConsume_SerializedUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc := usage.NewService(store.NewMemory())

	const requests = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, allowed, err := svc.Consume(ctx, "alice@example.com")
			assert.NoError(t, err)
			if allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, usage.DefaultMonthlyLimit, admitted)
	assert.Equal(t, usage.DefaultMonthlyLimit, svc.GetUsage(ctx, "alice@example.com").Used)
}
