package keystore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(t time.Time) *time.Time {
	return &t
}

// runStoreContract 所有後端共同遵守的行為
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock Clock) Store) {
	ctx := context.Background()

	t.Run("take returns value once", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)

		require.NoError(t, store.Put(ctx, "AbCd1234", []byte("secret"), at(clock.Now().Add(time.Hour))))

		value, found, err := store.TakeAndRemove(ctx, "AbCd1234")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("secret"), value)

		_, found, err = store.TakeAndRemove(ctx, "AbCd1234")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("unknown id is absent", func(t *testing.T) {
		store := newStore(t, newFakeClock().Now)
		_, found, err := store.TakeAndRemove(ctx, "nope0000")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("put is create only", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)

		require.NoError(t, store.Put(ctx, "dup00001", []byte("first"), nil))
		assert.ErrorIs(t, store.Put(ctx, "dup00001", []byte("second"), nil), ErrKeyExists)

		value, found, err := store.TakeAndRemove(ctx, "dup00001")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("first"), value)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)

		require.NoError(t, store.Put(ctx, "exp00001", []byte("a"), at(clock.Now().Add(5*time.Minute))))
		require.NoError(t, store.Put(ctx, "exp00002", []byte("b"), at(clock.Now().Add(5*time.Minute))))

		// 到期前一刻仍可取回
		clock.Advance(5*time.Minute - time.Millisecond)
		_, found, err := store.TakeAndRemove(ctx, "exp00001")
		require.NoError(t, err)
		assert.True(t, found)

		// 到期時刻即視為過期
		clock.Advance(time.Millisecond)
		_, found, err = store.TakeAndRemove(ctx, "exp00002")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("expired id can be reused", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)

		require.NoError(t, store.Put(ctx, "reuse001", []byte("old"), at(clock.Now().Add(time.Minute))))
		clock.Advance(2 * time.Minute)
		require.NoError(t, store.Put(ctx, "reuse001", []byte("new"), nil))

		value, found, err := store.TakeAndRemove(ctx, "reuse001")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("new"), value)
	})

	t.Run("no expiry survives time", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)

		require.NoError(t, store.Put(ctx, "forever1", []byte("keep"), nil))
		clock.Advance(10 * 365 * 24 * time.Hour)

		if sweeper, ok := store.(Sweeper); ok {
			_, err := sweeper.Sweep(ctx, clock.Now())
			require.NoError(t, err)
		}

		value, found, err := store.TakeAndRemove(ctx, "forever1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("keep"), value)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		store := newStore(t, newFakeClock().Now)
		require.NoError(t, store.Put(ctx, "rm000001", []byte("x"), nil))
		require.NoError(t, store.Remove(ctx, "rm000001"))
		require.NoError(t, store.Remove(ctx, "rm000001"))

		_, found, err := store.TakeAndRemove(ctx, "rm000001")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("reserved ids are rejected", func(t *testing.T) {
		store := newStore(t, newFakeClock().Now)
		assert.ErrorIs(t, store.Put(ctx, ".keyring.json", []byte("x"), nil), ErrInvalidID)
		assert.ErrorIs(t, store.Put(ctx, "  ", []byte("x"), nil), ErrInvalidID)

		_, found, err := store.TakeAndRemove(ctx, ".keyring.json")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("concurrent take wins once", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock.Now)
		require.NoError(t, store.Put(ctx, "race0001", []byte("only-once"), nil))

		const workers = 32
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			wins  int
			start = make(chan struct{})
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				value, found, err := store.TakeAndRemove(ctx, "race0001")
				assert.NoError(t, err)
				if found {
					assert.Equal(t, []byte("only-once"), value)
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, wins)
	})

	t.Run("available", func(t *testing.T) {
		store := newStore(t, newFakeClock().Now)
		assert.True(t, store.Available(ctx))
		assert.NotEmpty(t, store.Name())
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock Clock) Store {
		return NewMemoryStore(clock)
	})
}

func TestMemoryStore_SweepReclaims(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)

	require.NoError(t, store.Put(ctx, "short001", []byte("a"), at(clock.Now().Add(time.Minute))))
	require.NoError(t, store.Put(ctx, "long0001", []byte("b"), at(clock.Now().Add(time.Hour))))
	require.NoError(t, store.Put(ctx, "never001", []byte("c"), nil))

	clock.Advance(2 * time.Minute)
	removed, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	buf := []byte("mutable")
	require.NoError(t, store.Put(ctx, "copy0001", buf, nil))
	buf[0] = 'X'

	value, found, err := store.TakeAndRemove(ctx, "copy0001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("mutable"), value)
}
