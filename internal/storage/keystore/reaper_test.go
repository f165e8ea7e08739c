package keystore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSweeper 記錄呼叫次數
type countingSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
	swept chan struct{}
}

func (s *countingSweeper) Sweep(context.Context, time.Time) (int, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	select {
	case s.swept <- struct{}{}:
	default:
	}
	return 1, s.err
}

func TestReaper_SweepsImmediatelyAndOnInterval(t *testing.T) {
	sweeper := &countingSweeper{swept: make(chan struct{}, 8)}
	reaper := NewReaper("test", sweeper, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-sweeper.swept:
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not sweep in time")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after cancel")
	}

	stats := reaper.Stats()
	assert.GreaterOrEqual(t, stats.Runs, int64(3))
	assert.Equal(t, stats.Runs, stats.Removed)
}

func TestReaper_FailureIsCountedAndSurvived(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("disk gone"), swept: make(chan struct{}, 1)}
	reaper := NewReaper("test", sweeper, time.Hour, nil)

	reaper.SweepOnce(context.Background())
	reaper.SweepOnce(context.Background())

	stats := reaper.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(2), stats.Failures)
}

func TestReaper_NonPositiveIntervalFallsBack(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		sweeper := &countingSweeper{swept: make(chan struct{}, 1)}
		reaper := NewReaper("test", sweeper, interval, nil)
		assert.Equal(t, constants.DefaultCleanupInterval, reaper.Interval())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			reaper.Run(ctx)
			close(done)
		}()

		select {
		case <-sweeper.swept:
		case <-time.After(2 * time.Second):
			t.Fatal("reaper did not sweep in time")
		}
		cancel()
		<-done
	}
}

func TestReaper_ReclaimsFileStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store, err := NewFileStore(t.TempDir(), clock.Now)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "gone0001", []byte("a"), at(clock.Now().Add(time.Second))))
	require.NoError(t, store.Put(ctx, "stay0001", []byte("b"), nil))

	reaper := NewReaper(store.Name(), store, time.Minute, clock.Now)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, reaper.SweepOnce(ctx))
	assert.Equal(t, clock.Now(), reaper.Stats().LastRun)

	_, found, err := store.TakeAndRemove(ctx, "stay0001")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	v := viper.New()
	v.Set("files.data_directory", t.TempDir())
	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	store, reaper, err := New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	require.NotNil(t, reaper)

	cfg.KeyStorage.Type = config.KeyStorageFiles
	store, reaper, err = New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	require.NotNil(t, reaper)
	assert.Equal(t, cfg.Files.CleanupInterval, reaper.Interval())

	cfg.KeyStorage.Type = config.KeyStorageMongo
	_, _, err = New(ctx, cfg, nil, nil)
	assert.Error(t, err)
}
