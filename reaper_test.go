package filepulse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sagarc03/filepulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func NewTestReaper(t *testing.T, cfg filepulse.ReaperConfig) (*filepulse.Reaper, *SpyShareRegistry, *SpyContentStore) {
	t.Helper()
	spyRegistry := new(SpyShareRegistry)
	spyStore := new(SpyContentStore)
	if cfg.Locks == nil {
		cfg.Locks = new(filepulse.DigestLocks)
	}
	r, err := filepulse.NewReaper(spyRegistry, spyStore, cfg)
	require.NoError(t, err, "new reaper")
	return r, spyRegistry, spyStore
}

func TestNewReaper_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  filepulse.ReaperConfig
	}{
		{"bad hour", filepulse.ReaperConfig{TimeOfDay: "25:00"}},
		{"bad format", filepulse.ReaperConfig{TimeOfDay: "2am"}},
		{"negative interval", filepulse.ReaperConfig{Interval: -time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := filepulse.NewReaper(new(SpyShareRegistry), new(SpyContentStore), tt.cfg)
			assert.ErrorIs(t, err, filepulse.ErrInvalidInput)
		})
	}
}

func TestReaper_NextRun(t *testing.T) {
	loc := time.FixedZone("test", 3600)

	t.Run("default is 02:00 daily", func(t *testing.T) {
		r, _, _ := NewTestReaper(t, filepulse.ReaperConfig{})

		now := time.Date(2025, 5, 10, 1, 30, 0, 0, loc)
		assert.Equal(t, time.Date(2025, 5, 10, 2, 0, 0, 0, loc), r.NextRun(now))
	})

	t.Run("past today's slot rolls to tomorrow", func(t *testing.T) {
		r, _, _ := NewTestReaper(t, filepulse.ReaperConfig{TimeOfDay: "02:00"})

		now := time.Date(2025, 5, 10, 2, 0, 0, 0, loc)
		assert.Equal(t, time.Date(2025, 5, 11, 2, 0, 0, 0, loc), r.NextRun(now))
	})

	t.Run("month boundary", func(t *testing.T) {
		r, _, _ := NewTestReaper(t, filepulse.ReaperConfig{TimeOfDay: "23:45"})

		now := time.Date(2025, 5, 31, 23, 50, 0, 0, loc)
		assert.Equal(t, time.Date(2025, 6, 1, 23, 45, 0, 0, loc), r.NextRun(now))
	})

	t.Run("interval overrides time of day", func(t *testing.T) {
		r, _, _ := NewTestReaper(t, filepulse.ReaperConfig{TimeOfDay: "02:00", Interval: 15 * time.Minute})

		now := time.Date(2025, 5, 10, 1, 30, 0, 0, loc)
		assert.Equal(t, now.Add(15*time.Minute), r.NextRun(now))
	})
}

func TestReaper_Sweep(t *testing.T) {
	a, b, c := testDigest('a'), testDigest('b'), testDigest('c')

	t.Run("reclaims unreferenced digests once", func(t *testing.T) {
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{
			{Code: "AAAAAAA1", Digest: a, Size: 10},
			{Code: "AAAAAAA2", Digest: a, Size: 10},
			{Code: "BBBBBBB1", Digest: b, Size: 20},
		}, nil)
		registry.On("CountLiveReferences", ctx, a, mock.Anything).Return(0, nil).Once()
		registry.On("CountLiveReferences", ctx, b, mock.Anything).Return(1, nil).Once()
		store.On("Delete", ctx, a).Return(nil).Once()

		res, err := reaper.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, res.SharesRemoved)
		assert.Equal(t, 1, res.BlobsReclaimed)
		assert.Equal(t, int64(10), res.BytesReclaimed)
		assert.Empty(t, res.Failed)

		registry.AssertExpectations(t)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "Delete", ctx, b)
	})

	t.Run("blob delete failure is recorded and the pass continues", func(t *testing.T) {
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{
			{Digest: a, Size: 1},
			{Digest: b, Size: 2},
			{Digest: c, Size: 4},
		}, nil)
		registry.On("CountLiveReferences", ctx, mock.Anything, mock.Anything).Return(0, nil)
		store.On("Delete", ctx, a).Return(errors.New("permission denied"))
		store.On("Delete", ctx, b).Return(filepulse.ErrNotFound)
		store.On("Delete", ctx, c).Return(nil)

		res, err := reaper.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{a}, res.Failed)
		assert.Equal(t, 1, res.BlobsReclaimed)
		assert.Equal(t, int64(4), res.BytesReclaimed)
	})

	t.Run("delete expired failure aborts", func(t *testing.T) {
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{OrphanScan: true})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share(nil), errors.New("database is locked"))

		_, err := reaper.Sweep(ctx)
		assert.Error(t, err)

		store.AssertNotCalled(t, "List", mock.Anything)
	})

	t.Run("reference count failure aborts without deleting", func(t *testing.T) {
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{{Digest: a}}, nil)
		registry.On("CountLiveReferences", ctx, a, mock.Anything).Return(0, errors.New("timeout"))

		_, err := reaper.Sweep(ctx)
		assert.ErrorIs(t, err, filepulse.ErrStorageFailure)

		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("uses one instant for the whole pass", func(t *testing.T) {
		clock := newFakeClock()
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{Now: clock.Now})
		ctx := context.Background()
		now := clock.Now()

		registry.On("DeleteExpired", ctx, now).Return([]filepulse.Share{{Digest: a}}, nil)
		registry.On("CountLiveReferences", ctx, a, now).Return(0, nil)
		store.On("Delete", ctx, a).Return(nil)

		_, err := reaper.Sweep(ctx)
		require.NoError(t, err)

		registry.AssertExpectations(t)
	})
}

func TestReaper_Sweep_OrphanScan(t *testing.T) {
	a, b, c := testDigest('a'), testDigest('b'), testDigest('c')

	t.Run("reclaims old unreferenced blobs only", func(t *testing.T) {
		clock := newFakeClock()
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{
			OrphanScan:  true,
			OrphanGrace: time.Hour,
			Now:         clock.Now,
		})
		ctx := context.Background()
		now := clock.Now()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{{Digest: a, Size: 1}}, nil)
		registry.On("CountLiveReferences", ctx, a, mock.Anything).Return(0, nil).Once()
		store.On("Delete", ctx, a).Return(nil).Once()

		store.On("List", ctx).Return([]filepulse.BlobInfo{
			{Digest: a, Size: 1, ModTime: now.Add(-48 * time.Hour)},
			{Digest: b, Size: 100, ModTime: now.Add(-2 * time.Hour)},
			{Digest: c, Size: 1000, ModTime: now.Add(-time.Minute)},
		}, nil)
		registry.On("CountLiveReferences", ctx, b, mock.Anything).Return(0, nil).Once()
		store.On("Delete", ctx, b).Return(nil).Once()

		res, err := reaper.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, res.BlobsReclaimed)
		assert.Equal(t, 1, res.OrphansReclaimed)
		assert.Equal(t, int64(101), res.BytesReclaimed)

		registry.AssertExpectations(t)
		store.AssertExpectations(t)
		store.AssertNotCalled(t, "Delete", ctx, c)
	})

	t.Run("referenced blob is kept", func(t *testing.T) {
		clock := newFakeClock()
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{OrphanScan: true, Now: clock.Now})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{}, nil)
		store.On("List", ctx).Return([]filepulse.BlobInfo{
			{Digest: a, Size: 5, ModTime: clock.Now().Add(-24 * time.Hour)},
		}, nil)
		registry.On("CountLiveReferences", ctx, a, mock.Anything).Return(2, nil)

		res, err := reaper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, res.OrphansReclaimed)

		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("list failure", func(t *testing.T) {
		reaper, registry, store := NewTestReaper(t, filepulse.ReaperConfig{OrphanScan: true})
		ctx := context.Background()

		registry.On("DeleteExpired", ctx, mock.Anything).Return([]filepulse.Share{}, nil)
		store.On("List", ctx).Return([]filepulse.BlobInfo(nil), errors.New("walk failed"))

		_, err := reaper.Sweep(ctx)
		assert.ErrorIs(t, err, filepulse.ErrStorageFailure)
	})
}

func TestReaper_Sweep_InProgress(t *testing.T) {
	reaper, registry, _ := NewTestReaper(t, filepulse.ReaperConfig{})

	entered := make(chan struct{})
	release := make(chan struct{})
	registry.On("DeleteExpired", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]filepulse.Share{}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := reaper.Sweep(context.Background())
		done <- err
	}()

	<-entered
	_, err := reaper.Sweep(context.Background())
	assert.ErrorIs(t, err, filepulse.ErrSweepInProgress)

	close(release)
	assert.NoError(t, <-done)
}

func TestReaper_StartStop(t *testing.T) {
	reaper, registry, _ := NewTestReaper(t, filepulse.ReaperConfig{
		RunOnStart: true,
		Interval:   time.Hour,
	})

	swept := make(chan struct{}, 1)
	registry.On("DeleteExpired", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		}).
		Return([]filepulse.Share{}, nil)

	require.NoError(t, reaper.Start(context.Background()))
	assert.Error(t, reaper.Start(context.Background()), "second start")

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep on start did not run")
	}

	reaper.Stop()
	reaper.Stop()

	require.NoError(t, reaper.Start(context.Background()), "restart after stop")
	reaper.Stop()
}

func TestReaper_StopsWithContext(t *testing.T) {
	reaper, _, _ := NewTestReaper(t, filepulse.ReaperConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, reaper.Start(ctx))
	cancel()

	stopped := make(chan struct{})
	go func() {
		reaper.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("reaper did not stop")
	}
}
