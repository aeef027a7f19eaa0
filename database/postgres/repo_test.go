package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/filepulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	digestA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	digestB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// TIMESTAMPTZ keeps microseconds, so test instants stay on that grid.
var t0 = time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)

func newShare(digest string, created time.Time, ttl time.Duration) filepulse.NewShare {
	return filepulse.NewShare{
		Digest:      digest,
		DisplayName: "report.pdf",
		Size:        42,
		Origin:      "203.0.113.7",
		CreatedAt:   created,
		ExpiresAt:   created.Add(ttl),
	}
}

func TestRepo_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := setupTestRepo(t, nil)
		ctx := context.Background()

		share, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
		require.NoError(t, err)

		assert.True(t, filepulse.IsValidCode(share.Code))
		assert.Equal(t, digestA, share.Digest)
		assert.Equal(t, int64(42), share.Size)
		assert.True(t, share.CreatedAt.Equal(t0))
		assert.True(t, share.ExpiresAt.Equal(t0.Add(time.Hour)))

		got, err := repo.Lookup(ctx, share.Code, t0)
		require.NoError(t, err)
		assert.Equal(t, share, got)
	})

	t.Run("invalid input", func(t *testing.T) {
		repo := setupTestRepo(t, nil)

		_, err := repo.Create(context.Background(), newShare(digestA, t0, 0))
		assert.ErrorIs(t, err, filepulse.ErrInvalidInput)
	})

	t.Run("retries on collision", func(t *testing.T) {
		repo := setupTestRepo(t, sequenceCodes("AAAAAAAA", "AAAAAAAA", "BBBBBBBB"))
		ctx := context.Background()

		first, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
		require.NoError(t, err)
		second, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
		require.NoError(t, err)

		assert.Equal(t, "AAAAAAAA", first.Code)
		assert.Equal(t, "BBBBBBBB", second.Code)
	})

	t.Run("conflict after max attempts", func(t *testing.T) {
		repo := setupTestRepo(t, sequenceCodes("AAAAAAAA"))
		ctx := context.Background()

		_, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
		require.NoError(t, err)

		_, err = repo.Create(ctx, newShare(digestB, t0, time.Hour))
		assert.ErrorIs(t, err, filepulse.ErrConflict)
	})
}

func TestRepo_Lookup(t *testing.T) {
	repo := setupTestRepo(t, nil)
	ctx := context.Background()

	share, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
	require.NoError(t, err)

	_, err = repo.Lookup(ctx, "ZZZZZZZZ", t0)
	assert.ErrorIs(t, err, filepulse.ErrNotFound)

	_, err = repo.Lookup(ctx, share.Code, share.ExpiresAt.Add(-time.Microsecond))
	assert.NoError(t, err)

	got, err := repo.Lookup(ctx, share.Code, share.ExpiresAt)
	assert.ErrorIs(t, err, filepulse.ErrExpired)
	assert.Equal(t, share.Code, got.Code)
}

func TestRepo_CountAndDeleteExpired(t *testing.T) {
	repo := setupTestRepo(t, nil)
	ctx := context.Background()

	short, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
	require.NoError(t, err)
	long, err := repo.Create(ctx, newShare(digestA, t0, 48*time.Hour))
	require.NoError(t, err)

	count, err := repo.CountLiveReferences(ctx, digestA, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.CountLiveReferences(ctx, digestA, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	removed, err := repo.DeleteExpired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []filepulse.Share{short}, removed)

	_, err = repo.Lookup(ctx, long.Code, t0)
	assert.NoError(t, err)

	removed, err = repo.DeleteExpired(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRepo_FindOrExtend(t *testing.T) {
	repo := setupTestRepo(t, nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
	require.NoError(t, err)
	latest, err := repo.Create(ctx, newShare(digestA, t0, 2*time.Hour))
	require.NoError(t, err)

	got, err := repo.FindOrExtend(ctx, digestA, t0, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, latest.Code, got.Code)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(24*time.Hour)))

	got, err = repo.FindOrExtend(ctx, digestA, t0, time.Hour)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(24*time.Hour)), "expiry is never shortened")

	_, err = repo.FindOrExtend(ctx, digestB, t0, time.Hour)
	assert.ErrorIs(t, err, filepulse.ErrNotFound)
}

func TestRepo_ConcurrentCreate(t *testing.T) {
	repo := setupTestRepo(t, nil)
	ctx := context.Background()

	const writers = 20
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string]bool{}
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			share, err := repo.Create(ctx, newShare(digestA, t0, time.Hour))
			assert.NoError(t, err)
			mu.Lock()
			codes[share.Code] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, codes, writers)
}
