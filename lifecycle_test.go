package filepulse_test

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(t *testing.T, s *stack, name, content string) filepulse.Share {
	t.Helper()
	share, err := s.service.Upload(context.Background(), filepulse.UploadRequest{
		Filename:     name,
		Origin:       "127.0.0.1",
		Content:      strings.NewReader(content),
		DeclaredSize: int64(len(content)),
	})
	require.NoError(t, err, "upload %s", name)
	return share
}

func TestLifecycle_UploadDownloadRoundTrip(t *testing.T) {
	s := newStack(t, stackOptions{})

	share := upload(t, s, "notes.txt", "round trip content")

	assert.True(t, filepulse.IsValidCode(share.Code))
	assert.Equal(t, "notes.txt", share.DisplayName)
	assert.Equal(t, int64(len("round trip content")), share.Size)
	assert.True(t, share.ExpiresAt.Equal(s.clock.Now().Add(7*24*time.Hour)))

	assert.Equal(t, "round trip content", s.download(t, share.Code))

	info, err := s.service.Info(context.Background(), share.Code)
	require.NoError(t, err)
	assert.Equal(t, share.Code, info.Code)
	assert.Equal(t, "127.0.0.1", info.Origin)
}

func TestLifecycle_EmptyFile(t *testing.T) {
	s := newStack(t, stackOptions{})

	share := upload(t, s, "empty.txt", "")

	assert.Equal(t, int64(0), share.Size)
	assert.Equal(t, "", s.download(t, share.Code))
}

func TestLifecycle_DedupStoresContentOnce(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx := context.Background()

	first, err := s.service.Upload(ctx, filepulse.UploadRequest{
		Filename:     "a.txt",
		Origin:       "192.0.2.10",
		Content:      strings.NewReader("same bytes"),
		DeclaredSize: -1,
	})
	require.NoError(t, err)
	s.clock.Advance(time.Minute)
	second, err := s.service.Upload(ctx, filepulse.UploadRequest{
		Filename:     "b.txt",
		Origin:       "198.51.100.20",
		Content:      strings.NewReader("same bytes"),
		DeclaredSize: -1,
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.Code, second.Code)
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, "b.txt", second.DisplayName)
	assert.Equal(t, 1, s.blobCount(t))

	stored, err := s.registry.Lookup(ctx, first.Code, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", stored.Origin)
	assert.Equal(t, "a.txt", stored.DisplayName)

	stored, err = s.registry.Lookup(ctx, second.Code, s.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.20", stored.Origin)
	assert.True(t, stored.ExpiresAt.After(first.ExpiresAt), "each share keeps its own expiry")

	assert.Equal(t, "same bytes", s.download(t, first.Code))
	assert.Equal(t, "same bytes", s.download(t, second.Code))
}

func TestLifecycle_ExtendPolicyReusesCode(t *testing.T) {
	s := newStack(t, stackOptions{policy: filepulse.DedupExtend, ttl: time.Hour})

	first := upload(t, s, "a.txt", "extend me")
	s.clock.Advance(30 * time.Minute)
	second := upload(t, s, "a.txt", "extend me")

	assert.Equal(t, first.Code, second.Code)
	assert.True(t, second.ExpiresAt.Equal(s.clock.Now().Add(time.Hour)))
}

func TestLifecycle_LargestSizeLimit(t *testing.T) {
	s := newStack(t, stackOptions{maxFileSize: math.MaxInt64})

	share := upload(t, s, "hello.txt", "hello")

	assert.Equal(t, int64(5), share.Size)
	assert.Equal(t, "hello", s.download(t, share.Code))
}

func TestLifecycle_TooLargeLeavesNothing(t *testing.T) {
	s := newStack(t, stackOptions{maxFileSize: 10})

	_, err := s.service.Upload(context.Background(), filepulse.UploadRequest{
		Filename:     "big.bin",
		Content:      strings.NewReader(strings.Repeat("x", 11)),
		DeclaredSize: -1,
	})
	assert.ErrorIs(t, err, filepulse.ErrTooLarge)
	assert.Equal(t, 0, s.blobCount(t))
	assert.Empty(t, s.tmpEntries(t))

	exact := upload(t, s, "exact.bin", strings.Repeat("x", 10))
	assert.Equal(t, int64(10), exact.Size)
}

type cancellingReader struct {
	cancel context.CancelFunc
	sent   bool
}

func (r *cancellingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	r.cancel()
	return copy(p, "more"), nil
}

func TestLifecycle_CancelledUploadLeavesNothing(t *testing.T) {
	s := newStack(t, stackOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.service.Upload(ctx, filepulse.UploadRequest{
		Filename:     "slow.bin",
		Content:      &cancellingReader{cancel: cancel},
		DeclaredSize: -1,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.blobCount(t))
	assert.Empty(t, s.tmpEntries(t))
}

func TestLifecycle_ExpiredShareIsNotFound(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour})

	share := upload(t, s, "a.txt", "short lived")
	s.clock.Advance(time.Hour)

	_, err := s.service.Info(context.Background(), share.Code)
	assert.ErrorIs(t, err, filepulse.ErrNotFound)

	_, _, err = s.service.Download(context.Background(), share.Code)
	assert.ErrorIs(t, err, filepulse.ErrNotFound)

	// The registry still returns the expired row for inspection.
	expired, err := s.registry.Lookup(context.Background(), share.Code, s.clock.Now())
	assert.ErrorIs(t, err, filepulse.ErrExpired)
	assert.Equal(t, share.Code, expired.Code)
}

func TestLifecycle_SweepReclaimsUnreferencedBlob(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour})

	share := upload(t, s, "a.txt", "reclaim me")
	s.clock.Advance(2 * time.Hour)

	res, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.SharesRemoved)
	assert.Equal(t, 1, res.BlobsReclaimed)
	assert.Equal(t, share.Size, res.BytesReclaimed)
	assert.Equal(t, 0, s.blobCount(t))

	_, err = s.registry.Lookup(context.Background(), share.Code, s.clock.Now())
	assert.ErrorIs(t, err, filepulse.ErrNotFound)
}

func TestLifecycle_SweepKeepsBlobWithLiveReference(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour})

	old := upload(t, s, "old.txt", "shared content")
	s.clock.Advance(45 * time.Minute)
	fresh := upload(t, s, "fresh.txt", "shared content")
	s.clock.Advance(30 * time.Minute)

	res, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.SharesRemoved)
	assert.Equal(t, 0, res.BlobsReclaimed)
	assert.Equal(t, 1, s.blobCount(t))

	_, err = s.service.Info(context.Background(), old.Code)
	assert.ErrorIs(t, err, filepulse.ErrNotFound)
	assert.Equal(t, "shared content", s.download(t, fresh.Code))
}

func TestLifecycle_SweepIsIdempotent(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour})

	upload(t, s, "a.txt", "one")
	upload(t, s, "b.txt", "two")
	s.clock.Advance(2 * time.Hour)

	first, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.SharesRemoved)

	second, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.SharesRemoved)
	assert.Equal(t, 0, second.BlobsReclaimed)
}

func TestLifecycle_OrphanScanReclaimsUntrackedBlob(t *testing.T) {
	s := newStack(t, stackOptions{orphanScan: true})

	kept := upload(t, s, "kept.txt", "has a share")
	_, err := s.store.Put(context.Background(), strings.NewReader("nobody points here"))
	require.NoError(t, err)
	require.Equal(t, 2, s.blobCount(t))

	s.clock.Advance(time.Second)

	res, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.SharesRemoved)
	assert.Equal(t, 1, res.OrphansReclaimed)
	assert.Equal(t, int64(len("nobody points here")), res.BytesReclaimed)
	assert.Equal(t, 1, s.blobCount(t))
	assert.Equal(t, "has a share", s.download(t, kept.Code))
}

// Uploads of content whose previous share just expired race a sweep. Every
// upload that succeeds must stay downloadable.
func TestLifecycle_ConcurrentUploadAndSweep(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour, orphanScan: true})

	const contents = 4
	for i := range contents {
		upload(t, s, fmt.Sprintf("seed-%d.txt", i), fmt.Sprintf("payload %d", i))
	}
	s.clock.Advance(2 * time.Hour)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		shares []filepulse.Share
	)

	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := fmt.Sprintf("payload %d", i%contents)
			share, err := s.service.Upload(context.Background(), filepulse.UploadRequest{
				Filename:     "again.txt",
				Content:      strings.NewReader(content),
				DeclaredSize: -1,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			shares = append(shares, share)
			mu.Unlock()
		}()
	}

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.reaper.Sweep(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, filepulse.ErrSweepInProgress)
			}
		}()
	}

	wg.Wait()

	_, err := s.reaper.Sweep(context.Background())
	require.NoError(t, err)

	require.Len(t, shares, 16)
	for _, share := range shares {
		_, rc, err := s.service.Download(context.Background(), share.Code)
		require.NoError(t, err, "share %s lost its blob", share.Code)
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(b), "payload "))
	}
	assert.Equal(t, contents, s.blobCount(t))
}

// hookedRegistry runs afterZero once, right after a reference count of
// zero and before the caller acts on it.
type hookedRegistry struct {
	filepulse.ShareRegistry
	once      sync.Once
	afterZero func()
}

func (r *hookedRegistry) CountLiveReferences(ctx context.Context, digest string, now time.Time) (int, error) {
	n, err := r.ShareRegistry.CountLiveReferences(ctx, digest, now)
	if err == nil && n == 0 {
		r.once.Do(r.afterZero)
	}
	return n, err
}

// A sweep run by a separate process (own registry connection, store and
// lock table) must not delete a blob that the server is recommitting for a
// new share of the same content.
func TestLifecycle_SweepFromAnotherProcessKeepsRecommittedBlob(t *testing.T) {
	s := newStack(t, stackOptions{ttl: time.Hour})
	ctx := context.Background()

	upload(t, s, "old.txt", "recycled content")
	s.clock.Advance(2 * time.Hour)

	db, err := sqlite.Connect(ctx, s.dbPath, filepulse.Tables{Shares: "shares"}, filepulse.RandomCodes{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	otherStore := openLockingStore(t, s.storageDir)

	type uploadResult struct {
		share filepulse.Share
		err   error
	}
	uploaded := make(chan uploadResult, 1)

	registry := &hookedRegistry{
		ShareRegistry: db.GetRepo(),
		afterZero: func() {
			go func() {
				share, err := s.service.Upload(context.Background(), filepulse.UploadRequest{
					Filename:     "new.txt",
					Content:      strings.NewReader("recycled content"),
					DeclaredSize: -1,
				})
				uploaded <- uploadResult{share: share, err: err}
			}()

			select {
			case r := <-uploaded:
				uploaded <- r
				t.Error("upload committed while the sweep held the digest")
			case <-time.After(100 * time.Millisecond):
			}
		},
	}

	reaper, err := filepulse.NewReaper(registry, otherStore, filepulse.ReaperConfig{
		Locks: filepulse.NewDigestLocks(otherStore),
		Now:   s.clock.Now,
	})
	require.NoError(t, err)

	res, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SharesRemoved)
	assert.Equal(t, 1, res.BlobsReclaimed)

	var r uploadResult
	select {
	case r = <-uploaded:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never finished")
	}
	require.NoError(t, r.err)

	assert.Equal(t, "recycled content", s.download(t, r.share.Code))
	assert.Equal(t, 1, s.blobCount(t))
}
