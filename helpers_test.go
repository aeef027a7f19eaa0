package filepulse_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/filepulse"
	"github.com/sagarc03/filepulse/database/sqlite"
	"github.com/sagarc03/filepulse/filesystem"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type SpyShareRegistry struct {
	mock.Mock
}

func (s *SpyShareRegistry) Create(ctx context.Context, n filepulse.NewShare) (filepulse.Share, error) {
	args := s.Called(ctx, n)
	return args.Get(0).(filepulse.Share), args.Error(1)
}

func (s *SpyShareRegistry) Lookup(ctx context.Context, code string, now time.Time) (filepulse.Share, error) {
	args := s.Called(ctx, code, now)
	return args.Get(0).(filepulse.Share), args.Error(1)
}

func (s *SpyShareRegistry) CountLiveReferences(ctx context.Context, digest string, now time.Time) (int, error) {
	args := s.Called(ctx, digest, now)
	return args.Int(0), args.Error(1)
}

func (s *SpyShareRegistry) DeleteExpired(ctx context.Context, now time.Time) ([]filepulse.Share, error) {
	args := s.Called(ctx, now)
	return args.Get(0).([]filepulse.Share), args.Error(1)
}

func (s *SpyShareRegistry) FindOrExtend(ctx context.Context, digest string, now time.Time, ttl time.Duration) (filepulse.Share, error) {
	args := s.Called(ctx, digest, now, ttl)
	return args.Get(0).(filepulse.Share), args.Error(1)
}

type SpyContentStore struct {
	mock.Mock
}

func (s *SpyContentStore) Put(ctx context.Context, r io.Reader) (filepulse.PutResult, error) {
	args := s.Called(ctx, r)
	return args.Get(0).(filepulse.PutResult), args.Error(1)
}

func (s *SpyContentStore) Stage(ctx context.Context, r io.Reader) (filepulse.StagedBlob, error) {
	args := s.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(filepulse.StagedBlob), args.Error(1)
}

func (s *SpyContentStore) Get(ctx context.Context, digest string) (io.ReadSeekCloser, error) {
	args := s.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadSeekCloser), args.Error(1)
}

func (s *SpyContentStore) Delete(ctx context.Context, digest string) error {
	args := s.Called(ctx, digest)
	return args.Error(0)
}

func (s *SpyContentStore) List(ctx context.Context) ([]filepulse.BlobInfo, error) {
	args := s.Called(ctx)
	return args.Get(0).([]filepulse.BlobInfo), args.Error(1)
}

type SpyStagedBlob struct {
	mock.Mock
	digest string
	size   int64
}

func (s *SpyStagedBlob) Digest() string { return s.digest }

func (s *SpyStagedBlob) Size() int64 { return s.size }

func (s *SpyStagedBlob) Commit() (bool, error) {
	args := s.Called()
	return args.Bool(0), args.Error(1)
}

func (s *SpyStagedBlob) Discard() error {
	args := s.Called()
	return args.Error(0)
}

// fakeClock is a settable time source shared by a service and a reaper.
// It starts at the wall clock so blob mtimes stay comparable, cut to the
// microsecond precision the service stores.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Microsecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testDigest returns a syntactically valid digest built from a single hex rune.
func testDigest(c byte) string {
	b := make([]byte, filepulse.DigestLength)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

// stack is a service and reaper wired to a real SQLite registry and a real
// filesystem store in a temp directory.
type stack struct {
	service    *filepulse.Service
	reaper     *filepulse.Reaper
	registry   filepulse.ShareRegistry
	store      *filesystem.Store
	clock      *fakeClock
	storageDir string
	dbPath     string
}

type stackOptions struct {
	maxFileSize int64
	ttl         time.Duration
	policy      filepulse.DedupPolicy
	orphanScan  bool
}

func newStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()

	if opts.maxFileSize == 0 {
		opts.maxFileSize = 1 << 20
	}
	if opts.ttl == 0 {
		opts.ttl = 7 * 24 * time.Hour
	}

	ctx := context.Background()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "registry.db")
	db, err := sqlite.Connect(ctx, dbPath, filepulse.Tables{Shares: "shares"}, filepulse.RandomCodes{})
	require.NoError(t, err, "connect registry")
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx), "migrate registry")

	storageDir := filepath.Join(dir, "blobs")
	require.NoError(t, os.MkdirAll(storageDir, 0o755))
	root, err := os.OpenRoot(storageDir)
	require.NoError(t, err, "open root")
	t.Cleanup(func() { _ = root.Close() })

	store, err := filesystem.NewFileStorage(root, filesystem.SHA256)
	require.NoError(t, err, "new file storage")

	clock := newFakeClock()
	locks := filepulse.NewDigestLocks(store)
	registry := db.GetRepo()

	service, err := filepulse.NewService(registry, store, filepulse.ServiceConfig{
		MaxFileSize: opts.maxFileSize,
		TTL:         opts.ttl,
		DedupPolicy: opts.policy,
		Locks:       locks,
		Now:         clock.Now,
	})
	require.NoError(t, err, "new service")

	reaper, err := filepulse.NewReaper(registry, store, filepulse.ReaperConfig{
		OrphanScan:  opts.orphanScan,
		OrphanGrace: time.Nanosecond,
		Locks:       locks,
		Now:         clock.Now,
	})
	require.NoError(t, err, "new reaper")

	return &stack{
		service:    service,
		reaper:     reaper,
		registry:   registry,
		store:      store,
		clock:      clock,
		storageDir: storageDir,
		dbPath:     dbPath,
	}
}

// tmpEntries lists what is left in the store's temp directory.
func (s *stack) tmpEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.storageDir, ".tmp"))
	require.NoError(t, err)
	return entries
}

func (s *stack) blobCount(t *testing.T) int {
	t.Helper()
	blobs, err := s.store.List(context.Background())
	require.NoError(t, err)
	return len(blobs)
}

func (s *stack) download(t *testing.T, code string) string {
	t.Helper()
	_, rc, err := s.service.Download(context.Background(), code)
	require.NoError(t, err, fmt.Sprintf("download %s", code))
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}
