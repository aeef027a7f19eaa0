// Package filesystem provides a content-addressed file system store for
// filepulse. Blobs live under their digest, partitioned by its first two
// bytes, and are written through temp files that are promoted with a hard
// link, so a blob is visible either completely or not at all.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/sagarc03/filepulse"
	"github.com/zeebo/blake3"
)

// Supported digest algorithms.
const (
	SHA256 = "sha256"
	BLAKE3 = "blake3"
)

const (
	tmpDir  = ".tmp"
	lockDir = ".locks"
)

// Store provides content-addressed storage operations.
type Store struct {
	root    *os.Root
	newHash func() hash.Hash
}

// NewFileStorage creates a new Store on the given root directory using the
// named digest algorithm (SHA256 when empty). The root provides sandboxed
// file operations preventing path traversal.
func NewFileStorage(root *os.Root, algorithm string) (*Store, error) {
	var newHash func() hash.Hash
	switch algorithm {
	case "", SHA256:
		newHash = sha256.New
	case BLAKE3:
		newHash = func() hash.Hash { return blake3.New() }
	default:
		return nil, fmt.Errorf("new file storage: unsupported digest algorithm: %s", algorithm)
	}

	if err := root.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("new file storage: could not create temp directory: %w", err)
	}
	if err := root.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("new file storage: could not create lock directory: %w", err)
	}

	return &Store{root: root, newHash: newHash}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Staged is a hashed temp file waiting to be promoted to its digest path.
type Staged struct {
	store  *Store
	tmp    string
	digest string
	size   int64
	done   bool
}

func (b *Staged) Digest() string { return b.digest }

func (b *Staged) Size() int64 { return b.size }

// Commit promotes the temp file to the digest path with a hard link. When
// the path already exists another writer stored identical content first;
// the temp file is dropped and Commit reports created=false.
func (b *Staged) Commit() (bool, error) {
	if b.done {
		return false, errors.New("commit: blob already committed or discarded")
	}
	b.done = true
	defer b.store.removeTmp(b.tmp)

	final := filepulse.BlobPath(b.digest)
	if err := b.store.root.MkdirAll(path.Dir(final), 0o755); err != nil {
		return false, fmt.Errorf("commit %s: could not create intermediate directories: %w", b.digest, err)
	}

	err := b.store.root.Link(b.tmp, final)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("commit %s: %w", b.digest, err)
	}

	return true, nil
}

// Discard removes the temp file. It is a no-op after Commit.
func (b *Staged) Discard() error {
	if b.done {
		return nil
	}
	b.done = true

	if err := b.store.root.Remove(b.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard: %w", err)
	}
	return nil
}

// Stage streams content into a temp file while hashing it. The temp file
// is removed if the copy fails or ctx is cancelled.
func (s *Store) Stage(ctx context.Context, content io.Reader) (filepulse.StagedBlob, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	tmpFile := path.Join(tmpDir, uuid.New().String())
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return nil, fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			s.removeTmp(tmpFile)
		}
	}()

	h := s.newHash()
	w := io.MultiWriter(h, t)

	size, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return nil, fmt.Errorf("could not copy file contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return nil, fmt.Errorf("could not sync written file: %w", err)
	}

	success = true

	return &Staged{
		store:  s,
		tmp:    tmpFile,
		digest: hex.EncodeToString(h.Sum(nil)),
		size:   size,
	}, nil
}

// Put stores content under its digest. Concurrent puts of identical
// content all succeed; exactly one of them reports Created.
func (s *Store) Put(ctx context.Context, content io.Reader) (filepulse.PutResult, error) {
	staged, err := s.Stage(ctx, content)
	if err != nil {
		return filepulse.PutResult{}, err
	}

	created, err := staged.Commit()
	if err != nil {
		return filepulse.PutResult{}, err
	}

	return filepulse.PutResult{Digest: staged.Digest(), Size: staged.Size(), Created: created}, nil
}

// Get opens a blob for reading. Returns filepulse.ErrNotFound if the blob
// does not exist.
func (s *Store) Get(ctx context.Context, digest string) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !filepulse.IsValidDigest(digest) {
		return nil, fmt.Errorf("get %q: %w: invalid digest", digest, filepulse.ErrInvalidInput)
	}

	f, err := s.root.Open(filepulse.BlobPath(digest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, filepulse.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, nil
}

// Delete removes a blob. Returns filepulse.ErrNotFound if the blob does
// not exist.
func (s *Store) Delete(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !filepulse.IsValidDigest(digest) {
		return fmt.Errorf("delete %q: %w: invalid digest", digest, filepulse.ErrInvalidInput)
	}

	err := s.root.Remove(filepulse.BlobPath(digest))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filepulse.ErrNotFound
		}
		return fmt.Errorf("could not delete file: %w", err)
	}
	return nil
}

// List walks the root directory and returns every finalized blob. Temp
// files and anything not stored at its own digest path are skipped.
func (s *Store) List(ctx context.Context) ([]filepulse.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blobs := []filepulse.BlobInfo{}

	err := fs.WalkDir(s.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if p == tmpDir || p == lockDir {
				return fs.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !filepulse.IsValidDigest(name) || filepulse.BlobPath(name) != p {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		blobs = append(blobs, filepulse.BlobInfo{
			Digest:  name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}

	return blobs, nil
}

// LockStripe takes an exclusive advisory lock on the stripe's lock file
// under the storage root. The lock is held by the open file, so it excludes
// other processes and other Stores opened on the same directory, and is
// dropped by the kernel if the holder dies.
func (s *Store) LockStripe(stripe int) (func(), error) {
	if stripe < 0 || stripe >= filepulse.LockStripes {
		return nil, fmt.Errorf("lock stripe %d: %w: out of range", stripe, filepulse.ErrInvalidInput)
	}

	name := path.Join(lockDir, fmt.Sprintf("%03d", stripe))
	f, err := s.root.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock stripe %d: %w", stripe, err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock stripe %d: %w", stripe, err)
	}

	return func() {
		if err := unlockFile(f); err != nil {
			slog.Warn("failed to unlock stripe", "stripe", stripe, "err", err)
		}
		_ = f.Close()
	}, nil
}

func (s *Store) removeTmp(name string) {
	if err := s.root.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove tmp file", "path", name, "err", err)
	}
}
