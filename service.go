package filepulse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ShareRegistry defines the persistence of shares. Implementations must be
// safe for concurrent use; code uniqueness is enforced at insertion.
//
// The registry never reads the clock. Every time-dependent method takes
// the instant to evaluate against, so the service and the reaper agree on
// what "now" means.
type ShareRegistry interface {
	// Create allocates a code and inserts the share.
	//
	// Returns:
	//   - Share: The stored share including its code
	//   - error: ErrInvalidInput when the share fails validation,
	//     ErrConflict when no unique code was found in MaxCodeAttempts
	//     tries, or a database error
	Create(ctx context.Context, s NewShare) (Share, error)

	// Lookup fetches a share by code. An expired share is returned
	// together with ErrExpired so callers can still inspect it.
	//
	// Returns:
	//   - error: ErrNotFound if no share has the code, ErrExpired if
	//     expires_at <= now
	Lookup(ctx context.Context, code string, now time.Time) (Share, error)

	// CountLiveReferences counts the shares of digest with expires_at > now.
	CountLiveReferences(ctx context.Context, digest string, now time.Time) (int, error)

	// DeleteExpired removes every share with expires_at <= now in one
	// atomic statement and returns the removed rows.
	DeleteExpired(ctx context.Context, now time.Time) ([]Share, error)

	// FindOrExtend returns the live share of digest with the latest
	// expiry, pushing its expires_at to at least now+ttl.
	//
	// Returns:
	//   - error: ErrNotFound when the digest has no live share
	FindOrExtend(ctx context.Context, digest string, now time.Time, ttl time.Duration) (Share, error)
}

// StagedBlob is content that has been streamed and hashed into the store
// but is not yet addressable by its digest.
type StagedBlob interface {
	Digest() string
	Size() int64
	// Commit makes the blob addressable. It reports false when a blob with
	// the same digest already existed; the staged copy is dropped then.
	Commit() (created bool, err error)
	// Discard drops the staged copy. It is a no-op after Commit.
	Discard() error
}

// ContentStore defines the content-addressed blob storage.
//
// All methods accept a context for cancellation. Implementations must
// remove any partially written data when a write fails or is cancelled.
type ContentStore interface {
	// Put streams r into the store under its digest. Concurrent puts of
	// identical content all succeed and leave exactly one blob.
	Put(ctx context.Context, r io.Reader) (PutResult, error)

	// Stage streams and hashes r without making it addressable yet.
	Stage(ctx context.Context, r io.Reader) (StagedBlob, error)

	// Get opens a blob for reading. The caller closes the reader.
	//
	// Returns:
	//   - error: ErrNotFound if the blob doesn't exist
	Get(ctx context.Context, digest string) (io.ReadSeekCloser, error)

	// Delete removes a blob. It returns ErrNotFound when the blob is
	// already gone, which callers may treat as success.
	Delete(ctx context.Context, digest string) error

	// List returns every finalized blob. Staged data is never listed.
	List(ctx context.Context) ([]BlobInfo, error)
}

// ServiceConfig holds configuration options for Service.
type ServiceConfig struct {
	MaxFileSize    int64         // Upload size limit in bytes (required)
	TTL            time.Duration // Lifetime of a new share (required)
	UploadTimeout  time.Duration // Bound on a whole upload, 0 for none
	CleanupTimeout time.Duration // Timeout for cleanup operations (default: 30s)
	DedupPolicy    DedupPolicy   // default: DedupMint
	Locks          *DigestLocks  // Must be shared with the Reaper (default: process-wide)
	Now            func() time.Time
}

// Service implements the upload and download pipelines on top of a
// ShareRegistry and a ContentStore.
type Service struct {
	registry       ShareRegistry
	store          ContentStore
	locks          *DigestLocks
	now            func() time.Time
	maxFileSize    int64
	ttl            time.Duration
	uploadTimeout  time.Duration
	cleanupTimeout time.Duration
	dedupPolicy    DedupPolicy
}

func NewService(registry ShareRegistry, store ContentStore, cfg ServiceConfig) (*Service, error) {
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("new service: %w: max file size must be positive", ErrInvalidInput)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("new service: %w: ttl must be positive", ErrInvalidInput)
	}
	if cfg.UploadTimeout < 0 {
		return nil, fmt.Errorf("new service: %w: upload timeout cannot be negative", ErrInvalidInput)
	}

	policy := cfg.DedupPolicy
	if policy == "" {
		policy = DedupMint
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("new service: invalid dedup policy: %s", policy)
	}

	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = 30 * time.Second
	}

	locks := cfg.Locks
	if locks == nil {
		locks = defaultLocks
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		registry:       registry,
		store:          store,
		locks:          locks,
		now:            now,
		maxFileSize:    cfg.MaxFileSize,
		ttl:            cfg.TTL,
		uploadTimeout:  cfg.UploadTimeout,
		cleanupTimeout: cleanupTimeout,
		dedupPolicy:    policy,
	}, nil
}

// MaxFileSize returns the configured upload limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Upload stores the content of req and issues a share for it.
//
// The method performs the following steps:
//  1. Sanitizes the filename; nothing is written if that fails
//  2. Rejects a declared size above the limit before reading the body
//  3. Streams the body into the store through a size limiter
//  4. Under the digest lock, promotes the blob and creates the share
//  5. On share failure, deletes the blob if this upload created it
//
// Error types returned:
//   - ErrInvalidName: The filename sanitizes to nothing
//   - ErrTooLarge: The declared or streamed size exceeds the limit
//   - ErrConflict: No unique code could be allocated
//   - ErrStorageFailure: The store or the registry failed
//   - context.Canceled or context.DeadlineExceeded: The upload was
//     cancelled or ran past UploadTimeout
//
// Data consistency: the blob is always finalized before its share exists,
// and a blob created by a failed upload is removed using a background
// context bounded by the cleanup timeout.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, fmt.Errorf("upload: %w", err)
	}

	if req.Content == nil {
		return Share{}, fmt.Errorf("upload: %w: content cannot be nil", ErrInvalidInput)
	}

	name, err := SanitizeFilename(req.Filename)
	if err != nil {
		return Share{}, fmt.Errorf("upload: %w", err)
	}

	if req.DeclaredSize > s.maxFileSize {
		return Share{}, fmt.Errorf("upload %q: %w: declared %d bytes, limit %d", name, ErrTooLarge, req.DeclaredSize, s.maxFileSize)
	}

	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	staged, err := s.store.Stage(ctx, newLimitedReader(ctx, req.Content, s.maxFileSize))
	if err != nil {
		if errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Share{}, fmt.Errorf("upload %q: %w", name, err)
		}
		return Share{}, fmt.Errorf("upload %q: %w: %w", name, ErrStorageFailure, err)
	}

	digest := staged.Digest()
	unlock, err := s.locks.Lock(digest)
	if err != nil {
		_ = staged.Discard()
		return Share{}, fmt.Errorf("upload %q: %w: %w", name, ErrStorageFailure, err)
	}
	defer unlock()

	created, err := staged.Commit()
	if err != nil {
		_ = staged.Discard()
		return Share{}, fmt.Errorf("upload %q: %w: %w", name, ErrStorageFailure, err)
	}

	// Registries keep microseconds; the returned share must match later reads.
	now := s.now().UTC().Truncate(time.Microsecond)

	if s.dedupPolicy == DedupExtend && !created {
		share, findErr := s.registry.FindOrExtend(ctx, digest, now, s.ttl)
		if findErr == nil {
			return share, nil
		}
		if !errors.Is(findErr, ErrNotFound) {
			return Share{}, fmt.Errorf("upload %q: %w: %w", name, ErrStorageFailure, findErr)
		}
	}

	share, createErr := s.registry.Create(ctx, NewShare{
		Digest:      digest,
		DisplayName: name,
		Size:        staged.Size(),
		Origin:      req.Origin,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	if createErr != nil {
		if !errors.Is(createErr, ErrConflict) {
			createErr = fmt.Errorf("%w: %w", ErrStorageFailure, createErr)
		}

		if created {
			// Use background context for cleanup since original context may be cancelled
			cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
			defer cancel()

			if delErr := s.store.Delete(cleanupCtx, digest); delErr != nil {
				slog.Warn("upload: blob cleanup failed, left for the orphan scan", "digest", digest, "err", delErr)
				return Share{}, fmt.Errorf("upload %q: create share failed (%w) and cleanup failed: %w", name, createErr, delErr)
			}
		}
		return Share{}, fmt.Errorf("upload %q: create share failed: %w", name, createErr)
	}

	return share, nil
}

// Info returns the metadata of a live share. Malformed, unknown and
// expired codes are all reported as ErrNotFound.
func (s *Service) Info(ctx context.Context, code string) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, fmt.Errorf("info: %w", err)
	}

	if !IsValidCode(code) {
		return Share{}, fmt.Errorf("info: %w", ErrNotFound)
	}

	share, err := s.registry.Lookup(ctx, code, s.now().UTC())
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		return Share{}, fmt.Errorf("info %s: %w", code, ErrNotFound)
	case err != nil:
		return Share{}, fmt.Errorf("info %s: %w: %w", code, ErrStorageFailure, err)
	}

	return share, nil
}

// Download resolves a code to its share and opens the blob. The caller
// closes the returned reader. A blob that vanished between lookup and open
// is reported as ErrNotFound, like an unknown code.
func (s *Service) Download(ctx context.Context, code string) (Share, io.ReadSeekCloser, error) {
	share, err := s.Info(ctx, code)
	if err != nil {
		return Share{}, nil, fmt.Errorf("download: %w", err)
	}

	f, err := s.store.Get(ctx, share.Digest)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("download: blob missing for live share", "code", code, "digest", share.Digest)
		return Share{}, nil, fmt.Errorf("download %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return Share{}, nil, fmt.Errorf("download %s: %w: %w", code, ErrStorageFailure, err)
	}

	return share, f, nil
}
