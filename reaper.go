package filepulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// ReaperConfig holds configuration options for Reaper.
type ReaperConfig struct {
	TimeOfDay   string        // Daily sweep time as "HH:MM", local time (default: "02:00")
	Interval    time.Duration // Sweep every Interval instead of daily when > 0
	RunOnStart  bool          // Sweep once as soon as Start is called
	OrphanScan  bool          // Reclaim unreferenced blobs found in the store
	OrphanGrace time.Duration // Minimum blob age for the orphan scan (default: 1h)
	Locks       *DigestLocks  // Must be shared with the Service (default: process-wide)
	Now         func() time.Time
}

// Reaper removes expired shares and reclaims blobs that no live share
// references any more.
type Reaper struct {
	registry    ShareRegistry
	store       ContentStore
	locks       *DigestLocks
	now         func() time.Time
	hour        int
	minute      int
	interval    time.Duration
	runOnStart  bool
	orphanScan  bool
	orphanGrace time.Duration

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var errBlobDelete = errors.New("blob delete failed")

func NewReaper(registry ShareRegistry, store ContentStore, cfg ReaperConfig) (*Reaper, error) {
	timeOfDay := cfg.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "02:00"
	}
	at, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return nil, fmt.Errorf("new reaper: %w: time of day %q: %w", ErrInvalidInput, timeOfDay, err)
	}

	if cfg.Interval < 0 {
		return nil, fmt.Errorf("new reaper: %w: interval cannot be negative", ErrInvalidInput)
	}

	grace := cfg.OrphanGrace
	if grace <= 0 {
		grace = time.Hour
	}

	locks := cfg.Locks
	if locks == nil {
		locks = defaultLocks
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reaper{
		registry:    registry,
		store:       store,
		locks:       locks,
		now:         now,
		hour:        at.Hour(),
		minute:      at.Minute(),
		interval:    cfg.Interval,
		runOnStart:  cfg.RunOnStart,
		orphanScan:  cfg.OrphanScan,
		orphanGrace: grace,
	}, nil
}

// Start launches the schedule loop. It returns an error if the reaper is
// already running. The loop ends when ctx is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("start reaper: already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.loop(loopCtx, done)

	return nil
}

// Stop cancels the schedule loop and waits for an in-flight sweep.
// Calling Stop on a reaper that is not running is a no-op.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NextRun returns the instant of the first scheduled sweep after now.
func (r *Reaper) NextRun(now time.Time) time.Time {
	if r.interval > 0 {
		return now.Add(r.interval)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (r *Reaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if r.runOnStart {
		r.scheduledSweep(ctx)
	}

	for {
		now := r.now()
		next := r.NextRun(now)
		slog.Debug("reaper: next sweep scheduled", "at", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.scheduledSweep(ctx)
		}
	}
}

func (r *Reaper) scheduledSweep(ctx context.Context) {
	_, err := r.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		slog.Warn("reaper: skipping scheduled sweep, another sweep is running")
	case errors.Is(err, context.Canceled):
		slog.Info("reaper: sweep cancelled")
	case err != nil:
		slog.Error("reaper: sweep failed", "err", err)
	}
}

// Sweep runs one reclamation pass now. At most one sweep runs at a time;
// a concurrent call returns ErrSweepInProgress.
//
// The pass performs the following steps, evaluated against a single
// instant captured at its start:
//  1. Deletes every expired share in one batch
//  2. For each digest of those shares, deletes the blob if no live share
//     references it
//  3. When the orphan scan is enabled, does the same for every stored
//     blob older than the orphan grace period
//
// Registry errors abort the pass. Blob delete errors are recorded in
// SweepResult.Failed and left for the orphan scan of a later pass.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepResult{}, fmt.Errorf("sweep: %w", ErrSweepInProgress)
	}
	defer r.running.Store(false)

	started := time.Now()
	now := r.now().UTC()

	var res SweepResult

	expired, err := r.registry.DeleteExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("sweep: delete expired shares: %w", err)
	}
	res.SharesRemoved = len(expired)

	visited := make(map[string]struct{}, len(expired))
	for _, share := range expired {
		if _, ok := visited[share.Digest]; ok {
			continue
		}
		visited[share.Digest] = struct{}{}

		reclaimed, err := r.reclaim(ctx, share.Digest, now)
		if errors.Is(err, errBlobDelete) {
			slog.Warn("reaper: blob delete failed", "digest", share.Digest, "err", err)
			res.Failed = append(res.Failed, share.Digest)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("sweep: %w", err)
		}
		if reclaimed {
			res.BlobsReclaimed++
			res.BytesReclaimed += share.Size
		}
	}

	if r.orphanScan {
		if err := r.scanOrphans(ctx, now, visited, &res); err != nil {
			return res, fmt.Errorf("sweep: %w", err)
		}
	}

	res.Duration = time.Since(started)

	slog.Info("reaper: sweep complete",
		"shares_removed", res.SharesRemoved,
		"blobs_reclaimed", res.BlobsReclaimed,
		"bytes_reclaimed", humanize.IBytes(uint64(res.BytesReclaimed)),
		"orphans_reclaimed", res.OrphansReclaimed,
		"failed", len(res.Failed),
		"duration", res.Duration,
	)

	return res, nil
}

func (r *Reaper) scanOrphans(ctx context.Context, now time.Time, visited map[string]struct{}, res *SweepResult) error {
	blobs, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("orphan scan: %w: %w", ErrStorageFailure, err)
	}

	for _, blob := range blobs {
		if _, ok := visited[blob.Digest]; ok {
			continue
		}
		if now.Sub(blob.ModTime) < r.orphanGrace {
			continue
		}

		reclaimed, err := r.reclaim(ctx, blob.Digest, now)
		if errors.Is(err, errBlobDelete) {
			slog.Warn("reaper: orphan delete failed", "digest", blob.Digest, "err", err)
			res.Failed = append(res.Failed, blob.Digest)
			continue
		}
		if err != nil {
			return fmt.Errorf("orphan scan: %w", err)
		}
		if reclaimed {
			slog.Debug("reaper: orphan reclaimed", "digest", blob.Digest, "size", blob.Size)
			res.OrphansReclaimed++
			res.BytesReclaimed += blob.Size
		}
	}

	return nil
}

// reclaim deletes the blob of digest when no live share references it.
// It reports whether a blob was actually removed.
func (r *Reaper) reclaim(ctx context.Context, digest string, now time.Time) (bool, error) {
	unlock, err := r.locks.Lock(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	defer unlock()

	live, err := r.registry.CountLiveReferences(ctx, digest, now)
	if err != nil {
		return false, fmt.Errorf("count references of %s: %w: %w", digest, ErrStorageFailure, err)
	}
	if live > 0 {
		return false, nil
	}

	err = r.store.Delete(ctx, digest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s: %w", errBlobDelete, digest, err)
	}
}
