package filepulse

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// LockStripes is the number of stripes a DigestLocks hashes digests onto.
const LockStripes = 256

// StripeLocker extends a stripe lock beyond the current process, so that
// separate processes working on the same storage exclude each other.
type StripeLocker interface {
	LockStripe(stripe int) (unlock func(), err error)
}

// DigestLocks serialises work on a single digest: an upload holds the
// lock of its digest while it promotes the blob and inserts the share, the
// reaper while it counts live references and deletes the blob. Unrelated
// digests usually land on different stripes and proceed in parallel.
//
// The zero value only excludes goroutines of one process. Use
// NewDigestLocks with the content store's StripeLocker when a sweep or a
// local add may run next to the server. Service and Reaper must share one
// instance; both fall back to a process-wide table when none is given.
type DigestLocks struct {
	stripes [LockStripes]sync.Mutex
	shared  StripeLocker
}

var defaultLocks = new(DigestLocks)

// NewDigestLocks returns a lock table whose stripes are also held through
// shared, which may be nil.
func NewDigestLocks(shared StripeLocker) *DigestLocks {
	return &DigestLocks{shared: shared}
}

// Lock acquires the stripe of digest and returns its release function.
func (l *DigestLocks) Lock(digest string) (unlock func(), err error) {
	stripe := StripeOf(digest)
	m := &l.stripes[stripe]
	m.Lock()

	if l.shared == nil {
		return m.Unlock, nil
	}

	release, err := l.shared.LockStripe(stripe)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("lock digest %s: %w", digest, err)
	}

	return func() {
		release()
		m.Unlock()
	}, nil
}

// StripeOf returns the stripe digest hashes onto.
func StripeOf(digest string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(digest))
	return int(h.Sum32() % LockStripes)
}
