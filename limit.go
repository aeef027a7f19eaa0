package filepulse

import (
	"context"
	"fmt"
	"io"
	"math"
)

// limitedReader fails with ErrTooLarge once more than limit bytes have
// been read, and with the context error once ctx is done.
type limitedReader struct {
	ctx   context.Context
	r     io.Reader
	limit int64
	read  int64
}

func newLimitedReader(ctx context.Context, r io.Reader, limit int64) *limitedReader {
	return &limitedReader{ctx: ctx, r: r, limit: limit}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if err := l.ctx.Err(); err != nil {
		return 0, err
	}

	// Allow one byte past the limit so an exact-size stream is not rejected.
	// rem+1 overflows when nothing has been read under a math.MaxInt64 limit.
	if rem := l.limit - l.read; rem < math.MaxInt64 && int64(len(p)) > rem+1 {
		p = p[:rem+1]
	}

	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, l.limit)
	}
	return n, err
}
