package filepulse

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Share is one issued grant to retrieve a blob by its public code.
type Share struct {
	Code        string    `json:"code"`
	Digest      string    `json:"-"`
	DisplayName string    `json:"display_name"`
	Size        int64     `json:"size"`
	Origin      string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsLive reports whether the share is still valid at the given instant.
func (s Share) IsLive(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// NewShare carries the fields of a share to be created. The registry
// allocates the code.
type NewShare struct {
	Digest      string
	DisplayName string
	Size        int64
	Origin      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Validate checks the fields every registry backend relies on.
func (n NewShare) Validate() error {
	if !IsValidDigest(n.Digest) {
		return fmt.Errorf("validate share: %w: invalid digest", ErrInvalidInput)
	}
	if n.DisplayName == "" {
		return fmt.Errorf("validate share: %w: display name cannot be empty", ErrInvalidInput)
	}
	if n.Size < 0 {
		return fmt.Errorf("validate share: %w: negative size", ErrInvalidInput)
	}
	if !n.ExpiresAt.After(n.CreatedAt) {
		return fmt.Errorf("validate share: %w: expires_at must be after created_at", ErrInvalidInput)
	}
	return nil
}

// BlobInfo describes a finalized blob in the content store.
type BlobInfo struct {
	Digest  string
	Size    int64
	ModTime time.Time
}

// PutResult is returned by a content store write.
type PutResult struct {
	Digest  string
	Size    int64
	Created bool
}

// UploadRequest is the input of the upload pipeline.
type UploadRequest struct {
	Filename string
	Origin   string
	Content  io.Reader
	// DeclaredSize is the size announced by the client, or -1 when unknown.
	DeclaredSize int64
}

// SweepResult summarises one reaper pass.
type SweepResult struct {
	SharesRemoved    int           `json:"shares_removed"`
	BlobsReclaimed   int           `json:"blobs_reclaimed"`
	BytesReclaimed   int64         `json:"bytes_reclaimed"`
	OrphansReclaimed int           `json:"orphans_reclaimed"`
	Failed           []string      `json:"failed,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// DedupPolicy decides what an upload of already-stored content produces.
type DedupPolicy string

const (
	// DedupMint issues a new share (new code, own expiry) for every upload.
	DedupMint DedupPolicy = "mint"
	// DedupExtend reuses the latest live share of the digest and pushes its expiry.
	DedupExtend DedupPolicy = "extend"
)

func (p DedupPolicy) IsValid() bool {
	switch p {
	case DedupMint, DedupExtend:
		return true
	default:
		return false
	}
}

func ParseDedupPolicy(s string) (DedupPolicy, error) {
	p := DedupPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid dedup policy: %s (valid policies: mint, extend)", s)
	}
	return p, nil
}

// Tables holds configurable table names for share storage.
// This allows several deployments to share one database.
type Tables struct {
	Shares string `mapstructure:"shares"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Shares == "" {
		return errors.New("validate tables: shares table name cannot be empty")
	}

	if !IsValidTableName(t.Shares) {
		return fmt.Errorf("validate tables: invalid shares table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Shares)
	}

	return nil
}
