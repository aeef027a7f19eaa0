// Package sqlite implements the share registry using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sagarc03/filepulse"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const shareColumns = `code, digest, display_name, size_bytes, origin, created_at, expires_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type repo struct {
	db        *sql.DB
	tableName string
	codes     filepulse.CodeGenerator
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (filepulse.Share, error) {
	var s filepulse.Share
	var createdAt, expiresAt string

	if err := row.Scan(&s.Code, &s.Digest, &s.DisplayName, &s.Size, &s.Origin, &createdAt, &expiresAt); err != nil {
		return filepulse.Share{}, err
	}

	var err error
	s.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return filepulse.Share{}, fmt.Errorf("parse created_at: %w", err)
	}

	s.ExpiresAt, err = time.Parse(timeLayout, expiresAt)
	if err != nil {
		return filepulse.Share{}, fmt.Errorf("parse expires_at: %w", err)
	}

	return s, nil
}

func (r *repo) Create(ctx context.Context, s filepulse.NewShare) (filepulse.Share, error) {
	if err := s.Validate(); err != nil {
		return filepulse.Share{}, fmt.Errorf("create: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO NOTHING`, quoteIdentifier(r.tableName), shareColumns)

	createdAt := formatTime(s.CreatedAt)
	expiresAt := formatTime(s.ExpiresAt)

	for attempt := 1; attempt <= filepulse.MaxCodeAttempts; attempt++ {
		code, err := r.codes.Generate()
		if err != nil {
			return filepulse.Share{}, fmt.Errorf("create: %w", err)
		}

		result, err := r.db.ExecContext(ctx, query,
			code, s.Digest, s.DisplayName, s.Size, s.Origin, createdAt, expiresAt,
		)
		if err != nil {
			return filepulse.Share{}, fmt.Errorf("create: insert: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return filepulse.Share{}, fmt.Errorf("create: rows affected: %w", err)
		}

		if rowsAffected == 1 {
			return filepulse.Share{
				Code:        code,
				Digest:      s.Digest,
				DisplayName: s.DisplayName,
				Size:        s.Size,
				Origin:      s.Origin,
				CreatedAt:   s.CreatedAt.UTC(),
				ExpiresAt:   s.ExpiresAt.UTC(),
			}, nil
		}

		slog.Debug("create: code collision", "attempt", attempt)
	}

	return filepulse.Share{}, fmt.Errorf("create: %w: no unique code after %d attempts", filepulse.ErrConflict, filepulse.MaxCodeAttempts)
}

func (r *repo) Lookup(ctx context.Context, code string, now time.Time) (filepulse.Share, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code = ?`, shareColumns, quoteIdentifier(r.tableName))

	s, err := scanShare(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filepulse.Share{}, fmt.Errorf("lookup %s: %w", code, filepulse.ErrNotFound)
		}
		return filepulse.Share{}, fmt.Errorf("lookup %s: %w", code, err)
	}

	if !s.IsLive(now) {
		return s, fmt.Errorf("lookup %s: %w", code, filepulse.ErrExpired)
	}

	return s, nil
}

func (r *repo) CountLiveReferences(ctx context.Context, digest string, now time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE digest = ? AND expires_at > ?`, quoteIdentifier(r.tableName))

	var count int
	if err := r.db.QueryRowContext(ctx, query, digest, formatTime(now)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count live references: %w", err)
	}

	return count, nil
}

func (r *repo) DeleteExpired(ctx context.Context, now time.Time) ([]filepulse.Share, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ? RETURNING %s`, quoteIdentifier(r.tableName), shareColumns)

	rows, err := r.db.QueryContext(ctx, query, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	defer func() { _ = rows.Close() }()

	removed := []filepulse.Share{}
	for rows.Next() {
		s, scanErr := scanShare(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("delete expired: scan: %w", scanErr)
		}
		removed = append(removed, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete expired: rows: %w", err)
	}

	return removed, nil
}

// FindOrExtend picks the live share with the latest expiry and extends it
// in one statement, so a concurrent sweep sees it either before or after.
func (r *repo) FindOrExtend(ctx context.Context, digest string, now time.Time, ttl time.Duration) (filepulse.Share, error) {
	table := quoteIdentifier(r.tableName)
	query := fmt.Sprintf(`
		UPDATE %s
		SET expires_at = MAX(expires_at, ?)
		WHERE expires_at > ? AND code = (
			SELECT code FROM %s
			WHERE digest = ? AND expires_at > ?
			ORDER BY expires_at DESC
			LIMIT 1
		)
		RETURNING %s`, table, table, shareColumns)

	nowText := formatTime(now)
	s, err := scanShare(r.db.QueryRowContext(ctx, query, formatTime(now.Add(ttl)), nowText, digest, nowText))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filepulse.Share{}, fmt.Errorf("find or extend %s: %w", digest, filepulse.ErrNotFound)
		}
		return filepulse.Share{}, fmt.Errorf("find or extend %s: %w", digest, err)
	}

	return s, nil
}
