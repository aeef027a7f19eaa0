// Package postgres implements the share registry using PostgreSQL
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filepulse"
)

const shareColumns = `code, digest, display_name, size_bytes, origin, created_at, expires_at`

type Repo struct {
	pool      *pgxpool.Pool
	tableName string
	codes     filepulse.CodeGenerator
}

// NewRepo returns a registry on the given table. The table name must
// already be validated.
func NewRepo(pool *pgxpool.Pool, tableName string, codes filepulse.CodeGenerator) *Repo {
	if codes == nil {
		codes = filepulse.RandomCodes{}
	}
	return &Repo{pool: pool, tableName: pgx.Identifier{tableName}.Sanitize(), codes: codes}
}

func scanShare(row pgx.Row) (filepulse.Share, error) {
	var s filepulse.Share
	if err := row.Scan(&s.Code, &s.Digest, &s.DisplayName, &s.Size, &s.Origin, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return filepulse.Share{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}

func (r *Repo) Create(ctx context.Context, s filepulse.NewShare) (filepulse.Share, error) {
	if err := s.Validate(); err != nil {
		return filepulse.Share{}, fmt.Errorf("create: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO NOTHING
		RETURNING %s
	`, r.tableName, shareColumns, shareColumns)

	for attempt := 1; attempt <= filepulse.MaxCodeAttempts; attempt++ {
		code, err := r.codes.Generate()
		if err != nil {
			return filepulse.Share{}, fmt.Errorf("create: %w", err)
		}

		share, err := scanShare(r.pool.QueryRow(ctx, query,
			code, s.Digest, s.DisplayName, s.Size, s.Origin, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
		))
		if err == nil {
			return share, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return filepulse.Share{}, fmt.Errorf("create: insert: %w", err)
		}

		slog.Debug("create: code collision", "attempt", attempt)
	}

	return filepulse.Share{}, fmt.Errorf("create: %w: no unique code after %d attempts", filepulse.ErrConflict, filepulse.MaxCodeAttempts)
}

func (r *Repo) Lookup(ctx context.Context, code string, now time.Time) (filepulse.Share, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code = $1`, shareColumns, r.tableName)

	s, err := scanShare(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filepulse.Share{}, fmt.Errorf("lookup %s: %w", code, filepulse.ErrNotFound)
		}
		return filepulse.Share{}, fmt.Errorf("lookup %s: %w", code, err)
	}

	if !s.IsLive(now) {
		return s, fmt.Errorf("lookup %s: %w", code, filepulse.ErrExpired)
	}

	return s, nil
}

func (r *Repo) CountLiveReferences(ctx context.Context, digest string, now time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE digest = $1 AND expires_at > $2`, r.tableName)

	var count int
	if err := r.pool.QueryRow(ctx, query, digest, now.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count live references: %w", err)
	}

	return count, nil
}

func (r *Repo) DeleteExpired(ctx context.Context, now time.Time) ([]filepulse.Share, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= $1 RETURNING %s`, r.tableName, shareColumns)

	rows, err := r.pool.Query(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}
	defer rows.Close()

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

// FindOrExtend locks the live share with the latest expiry and extends it
// in one statement.
func (r *Repo) FindOrExtend(ctx context.Context, digest string, now time.Time, ttl time.Duration) (filepulse.Share, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET expires_at = GREATEST(expires_at, $1)
		WHERE expires_at > $2 AND code = (
			SELECT code FROM %s
			WHERE digest = $3 AND expires_at > $2
			ORDER BY expires_at DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING %s
	`, r.tableName, r.tableName, shareColumns)

	s, err := scanShare(r.pool.QueryRow(ctx, query, now.Add(ttl).UTC(), now.UTC(), digest))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return filepulse.Share{}, fmt.Errorf("find or extend %s: %w", digest, filepulse.ErrNotFound)
		}
		return filepulse.Share{}, fmt.Errorf("find or extend %s: %w", digest, err)
	}

	return s, nil
}
