package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// StreamCacheRepository stores one resolved format per track.
//
// Rows outlive the process, so a restarted player can reuse URLs that have
// not expired yet. Expired rows are ignored by reads and removed by [StreamCacheRepository.Purge].
type StreamCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewStreamCacheRepository creates a new StreamCacheRepository with the given database connection
func NewStreamCacheRepository(db *sql.DB) *StreamCacheRepository {
	return &StreamCacheRepository{db: db, now: time.Now}
}

// Find returns the row for id, or [shared.ErrCacheMiss] when there is none or it has expired.
func (r *StreamCacheRepository) Find(ctx context.Context, id models.TrackID) (*models.CachedFormat, error) {
	query := `
		SELECT track_id, format_id, mime_type, bitrate, url, profile, expires_at
		FROM stream_cache
		WHERE track_id = ?
	`

	f, err := scanCachedFormat(r.db.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached stream: %w", err)
	}
	if !r.now().Before(f.ExpiresAt) {
		return nil, shared.ErrCacheMiss
	}
	return f, nil
}

// Get implements [cache.FormatCache]. Read errors count as misses.
func (r *StreamCacheRepository) Get(ctx context.Context, id models.TrackID) (models.CachedFormat, bool) {
	f, err := r.Find(ctx, id)
	if err != nil {
		return models.CachedFormat{}, false
	}
	return *f, true
}

// Put inserts or replaces the row for f.TrackID.
func (r *StreamCacheRepository) Put(ctx context.Context, f models.CachedFormat) error {
	query := `
		INSERT INTO stream_cache (track_id, format_id, mime_type, bitrate, url, profile, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			format_id = excluded.format_id,
			mime_type = excluded.mime_type,
			bitrate = excluded.bitrate,
			url = excluded.url,
			profile = excluded.profile,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		string(f.TrackID),
		f.FormatID,
		f.MimeType,
		f.Bitrate,
		f.URL,
		f.Profile,
		f.ExpiresAt.UTC(),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache stream: %w", err)
	}
	return nil
}

// Invalidate deletes the row for id. Deleting a missing row is not an error.
func (r *StreamCacheRepository) Invalidate(ctx context.Context, id models.TrackID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stream_cache WHERE track_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to invalidate cached stream: %w", err)
	}
	return nil
}

// List returns every unexpired row, soonest expiry first.
func (r *StreamCacheRepository) List(ctx context.Context) ([]models.CachedFormat, error) {
	query := `
		SELECT track_id, format_id, mime_type, bitrate, url, profile, expires_at
		FROM stream_cache
		WHERE expires_at > ?
		ORDER BY expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list cached streams: %w", err)
	}
	defer rows.Close()

	var formats []models.CachedFormat
	for rows.Next() {
		f, err := scanCachedFormat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cached stream: %w", err)
		}
		formats = append(formats, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached streams: %w", err)
	}
	return formats, nil
}

// Purge deletes expired rows and returns how many were removed.
func (r *StreamCacheRepository) Purge(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stream_cache WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cached streams: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCachedFormat(s scanner) (*models.CachedFormat, error) {
	var (
		f  models.CachedFormat
		id string
	)
	if err := s.Scan(&id, &f.FormatID, &f.MimeType, &f.Bitrate, &f.URL, &f.Profile, &f.ExpiresAt); err != nil {
		return nil, err
	}
	f.TrackID = models.TrackID(id)
	return &f, nil
}
