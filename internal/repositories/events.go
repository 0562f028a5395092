package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// EventRepository records playback events.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository with the given database connection
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts e, assigning an ID and timestamp when they are empty.
func (r *EventRepository) Create(ctx context.Context, e *models.PlaybackEvent) error {
	if e.SessionID == "" || e.TrackID == "" || e.Kind == "" {
		return fmt.Errorf("%w: event needs a session, track and kind", shared.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = shared.GenerateID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO playback_events (id, session_id, track_id, kind, category, attempt, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.SessionID,
		string(e.TrackID),
		e.Kind,
		e.Category,
		e.Attempt,
		e.Detail,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playback event: %w", err)
	}
	return nil
}

// ListByTrack returns the most recent events for a track, newest first.
func (r *EventRepository) ListByTrack(ctx context.Context, id models.TrackID, limit int) ([]*models.PlaybackEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, track_id, kind, category, attempt, detail, created_at
		FROM playback_events
		WHERE track_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	return r.list(ctx, query, string(id), limit)
}

// ListBySession returns a session's events in the order they happened.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.PlaybackEvent, error) {
	query := `
		SELECT id, session_id, track_id, kind, category, attempt, detail, created_at
		FROM playback_events
		WHERE session_id = ?
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, sessionID)
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]*models.PlaybackEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback events: %w", err)
	}
	defer rows.Close()

	var events []*models.PlaybackEvent
	for rows.Next() {
		var (
			e  models.PlaybackEvent
			id string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &id, &e.Kind, &e.Category, &e.Attempt, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playback event: %w", err)
		}
		e.TrackID = models.TrackID(id)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playback events: %w", err)
	}
	return events, nil
}
