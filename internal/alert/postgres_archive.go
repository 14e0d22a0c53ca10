package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive stores alert events in the alert_events table.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

var _ Archive = (*PostgresArchive)(nil)

// NewPostgresArchive creates a new PostgreSQL alert archive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// Append inserts an event. Re-inserting the same event ID is a no-op.
func (a *PostgresArchive) Append(ctx context.Context, e Event) error {
	query := `
		INSERT INTO alert_events (id, user_id, kind, lat, lon, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := a.pool.Exec(ctx, query, e.ID, e.UserID, string(e.Kind), e.Location.Lat, e.Location.Lon, e.Timestamp); err != nil {
		return fmt.Errorf("archiving alert %s: %w", e.ID, err)
	}
	return nil
}

// ListByUser returns the newest archived events for a user, newest first.
func (a *PostgresArchive) ListByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > MaxRecentWindow {
		limit = MaxRecentWindow
	}

	query := `
		SELECT id, user_id, kind, lat, lon, raised_at
		FROM alert_events
		WHERE user_id = $1
		ORDER BY raised_at DESC
		LIMIT $2
	`

	rows, err := a.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			kind     string
			raisedAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Location.Lat, &e.Location.Lon, &raisedAt); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		e.Kind = Kind(kind)
		e.Timestamp = raisedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return events, nil
}

// schema creates the alert_events table and its lookup index.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_events (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL CHECK (kind IN ('SOS', 'DEVIATION')),
		lat        DOUBLE PRECISION NOT NULL,
		lon        DOUBLE PRECISION NOT NULL,
		raised_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS alert_events_user_raised_idx ON alert_events (user_id, raised_at DESC)`,
}

// EnsureSchema creates the alert_events table if it does not exist.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating alert schema: %w", err)
		}
	}
	return nil
}
