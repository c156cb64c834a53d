package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/faceguard/internal/database"
)

// EventRepository provides PostgreSQL-backed storage for the append-only
// recognition event log.
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append stores a recognition event.
func (r *EventRepository) Append(ctx context.Context, event database.RecognitionEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recognition_events (identity_id, occurred_at, latitude, longitude)
		VALUES ($1, $2, $3, $4)
	`, event.IdentityID, event.OccurredAt, event.Latitude, event.Longitude)
	if err != nil {
		return fmt.Errorf("insert recognition event: %w", err)
	}
	return nil
}

// ListOnDay returns the identity's event timestamps on the given local
// calendar day, ascending. The day boundaries are computed in the server's
// local zone to match the recency window semantics.
func (r *EventRepository) ListOnDay(ctx context.Context, identityID string, day time.Time) ([]time.Time, error) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at
		FROM recognition_events
		WHERE identity_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at
	`, identityID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query events on day: %w", err)
	}
	defer rows.Close()

	var timestamps []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan event timestamp: %w", err)
		}
		timestamps = append(timestamps, t.In(day.Location()))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event timestamps: %w", err)
	}
	return timestamps, nil
}

// Recent returns the newest events joined with identity attributes, newest
// first.
func (r *EventRepository) Recent(ctx context.Context, since *time.Time, limit int) ([]database.EventWithIdentity, error) {
	query := `
		SELECT e.id, e.identity_id, e.occurred_at, e.latitude, e.longitude,
		       i.name, i.surname, i.flagged
		FROM recognition_events e
		JOIN identities i ON i.id = e.identity_id
	`
	args := []any{}
	if since != nil {
		query += " WHERE e.occurred_at >= $1"
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY e.occurred_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []database.EventWithIdentity
	for rows.Next() {
		var e database.EventWithIdentity
		err := rows.Scan(
			&e.ID,
			&e.IdentityID,
			&e.OccurredAt,
			&e.Latitude,
			&e.Longitude,
			&e.Name,
			&e.Surname,
			&e.Flagged,
		)
		if err != nil {
			return nil, fmt.Errorf("scan recent event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent events: %w", err)
	}
	return events, nil
}

// Count returns the total number of recognition events.
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM recognition_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// TopIdentities returns the most-recognized identities with event counts.
func (r *EventRepository) TopIdentities(ctx context.Context, limit int) ([]database.IdentityCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.identity_id, i.name, i.surname, COUNT(*) AS events
		FROM recognition_events e
		JOIN identities i ON i.id = e.identity_id
		GROUP BY e.identity_id, i.name, i.surname
		ORDER BY events DESC, e.identity_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top identities: %w", err)
	}
	defer rows.Close()

	var counts []database.IdentityCount
	for rows.Next() {
		var c database.IdentityCount
		if err := rows.Scan(&c.IdentityID, &c.Name, &c.Surname, &c.Count); err != nil {
			return nil, fmt.Errorf("scan identity count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity counts: %w", err)
	}
	return counts, nil
}

// CountFlaggedIdentities returns how many distinct flagged identities have at
// least one recognition event.
func (r *EventRepository) CountFlaggedIdentities(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT e.identity_id)
		FROM recognition_events e
		JOIN identities i ON i.id = e.identity_id
		WHERE i.flagged
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flagged identities: %w", err)
	}
	return count, nil
}
