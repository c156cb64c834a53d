package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/faceguard/internal/database"
)

// AlertRepository provides PostgreSQL-backed storage for the alert dispatch
// log.
type AlertRepository struct {
	pool *Pool
}

// NewAlertRepository creates a new PostgreSQL alert repository.
func NewAlertRepository(pool *Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Append stores an alert record and assigns its ID.
func (r *AlertRepository) Append(ctx context.Context, record *database.AlertRecord) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO alerts (identity_id, name, surname, score, sent_via, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, record.IdentityID, record.Name, record.Surname, record.Score,
		record.SentVia, record.OccurredAt).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Recent returns the newest alert records, newest first.
func (r *AlertRepository) Recent(ctx context.Context, since *time.Time, limit int) ([]database.AlertRecord, error) {
	query := `
		SELECT id, identity_id, name, surname, score, sent_via, occurred_at
		FROM alerts
	`
	args := []any{}
	if since != nil {
		query += " WHERE occurred_at >= $1"
		args = append(args, *since)
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()

	var records []database.AlertRecord
	for rows.Next() {
		var rec database.AlertRecord
		err := rows.Scan(
			&rec.ID,
			&rec.IdentityID,
			&rec.Name,
			&rec.Surname,
			&rec.Score,
			&rec.SentVia,
			&rec.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return records, nil
}
