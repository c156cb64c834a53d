package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceguard/internal/database"
)

// SampleRepository provides PostgreSQL-backed storage for per-identity
// training sample buffers.
type SampleRepository struct {
	pool *Pool
}

// NewSampleRepository creates a new PostgreSQL sample repository.
func NewSampleRepository(pool *Pool) *SampleRepository {
	return &SampleRepository{pool: pool}
}

// Append stores a training sample.
func (r *SampleRepository) Append(ctx context.Context, sample database.TrainingSample) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO training_samples (identity_id, embedding, recorded_at)
		VALUES ($1, $2, $3)
	`, sample.IdentityID, pgvector.NewVector(sample.Embedding), sample.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert training sample: %w", err)
	}
	return nil
}

func scanSamples(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]database.TrainingSample, error) {
	var samples []database.TrainingSample
	for rows.Next() {
		var s database.TrainingSample
		var vec pgvector.Vector
		if err := rows.Scan(&s.ID, &s.IdentityID, &vec, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan training sample: %w", err)
		}
		s.Embedding = vec.Slice()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training samples: %w", err)
	}
	return samples, nil
}

// ListByIdentity returns the identity's buffered samples in recorded order.
func (r *SampleRepository) ListByIdentity(ctx context.Context, identityID string) ([]database.TrainingSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, identity_id, embedding, recorded_at
		FROM training_samples
		WHERE identity_id = $1
		ORDER BY recorded_at, id
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query training samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// ListAll returns every buffered sample ordered by identity and recorded
// time, used to restore in-memory buffers at startup.
func (r *SampleRepository) ListAll(ctx context.Context) ([]database.TrainingSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, identity_id, embedding, recorded_at
		FROM training_samples
		ORDER BY identity_id, recorded_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query all training samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Clear deletes all buffered samples for an identity after a flush.
func (r *SampleRepository) Clear(ctx context.Context, identityID string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM training_samples WHERE identity_id = $1", identityID)
	if err != nil {
		return fmt.Errorf("clear training samples: %w", err)
	}
	return nil
}
