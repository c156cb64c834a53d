package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceguard/internal/database"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// nullVector scans a nullable vector column. Untrained identities carry a
// NULL reference embedding.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	if err := n.vec.Scan(src); err != nil {
		return err
	}
	n.valid = true
	return nil
}

func (n nullVector) Value() (driver.Value, error) {
	if !n.valid {
		return nil, nil
	}
	return n.vec.Value()
}

func (n nullVector) slice() []float32 {
	if !n.valid {
		return nil
	}
	return n.vec.Slice()
}

func embeddingValue(embedding []float32) nullVector {
	if len(embedding) == 0 {
		return nullVector{}
	}
	return nullVector{vec: pgvector.NewVector(embedding), valid: true}
}

const identityColumns = "id, name, surname, email, photo_path, flagged, embedding, created_at"

func scanIdentity(row interface{ Scan(...any) error }) (*database.Identity, error) {
	var identity database.Identity
	var vec nullVector

	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Surname,
		&identity.Email,
		&identity.PhotoPath,
		&identity.Flagged,
		&vec,
		&identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Embedding = vec.slice()
	return &identity, nil
}

// Snapshot returns all identities with their reference embeddings.
func (r *IdentityRepository) Snapshot(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+identityColumns+" FROM identities ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// Get retrieves an identity by ID, returns nil if not found.
func (r *IdentityRepository) Get(ctx context.Context, id string) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = $1", id)

	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// Create stores a new identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *database.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, name, surname, email, photo_path, flagged, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, identity.ID, identity.Name, identity.Surname, identity.Email, identity.PhotoPath,
		identity.Flagged, embeddingValue(identity.Embedding))
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// Update replaces an identity's attributes. The reference embedding is not
// touched; that goes through UpdateReferenceEmbedding.
func (r *IdentityRepository) Update(ctx context.Context, identity *database.Identity) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities
		SET name = $2, surname = $3, email = $4, photo_path = $5, flagged = $6
		WHERE id = $1
	`, identity.ID, identity.Name, identity.Surname, identity.Email, identity.PhotoPath, identity.Flagged)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return requireRowAffected(result, identity.ID)
}

// UpdateReferenceEmbedding replaces the identity's reference embedding.
func (r *IdentityRepository) UpdateReferenceEmbedding(ctx context.Context, id string, embedding []float32) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE identities SET embedding = $2 WHERE id = $1",
		id, embeddingValue(embedding))
	if err != nil {
		return fmt.Errorf("update reference embedding: %w", err)
	}
	return requireRowAffected(result, id)
}

// Delete removes an identity; events, samples and alerts cascade.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func requireRowAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("identity %s not found", id)
	}
	return nil
}
