package database

import (
	"context"
	"time"
)

// IdentityRepository provides access to enrolled identities and their
// reference embeddings.
type IdentityRepository interface {
	// Snapshot returns all enrolled identities including reference
	// embeddings, used as the candidate pool for one recognition call.
	Snapshot(ctx context.Context) ([]Identity, error)
	Get(ctx context.Context, id string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	Update(ctx context.Context, identity *Identity) error
	// UpdateReferenceEmbedding replaces the identity's reference
	// embedding. Invoked exactly once per training buffer flush.
	UpdateReferenceEmbedding(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// EventRepository stores the append-only recognition event log.
type EventRepository interface {
	Append(ctx context.Context, event RecognitionEvent) error
	// ListOnDay returns the timestamps of the identity's events on the
	// given local calendar day, in ascending order. This is the history
	// consumed by the recency guard.
	ListOnDay(ctx context.Context, identityID string, day time.Time) ([]time.Time, error)
	// Recent returns the newest events joined with identity attributes,
	// newest first. since limits results to events at or after the given
	// instant; pass nil for no lower bound.
	Recent(ctx context.Context, since *time.Time, limit int) ([]EventWithIdentity, error)
	Count(ctx context.Context) (int, error)
	// TopIdentities returns the most-recognized identities with their
	// event counts, highest first.
	TopIdentities(ctx context.Context, limit int) ([]IdentityCount, error)
	// CountFlaggedIdentities returns how many distinct flagged identities
	// have at least one recognition event.
	CountFlaggedIdentities(ctx context.Context) (int, error)
}

// SampleRepository persists per-identity training sample buffers.
type SampleRepository interface {
	Append(ctx context.Context, sample TrainingSample) error
	// ListByIdentity returns the identity's buffered samples in recorded
	// order.
	ListByIdentity(ctx context.Context, identityID string) ([]TrainingSample, error)
	// ListAll returns every buffered sample ordered by identity and
	// recorded time, used to restore in-memory buffers at startup.
	ListAll(ctx context.Context) ([]TrainingSample, error)
	// Clear deletes all buffered samples for an identity after a flush.
	Clear(ctx context.Context, identityID string) error
}

// AlertRepository stores the alert dispatch log.
type AlertRepository interface {
	Append(ctx context.Context, record *AlertRecord) error
	Recent(ctx context.Context, since *time.Time, limit int) ([]AlertRecord, error)
}
