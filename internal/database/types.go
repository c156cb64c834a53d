// Package database defines the stored types and repository interfaces for
// identities, recognition events, training samples and alerts.
package database

import "time"

// Identity represents an enrolled person.
type Identity struct {
	ID        string
	Name      string
	Surname   string
	Email     string
	PhotoPath string
	// Flagged marks an identity that must trigger an alert on every
	// qualifying match.
	Flagged bool
	// Embedding is the reference embedding used as the comparison basis.
	// Nil when the identity has never been trained; otherwise exactly
	// recognition.EmbeddingDim values.
	Embedding []float32
	CreatedAt time.Time
}

// Trained reports whether the identity has a reference embedding.
func (i *Identity) Trained() bool {
	return len(i.Embedding) > 0
}

// FullName returns "Name Surname" for display and alert messages.
func (i *Identity) FullName() string {
	if i.Surname == "" {
		return i.Name
	}
	return i.Name + " " + i.Surname
}

// RecognitionEvent is an append-only log entry for a deduplicated match.
// Events are immutable once created and never deleted by this service.
type RecognitionEvent struct {
	ID         int64
	IdentityID string
	OccurredAt time.Time
	Latitude   *float64
	Longitude  *float64
}

// TrainingSample is one confirmed embedding buffered for adaptive training.
// Samples are deleted in bulk when the identity's buffer flushes.
type TrainingSample struct {
	ID         int64
	IdentityID string
	Embedding  []float32
	RecordedAt time.Time
}

// AlertRecord is the persisted log row for an alert dispatch request. It is
// written before delivery is attempted so that a crash between decision and
// delivery is detectable.
type AlertRecord struct {
	ID         int64
	IdentityID string
	Name       string
	Surname    string
	Score      float64
	SentVia    string
	OccurredAt time.Time
}

// EventWithIdentity joins a recognition event with display attributes of the
// matched identity, for boards, maps and report export.
type EventWithIdentity struct {
	RecognitionEvent
	Name    string
	Surname string
	Flagged bool
}

// IdentityCount is an aggregation row for dashboard statistics.
type IdentityCount struct {
	IdentityID string
	Name       string
	Surname    string
	Count      int
}
