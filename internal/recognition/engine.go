package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
	"github.com/kozaktomas/faceguard/internal/metrics"
)

// IdentityStore is the engine's view of identity persistence.
type IdentityStore interface {
	Snapshot(ctx context.Context) ([]database.Identity, error)
	UpdateReferenceEmbedding(ctx context.Context, id string, embedding []float32) error
}

// EventStore is the engine's view of the recognition event log.
type EventStore interface {
	Append(ctx context.Context, event database.RecognitionEvent) error
	ListOnDay(ctx context.Context, identityID string, day time.Time) ([]time.Time, error)
}

// SampleStore is the engine's view of training sample persistence.
type SampleStore interface {
	Append(ctx context.Context, sample database.TrainingSample) error
	Clear(ctx context.Context, identityID string) error
}

// AlertDispatcher sends notifications for flagged identities. Delivery is
// asynchronous; Notify only has to durably record the dispatch request.
type AlertDispatcher interface {
	Notify(ctx context.Context, req AlertRequest) error
}

// AlertRequest describes one alert dispatch for a flagged identity match.
type AlertRequest struct {
	IdentityID string
	Name       string
	Surname    string
	Score      float64
	OccurredAt time.Time
}

// Match is the result record for one qualifying identity. It is returned to
// the caller of Recognize and never persisted.
type Match struct {
	IdentityID string  `json:"id"`
	Name       string  `json:"name"`
	Surname    string  `json:"surname"`
	Score      float64 `json:"score"`
	Flagged    bool    `json:"flagged"`
	// Token is caller-assigned context (e.g. an issued credential); the
	// engine leaves it empty.
	Token string `json:"token,omitempty"`
}

// Geo carries optional probe coordinates for the recognition event log.
type Geo struct {
	Latitude  *float64
	Longitude *float64
}

// Engine orchestrates one recognition call: it scores every enrolled
// identity against the probe, applies the match threshold, deduplicates
// event logging through the recency window, feeds the adaptive trainer and
// requests alerts for flagged identities.
type Engine struct {
	identities IdentityStore
	events     EventStore
	samples    SampleStore
	alerts     AlertDispatcher
	trainer    *Trainer
	log        zerolog.Logger
}

// NewEngine creates a recognition engine over the given collaborators.
func NewEngine(identities IdentityStore, events EventStore, samples SampleStore, alerts AlertDispatcher, trainer *Trainer, log zerolog.Logger) *Engine {
	return &Engine{
		identities: identities,
		events:     events,
		samples:    samples,
		alerts:     alerts,
		trainer:    trainer,
		log:        log,
	}
}

// Recognize evaluates the probe embedding against the current identity
// snapshot and returns every qualifying match.
//
// Identities are evaluated independently: several identities may qualify
// against the same probe, and a bad stored embedding only skips that one
// identity. Persistence and notification failures for a single identity are
// logged and isolated; they never abort evaluation of the remaining pool.
// Only a structurally invalid probe or an unavailable identity store fails
// the whole call.
func (e *Engine) Recognize(ctx context.Context, probe []float32, now time.Time, geo Geo) ([]Match, error) {
	if len(probe) != EmbeddingDim {
		return nil, fmt.Errorf("%w: probe has %d values, want %d",
			ErrDimensionMismatch, len(probe), EmbeddingDim)
	}

	identities, err := e.identities.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading identity snapshot: %w", err)
	}

	metrics.RecognitionsTotal.Inc()

	var matches []Match
	for i := range identities {
		identity := &identities[i]
		if !identity.Trained() {
			continue
		}

		score, err := HybridScore(probe, identity.Embedding)
		if err != nil {
			// One malformed stored vector must not block matching
			// against the rest of the pool.
			if errors.Is(err, ErrDimensionMismatch) {
				e.log.Warn().Str("identity", identity.ID).Err(err).
					Msg("skipping identity with malformed reference embedding")
				continue
			}
			return nil, err
		}

		if score <= MatchThreshold {
			continue
		}

		e.log.Debug().Str("identity", identity.ID).Float64("score", score).Msg("qualifying match")
		e.logEvent(ctx, identity, now, geo)
		e.train(ctx, identity.ID, probe, now)

		if identity.Flagged {
			e.dispatchAlert(ctx, identity, score, now)
		}

		metrics.MatchesTotal.Inc()
		matches = append(matches, Match{
			IdentityID: identity.ID,
			Name:       identity.Name,
			Surname:    identity.Surname,
			Score:      roundScore(score),
			Flagged:    identity.Flagged,
		})
	}

	return matches, nil
}

// logEvent appends a recognition event unless the identity was already
// logged inside the current dedup window.
func (e *Engine) logEvent(ctx context.Context, identity *database.Identity, now time.Time, geo Geo) {
	history, err := e.events.ListOnDay(ctx, identity.ID, now)
	if err != nil {
		// Fail open: a missing history check must not drop the event.
		e.log.Warn().Str("identity", identity.ID).Err(err).Msg("recency check failed")
	}
	if RecentlyLogged(now, history) {
		return
	}

	event := database.RecognitionEvent{
		IdentityID: identity.ID,
		OccurredAt: now,
		Latitude:   geo.Latitude,
		Longitude:  geo.Longitude,
	}
	if err := e.events.Append(ctx, event); err != nil {
		e.log.Error().Str("identity", identity.ID).Err(err).Msg("appending recognition event failed")
	}
}

// train records the probe as a confirmed training sample and flushes the
// identity's buffer when it reaches capacity. Training runs on every
// qualifying match, including ones suppressed by the recency window.
func (e *Engine) train(ctx context.Context, identityID string, probe []float32, now time.Time) {
	sample := database.TrainingSample{
		IdentityID: identityID,
		Embedding:  probe,
		RecordedAt: now,
	}
	if err := e.samples.Append(ctx, sample); err != nil {
		e.log.Error().Str("identity", identityID).Err(err).Msg("persisting training sample failed")
	}

	flushed, err := e.trainer.Record(identityID, probe, now, func(mean []float32) error {
		return e.identities.UpdateReferenceEmbedding(ctx, identityID, mean)
	})
	if err != nil {
		e.log.Error().Str("identity", identityID).Err(err).Msg("training flush failed")
		return
	}
	if !flushed {
		return
	}

	metrics.TrainingFlushesTotal.Inc()
	e.log.Info().Str("identity", identityID).Msg("reference embedding recomputed from training buffer")

	// The persisted buffer is cleared after the reference update. If this
	// fails the stale rows are dropped by the next successful flush.
	if err := e.samples.Clear(ctx, identityID); err != nil {
		e.log.Error().Str("identity", identityID).Err(err).Msg("clearing training samples failed")
	}
}

// dispatchAlert issues exactly one alert request for a flagged match. Alerts
// are not deduplicated by the recency window: every detection re-alerts.
// Delivery failures never invalidate the match.
func (e *Engine) dispatchAlert(ctx context.Context, identity *database.Identity, score float64, now time.Time) {
	req := AlertRequest{
		IdentityID: identity.ID,
		Name:       identity.Name,
		Surname:    identity.Surname,
		Score:      roundScore(score),
		OccurredAt: now,
	}
	if err := e.alerts.Notify(ctx, req); err != nil {
		e.log.Error().Str("identity", identity.ID).Err(err).Msg("alert dispatch failed")
		return
	}
	metrics.AlertsTotal.Inc()
}

// Train records a manually confirmed sample for an identity, outside of a
// recognition call. Used by the manual training endpoint and CLI.
func (e *Engine) Train(ctx context.Context, identityID string, embedding []float32, now time.Time) error {
	if len(embedding) != EmbeddingDim {
		return fmt.Errorf("%w: sample has %d values, want %d",
			ErrDimensionMismatch, len(embedding), EmbeddingDim)
	}
	e.train(ctx, identityID, embedding, now)
	return nil
}

// SeedBuffers restores the in-memory training buffers from persisted
// samples. Called once at startup before the engine serves requests.
func (e *Engine) SeedBuffers(samples []database.TrainingSample) {
	grouped := make(map[string][]database.TrainingSample)
	for _, s := range samples {
		grouped[s.IdentityID] = append(grouped[s.IdentityID], s)
	}
	for id, group := range grouped {
		embeddings := make([][]float32, len(group))
		recordedAt := make([]time.Time, len(group))
		for i, s := range group {
			embeddings[i] = s.Embedding
			recordedAt[i] = s.RecordedAt
		}
		e.trainer.Seed(id, embeddings, recordedAt)
	}
}

// Forget drops in-memory training state for a deleted identity.
func (e *Engine) Forget(identityID string) {
	e.trainer.Forget(identityID)
}

// roundScore rounds to three decimals for API responses and alert messages.
func roundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}
