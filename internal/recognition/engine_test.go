package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/faceguard/internal/database"
)

type fakeIdentityStore struct {
	identities  []database.Identity
	snapshotErr error

	updatedID        string
	updatedEmbedding []float32
	updateErr        error
}

func (f *fakeIdentityStore) Snapshot(context.Context) ([]database.Identity, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.identities, nil
}

func (f *fakeIdentityStore) UpdateReferenceEmbedding(_ context.Context, id string, embedding []float32) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedID = id
	f.updatedEmbedding = embedding
	return nil
}

type fakeEventStore struct {
	history    map[string][]time.Time
	historyErr error
	appendErr  error

	appended []database.RecognitionEvent
}

func (f *fakeEventStore) Append(_ context.Context, event database.RecognitionEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, event)
	return nil
}

func (f *fakeEventStore) ListOnDay(_ context.Context, identityID string, _ time.Time) ([]time.Time, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[identityID], nil
}

type fakeSampleStore struct {
	appendErr error
	appended  []database.TrainingSample
	cleared   []string
}

func (f *fakeSampleStore) Append(_ context.Context, sample database.TrainingSample) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, sample)
	return nil
}

func (f *fakeSampleStore) Clear(_ context.Context, identityID string) error {
	f.cleared = append(f.cleared, identityID)
	return nil
}

type fakeDispatcher struct {
	notifyErr error
	requests  []AlertRequest
}

func (f *fakeDispatcher) Notify(_ context.Context, req AlertRequest) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.requests = append(f.requests, req)
	return nil
}

type engineFixture struct {
	engine     *Engine
	identities *fakeIdentityStore
	events     *fakeEventStore
	samples    *fakeSampleStore
	alerts     *fakeDispatcher
	trainer    *Trainer
}

func newEngineFixture(identities ...database.Identity) *engineFixture {
	f := &engineFixture{
		identities: &fakeIdentityStore{identities: identities},
		events:     &fakeEventStore{history: map[string][]time.Time{}},
		samples:    &fakeSampleStore{},
		alerts:     &fakeDispatcher{},
		trainer:    NewTrainer(),
	}
	f.engine = NewEngine(f.identities, f.events, f.samples, f.alerts, f.trainer, zerolog.Nop())
	return f
}

func trainedIdentity(id, name string, flagged bool, v float32) database.Identity {
	return database.Identity{
		ID:        id,
		Name:      name,
		Surname:   "Doe",
		Flagged:   flagged,
		Embedding: constantEmbedding(v),
	}
}

func TestRecognizeMatchLogsEventAndTrains(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if len(matches) != 1 {
		t.Fatalf("Recognize() returned %d matches, want 1", len(matches))
	}
	if matches[0].IdentityID != "alice" || matches[0].Score != 1.0 {
		t.Errorf("match = %+v, want alice with score 1.0", matches[0])
	}

	if len(f.events.appended) != 1 {
		t.Fatalf("appended %d events, want 1", len(f.events.appended))
	}
	if f.events.appended[0].IdentityID != "alice" || !f.events.appended[0].OccurredAt.Equal(now) {
		t.Errorf("event = %+v, want alice at %v", f.events.appended[0], now)
	}

	if len(f.samples.appended) != 1 {
		t.Errorf("persisted %d training samples, want 1", len(f.samples.appended))
	}
	if got := f.trainer.BufferLen("alice"); got != 1 {
		t.Errorf("trainer buffer = %d, want 1", got)
	}
	if len(f.alerts.requests) != 0 {
		t.Errorf("issued %d alerts for an unflagged identity, want 0", len(f.alerts.requests))
	}
}

func TestRecognizeNoMatchBelowThreshold(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, -0.1))
	now := time.Now()

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if len(matches) != 0 {
		t.Errorf("Recognize() returned %d matches for an opposite vector, want 0", len(matches))
	}
	if len(f.events.appended) != 0 {
		t.Errorf("appended %d events without a match, want 0", len(f.events.appended))
	}
	if got := f.trainer.BufferLen("alice"); got != 0 {
		t.Errorf("trainer buffer = %d without a match, want 0", got)
	}
}

func TestRecognizeSkipsUntrainedIdentity(t *testing.T) {
	f := newEngineFixture(database.Identity{ID: "alice", Name: "Alice"})
	now := time.Now()

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Recognize() matched an untrained identity")
	}
}

func TestRecognizeMultipleQualifyingMatches(t *testing.T) {
	f := newEngineFixture(
		trainedIdentity("alice", "Alice", false, 0.1),
		trainedIdentity("bob", "Bob", false, 0.1),
	)
	now := time.Now()

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Recognize() returned %d matches, want 2 (matches are not exclusive)", len(matches))
	}
	if len(f.events.appended) != 2 {
		t.Errorf("appended %d events, want 2", len(f.events.appended))
	}
}

func TestRecognizeSkipsMalformedReferenceEmbedding(t *testing.T) {
	bad := database.Identity{ID: "bad", Name: "Bad", Embedding: make([]float32, 64)}
	f := newEngineFixture(bad, trainedIdentity("alice", "Alice", false, 0.1))
	now := time.Now()

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v, want nil (bad identity must be skipped)", err)
	}
	if len(matches) != 1 || matches[0].IdentityID != "alice" {
		t.Errorf("matches = %+v, want only alice", matches)
	}
}

func TestRecognizeRejectsMalformedProbe(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))

	_, err := f.engine.Recognize(context.Background(), make([]float32, 64), time.Now(), Geo{})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Recognize() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestRecognizeSnapshotFailureFailsCall(t *testing.T) {
	f := newEngineFixture()
	f.identities.snapshotErr = errors.New("connection refused")

	_, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), time.Now(), Geo{})
	if err == nil {
		t.Error("Recognize() error = nil, want snapshot failure")
	}
}

func TestRecognizeRecencySuppressesEventNotTraining(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	f.events.history["alice"] = []time.Time{now.Add(-20 * time.Minute)}

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if len(matches) != 1 {
		t.Fatalf("Recognize() returned %d matches, want 1 (recency hides the event, not the match)", len(matches))
	}
	if len(f.events.appended) != 0 {
		t.Errorf("appended %d events inside the dedup window, want 0", len(f.events.appended))
	}
	if got := f.trainer.BufferLen("alice"); got != 1 {
		t.Errorf("trainer buffer = %d, want 1 (training is never deduplicated)", got)
	}
}

func TestRecognizeRecencyCheckFailureStillLogs(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	f.events.historyErr = errors.New("query timeout")

	_, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), time.Now(), Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(f.events.appended) != 1 {
		t.Errorf("appended %d events after a failed recency check, want 1", len(f.events.appended))
	}
}

func TestRecognizeFlaggedIdentityAlerts(t *testing.T) {
	f := newEngineFixture(trainedIdentity("mallory", "Mallory", true, 0.1))
	now := time.Now()

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if len(matches) != 1 || !matches[0].Flagged {
		t.Fatalf("matches = %+v, want one flagged match", matches)
	}
	if len(f.alerts.requests) != 1 {
		t.Fatalf("issued %d alerts, want 1", len(f.alerts.requests))
	}
	req := f.alerts.requests[0]
	if req.IdentityID != "mallory" || req.Score != 1.0 {
		t.Errorf("alert request = %+v, want mallory with score 1.0", req)
	}
}

func TestRecognizeAlertFailureDoesNotInvalidateMatch(t *testing.T) {
	f := newEngineFixture(trainedIdentity("mallory", "Mallory", true, 0.1))
	f.alerts.notifyErr = errors.New("smtp unreachable")

	matches, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), time.Now(), Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("Recognize() returned %d matches despite alert failure, want 1", len(matches))
	}
}

func TestRecognizeTrainingFlushUpdatesReference(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	now := time.Now()

	for i := 0; i < TrainingCapacity; i++ {
		f.events.history["alice"] = []time.Time{now} // keep the event log quiet
		if _, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{}); err != nil {
			t.Fatalf("Recognize() #%d error = %v", i+1, err)
		}
	}

	if f.identities.updatedID != "alice" {
		t.Fatal("reference embedding was not updated after a full training cycle")
	}
	if len(f.identities.updatedEmbedding) != EmbeddingDim {
		t.Errorf("updated embedding has %d values, want %d", len(f.identities.updatedEmbedding), EmbeddingDim)
	}
	if len(f.samples.cleared) != 1 || f.samples.cleared[0] != "alice" {
		t.Errorf("cleared samples = %v, want [alice]", f.samples.cleared)
	}
	if got := f.trainer.BufferLen("alice"); got != 0 {
		t.Errorf("trainer buffer = %d after flush, want 0", got)
	}
}

func TestRecognizeTrainingFlushFailureKeepsBuffer(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	f.identities.updateErr = errors.New("store unavailable")
	now := time.Now()

	for i := 0; i < TrainingCapacity; i++ {
		if _, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{}); err != nil {
			t.Fatalf("Recognize() #%d error = %v", i+1, err)
		}
	}

	if got := f.trainer.BufferLen("alice"); got != TrainingCapacity {
		t.Errorf("trainer buffer = %d after failed flush, want %d", got, TrainingCapacity)
	}
	if len(f.samples.cleared) != 0 {
		t.Errorf("samples were cleared despite a failed reference update")
	}
}

func TestRecognizeGeoPropagates(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	lat, lon := 50.0755, 14.4378

	_, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), time.Now(), Geo{Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(f.events.appended) != 1 {
		t.Fatalf("appended %d events, want 1", len(f.events.appended))
	}
	event := f.events.appended[0]
	if event.Latitude == nil || *event.Latitude != lat || event.Longitude == nil || *event.Longitude != lon {
		t.Errorf("event coordinates = %v/%v, want %v/%v", event.Latitude, event.Longitude, lat, lon)
	}
}

func TestSeedBuffersRestoresTrainingState(t *testing.T) {
	f := newEngineFixture(trainedIdentity("alice", "Alice", false, 0.1))
	now := time.Now()

	samples := make([]database.TrainingSample, TrainingCapacity-1)
	for i := range samples {
		samples[i] = database.TrainingSample{
			IdentityID: "alice",
			Embedding:  constantEmbedding(0.1),
			RecordedAt: now.Add(time.Duration(i) * time.Minute),
		}
	}
	f.engine.SeedBuffers(samples)

	if got := f.trainer.BufferLen("alice"); got != TrainingCapacity-1 {
		t.Fatalf("trainer buffer after seed = %d, want %d", got, TrainingCapacity-1)
	}

	// One more match completes the restored cycle.
	if _, err := f.engine.Recognize(context.Background(), constantEmbedding(0.1), now, Geo{}); err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if f.identities.updatedID != "alice" {
		t.Error("reference embedding was not updated after the seeded cycle completed")
	}
}

func TestTrainRejectsMalformedSample(t *testing.T) {
	f := newEngineFixture()

	err := f.engine.Train(context.Background(), "alice", make([]float32, 12), time.Now())
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Train() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestScoreRoundedToThreeDecimals(t *testing.T) {
	probe := constantEmbedding(0.1)
	ref := constantEmbedding(0.1)
	ref[0] = 0.100001
	f := newEngineFixture(database.Identity{ID: "alice", Name: "Alice", Embedding: ref})

	matches, err := f.engine.Recognize(context.Background(), probe, time.Now(), Geo{})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Recognize() returned %d matches, want 1", len(matches))
	}
	score := matches[0].Score
	if score != roundScore(score) {
		t.Errorf("score %v is not rounded to three decimals", score)
	}
}
