// Package mock provides in-memory implementations of the database
// repositories for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/faceguard/internal/database"
)

// IdentityRepository is an in-memory database.IdentityRepository.
type IdentityRepository struct {
	mu         sync.RWMutex
	identities map[string]*database.Identity

	// Error injection
	SnapshotError error
	GetError      error
	CreateError   error
	UpdateError   error
	DeleteError   error
	CountError    error
}

// NewIdentityRepository creates an empty identity repository.
func NewIdentityRepository() *IdentityRepository {
	return &IdentityRepository{
		identities: make(map[string]*database.Identity),
	}
}

// Add seeds the repository with an identity, bypassing Create errors.
func (m *IdentityRepository) Add(identity database.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = &identity
}

// Snapshot returns all identities sorted by ID.
func (m *IdentityRepository) Snapshot(ctx context.Context) ([]database.Identity, error) {
	if m.SnapshotError != nil {
		return nil, m.SnapshotError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.Identity, 0, len(m.identities))
	for _, identity := range m.identities {
		out = append(out, *identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the identity or nil when not found.
func (m *IdentityRepository) Get(ctx context.Context, id string) (*database.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[id]
	if !ok {
		return nil, nil
	}
	cp := *identity
	return &cp, nil
}

// Create stores a new identity.
func (m *IdentityRepository) Create(ctx context.Context, identity *database.Identity) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identity.ID]; ok {
		return fmt.Errorf("identity %s already exists", identity.ID)
	}
	cp := *identity
	m.identities[identity.ID] = &cp
	return nil
}

// Update replaces an existing identity's attributes.
func (m *IdentityRepository) Update(ctx context.Context, identity *database.Identity) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.identities[identity.ID]
	if !ok {
		return fmt.Errorf("identity %s not found", identity.ID)
	}
	stored.Name = identity.Name
	stored.Surname = identity.Surname
	stored.Email = identity.Email
	stored.PhotoPath = identity.PhotoPath
	stored.Flagged = identity.Flagged
	return nil
}

// UpdateReferenceEmbedding replaces the identity's reference embedding.
func (m *IdentityRepository) UpdateReferenceEmbedding(ctx context.Context, id string, embedding []float32) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.identities[id]
	if !ok {
		return fmt.Errorf("identity %s not found", id)
	}
	stored.Embedding = append([]float32(nil), embedding...)
	return nil
}

// Delete removes an identity.
func (m *IdentityRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, id)
	return nil
}

// Count returns the number of stored identities.
func (m *IdentityRepository) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// EventRepository is an in-memory database.EventRepository.
type EventRepository struct {
	mu     sync.RWMutex
	events []database.RecognitionEvent
	nextID int64

	// Identities joins events with display attributes for Recent.
	Identities *IdentityRepository

	// Error injection
	AppendError error
	ListError   error
}

// NewEventRepository creates an empty event repository.
func NewEventRepository(identities *IdentityRepository) *EventRepository {
	return &EventRepository{nextID: 1, Identities: identities}
}

// Append stores an event.
func (m *EventRepository) Append(ctx context.Context, event database.RecognitionEvent) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	event.ID = m.nextID
	m.nextID++
	m.events = append(m.events, event)
	return nil
}

// ListOnDay returns the identity's event timestamps on the given local day.
func (m *EventRepository) ListOnDay(ctx context.Context, identityID string, day time.Time) ([]time.Time, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	y, mo, d := day.Date()
	var out []time.Time
	for _, e := range m.events {
		if e.IdentityID != identityID {
			continue
		}
		ey, em, ed := e.OccurredAt.Date()
		if ey == y && em == mo && ed == d {
			out = append(out, e.OccurredAt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Recent returns the newest events with identity attributes, newest first.
func (m *EventRepository) Recent(ctx context.Context, since *time.Time, limit int) ([]database.EventWithIdentity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.EventWithIdentity
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if since != nil && e.OccurredAt.Before(*since) {
			continue
		}
		row := database.EventWithIdentity{RecognitionEvent: e}
		if m.Identities != nil {
			if identity, _ := m.Identities.Get(ctx, e.IdentityID); identity != nil {
				row.Name = identity.Name
				row.Surname = identity.Surname
				row.Flagged = identity.Flagged
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Count returns the total number of events.
func (m *EventRepository) Count(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), nil
}

// TopIdentities returns the most-recognized identities, highest count first.
func (m *EventRepository) TopIdentities(ctx context.Context, limit int) ([]database.IdentityCount, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range m.events {
		counts[e.IdentityID]++
	}

	out := make([]database.IdentityCount, 0, len(counts))
	for id, count := range counts {
		row := database.IdentityCount{IdentityID: id, Count: count}
		if m.Identities != nil {
			if identity, _ := m.Identities.Get(ctx, id); identity != nil {
				row.Name = identity.Name
				row.Surname = identity.Surname
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IdentityID < out[j].IdentityID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountFlaggedIdentities counts distinct flagged identities with events.
func (m *EventRepository) CountFlaggedIdentities(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range m.events {
		if _, ok := seen[e.IdentityID]; ok {
			continue
		}
		if m.Identities == nil {
			continue
		}
		identity, _ := m.Identities.Get(ctx, e.IdentityID)
		if identity != nil && identity.Flagged {
			seen[e.IdentityID] = struct{}{}
		}
	}
	return len(seen), nil
}

// SampleRepository is an in-memory database.SampleRepository.
type SampleRepository struct {
	mu      sync.RWMutex
	samples []database.TrainingSample
	nextID  int64

	// Error injection
	AppendError error
	ListError   error
	ClearError  error
}

// NewSampleRepository creates an empty sample repository.
func NewSampleRepository() *SampleRepository {
	return &SampleRepository{nextID: 1}
}

// Append stores a training sample.
func (m *SampleRepository) Append(ctx context.Context, sample database.TrainingSample) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sample.ID = m.nextID
	m.nextID++
	m.samples = append(m.samples, sample)
	return nil
}

// ListByIdentity returns the identity's samples in recorded order.
func (m *SampleRepository) ListByIdentity(ctx context.Context, identityID string) ([]database.TrainingSample, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.TrainingSample
	for _, s := range m.samples {
		if s.IdentityID == identityID {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListAll returns every sample ordered by identity and recorded time.
func (m *SampleRepository) ListAll(ctx context.Context) ([]database.TrainingSample, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]database.TrainingSample(nil), m.samples...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].IdentityID != out[j].IdentityID {
			return out[i].IdentityID < out[j].IdentityID
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

// Clear deletes all samples for an identity.
func (m *SampleRepository) Clear(ctx context.Context, identityID string) error {
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.samples[:0]
	for _, s := range m.samples {
		if s.IdentityID != identityID {
			kept = append(kept, s)
		}
	}
	m.samples = kept
	return nil
}

// AlertRepository is an in-memory database.AlertRepository.
type AlertRepository struct {
	mu      sync.RWMutex
	records []database.AlertRecord
	nextID  int64

	// Error injection
	AppendError error
	ListError   error
}

// NewAlertRepository creates an empty alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{nextID: 1}
}

// Append stores an alert record and assigns its ID.
func (m *AlertRepository) Append(ctx context.Context, record *database.AlertRecord) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	m.nextID++
	m.records = append(m.records, *record)
	return nil
}

// Recent returns the newest alert records, newest first.
func (m *AlertRepository) Recent(ctx context.Context, since *time.Time, limit int) ([]database.AlertRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.AlertRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		if since != nil && r.OccurredAt.Before(*since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
