package recognition

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// TrainingCapacity is the number of confirmed samples collected per identity
// before the reference embedding is recomputed.
const TrainingCapacity = 10

// trainerStripes is the number of lock stripes for per-identity buffers.
// A single global lock would serialize unrelated identities' training
// cycles; striping keeps the critical section per-identity in practice.
const trainerStripes = 64

type trainingSample struct {
	embedding  []float32
	recordedAt time.Time
}

type trainerStripe struct {
	mu      sync.Mutex
	buffers map[string][]trainingSample
}

// Trainer accumulates confirmed embeddings per identity and recomputes the
// identity's reference embedding once TrainingCapacity samples are buffered.
//
// The flush is an unweighted arithmetic mean with no outlier rejection: a
// confirmed false positive pollutes the reference after enough occurrences.
// That trade-off is intentional and must not be "fixed" here with anomaly
// detection.
type Trainer struct {
	stripes [trainerStripes]trainerStripe
}

// NewTrainer creates an empty trainer.
func NewTrainer() *Trainer {
	t := &Trainer{}
	for i := range t.stripes {
		t.stripes[i].buffers = make(map[string][]trainingSample)
	}
	return t
}

func (t *Trainer) stripe(identityID string) *trainerStripe {
	h := fnv.New32a()
	h.Write([]byte(identityID))
	return &t.stripes[h.Sum32()%trainerStripes]
}

// Record appends a confirmed sample to the identity's buffer. When the
// buffer reaches exactly TrainingCapacity samples, the element-wise mean of
// the buffered embeddings is passed to commit; if commit succeeds the buffer
// is cleared and Record reports a flush, otherwise the buffer is left intact
// so the flush can be retried on a later sample.
//
// The whole append-check-flush sequence runs under the identity's lock, so
// two concurrent calls that would each be the capacity-th sample result in
// exactly one flush over exactly TrainingCapacity samples.
func (t *Trainer) Record(identityID string, embedding []float32, recordedAt time.Time, commit func(mean []float32) error) (bool, error) {
	if len(embedding) != EmbeddingDim {
		return false, fmt.Errorf("%w: sample has %d values, want %d",
			ErrDimensionMismatch, len(embedding), EmbeddingDim)
	}

	s := t.stripe(identityID)
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.buffers[identityID], trainingSample{embedding: embedding, recordedAt: recordedAt})
	if len(buf) < TrainingCapacity {
		s.buffers[identityID] = buf
		return false, nil
	}

	vectors := make([][]float32, len(buf))
	for i, sample := range buf {
		vectors[i] = sample.embedding
	}
	mean := Mean(vectors)

	if err := commit(mean); err != nil {
		// Flush must be all-or-nothing: keep the buffer so no sample is
		// lost and the recomputation happens on the next qualifying match.
		s.buffers[identityID] = buf
		return false, fmt.Errorf("committing reference embedding for %s: %w", identityID, err)
	}

	delete(s.buffers, identityID)
	return true, nil
}

// Seed preloads an identity's buffer, oldest first. Used at startup to
// restore buffers persisted by the sample store so a restart does not
// restart the accumulation cycle from zero. At most TrainingCapacity-1 of
// the newest samples are kept: a full buffer only ever flushes through
// Record.
func (t *Trainer) Seed(identityID string, embeddings [][]float32, recordedAt []time.Time) {
	if len(embeddings) >= TrainingCapacity {
		embeddings = embeddings[len(embeddings)-(TrainingCapacity-1):]
		if len(recordedAt) >= TrainingCapacity {
			recordedAt = recordedAt[len(recordedAt)-(TrainingCapacity-1):]
		}
	}

	s := t.stripe(identityID)
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]trainingSample, 0, len(embeddings))
	for i, emb := range embeddings {
		var ts time.Time
		if i < len(recordedAt) {
			ts = recordedAt[i]
		}
		buf = append(buf, trainingSample{embedding: emb, recordedAt: ts})
	}
	s.buffers[identityID] = buf
}

// BufferLen returns the number of samples currently buffered for an identity.
func (t *Trainer) BufferLen(identityID string) int {
	s := t.stripe(identityID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[identityID])
}

// Forget drops any buffered samples for an identity, e.g. after the identity
// was deleted.
func (t *Trainer) Forget(identityID string) {
	s := t.stripe(identityID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, identityID)
}
