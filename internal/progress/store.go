// Package progress holds the in-memory keyed store of download progress
// records and their streaming exposure. The acquisition orchestrator is the
// sole writer; the streaming handler is a read-only observer.
package progress

import (
	"context"
	"sync"
	"time"
)

// Stage is the lifecycle stage of a progress record.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageResolving   Stage = "resolving"
	StageDownloading Stage = "downloading"
	StageProcessing  Stage = "processing"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

// Record is the progress snapshot pushed to clients. Exactly one terminal
// transition occurs per record: completed with a result location, or error
// with a message.
type Record struct {
	ID             string    `json:"id"`
	Stage          Stage     `json:"stage"`
	Percent        int       `json:"percentComplete"`
	ResultLocation string    `json:"resultLocation,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	UpdatedAt      time.Time `json:"lastUpdateTimestamp"`
}

// Terminal reports whether no further transitions will occur.
func (r Record) Terminal() bool {
	return r.Stage == StageCompleted || r.Stage == StageError
}

// Store is the keyed progress store contract. Implementations are
// single-process and not persisted.
type Store interface {
	// Create registers a fresh record at StageQueued. Creating an existing id
	// resets it.
	Create(id string)

	// Update applies mutate to the record, clamping Percent so observed values
	// never regress. It reports false when the record does not exist (e.g.
	// removed by a cancellation).
	Update(id string, mutate func(*Record)) bool

	// Rewind lowers Percent to the given stage-start value. This is the one
	// documented discontinuity, used when the orchestrator restarts at a later
	// strategy.
	Rewind(id string, percent int)

	// Get returns a copy of the record.
	Get(id string) (Record, bool)

	// Remove deletes the record. Removing an absent id is a no-op.
	Remove(id string)
}

// InMemoryStore is the concurrency-safe in-memory Store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Create implements Store.Create.
func (s *InMemoryStore) Create(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = &Record{ID: id, Stage: StageQueued, UpdatedAt: s.now().UTC()}
}

// Update implements Store.Update.
func (s *InMemoryStore) Update(id string, mutate func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}

	prev := rec.Percent
	mutate(rec)
	if rec.Percent < prev {
		rec.Percent = prev
	}
	if rec.Percent > 100 {
		rec.Percent = 100
	}
	rec.UpdatedAt = s.now().UTC()
	return true
}

// Rewind implements Store.Rewind.
func (s *InMemoryStore) Rewind(id string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}
	if percent < 0 {
		percent = 0
	}
	rec.Percent = percent
	rec.UpdatedAt = s.now().UTC()
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Remove implements Store.Remove.
func (s *InMemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// Len returns the number of live records. Used for metrics and tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// StartJanitor reaps terminal records idle beyond maxIdle, covering clients
// that never observe a terminal state. In-flight records are left alone: a
// slow acquisition may go minutes between stage transitions, and reaping its
// record would end the progress stream without a terminal event. Runs until
// ctx is cancelled.
func (s *InMemoryStore) StartJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reap(maxIdle)
			}
		}
	}()
}

func (s *InMemoryStore) reap(maxIdle time.Duration) {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
		}
	}
}
