package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job ID is unknown to the store.
var ErrNotFound = fmt.Errorf("job not found")

// Store is the queue the scheduler works against. The in-memory
// implementation below is the baseline; internal/db provides a durable
// Postgres-backed one with identical semantics.
type Store interface {
	// Insert adds a new pending job to the queue.
	Insert(ctx context.Context, n *Notification) error

	// Due returns copies of all pending jobs with ScheduledFor <= now,
	// in insertion order.
	Due(ctx context.Context, now time.Time) ([]*Notification, error)

	// Pending returns a read-only snapshot of all pending jobs.
	Pending(ctx context.Context) ([]*Notification, error)

	// PendingCount returns the number of pending jobs.
	PendingCount(ctx context.Context) (int, error)

	// MarkDelivered transitions a pending job to delivered and records SentAt.
	// Returns ErrNotPending if the job already reached a terminal state.
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkFailed transitions a pending job to failed and records the cause.
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error

	// PruneTerminal removes terminal jobs whose completion timestamp is
	// before cutoff and returns the removed count. Pending jobs are never
	// removed regardless of age.
	PruneTerminal(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is a mutex-guarded, insertion-ordered in-memory queue.
type MemoryStore struct {
	mu    sync.RWMutex
	order []uuid.UUID
	jobs  map[uuid.UUID]*Notification
}

// NewMemoryStore creates an empty in-memory job queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*Notification),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[n.ID]; exists {
		return fmt.Errorf("job %s already exists", n.ID)
	}

	s.jobs[n.ID] = n.clone()
	s.order = append(s.order, n.ID)
	return nil
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Notification
	for _, id := range s.order {
		n := s.jobs[id]
		if n.Status == StatusPending && !n.ScheduledFor.After(now) {
			due = append(due, n.clone())
		}
	}
	return due, nil
}

func (s *MemoryStore) Pending(ctx context.Context) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*Notification
	for _, id := range s.order {
		n := s.jobs[id]
		if n.Status == StatusPending {
			pending = append(pending, n.clone())
		}
	}
	return pending, nil
}

func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.jobs {
		if n.Status == StatusPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	return n.markDelivered(at)
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	return n.markFailed(cause)
}

func (s *MemoryStore) PruneTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		n := s.jobs[id]
		if n.Terminal() && n.CompletedAt().Before(cutoff) {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}
