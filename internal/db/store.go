package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
)

// Store is the Postgres-backed job queue. It implements job.Store with the
// same transition semantics as the in-memory queue: terminal transitions are
// enforced with a conditional UPDATE on status = 'pending'.
type Store struct {
	db     *DB
	logger *zap.Logger
}

// NewStore creates a durable job store over the given pool.
func NewStore(db *DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Insert(ctx context.Context, n *job.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO notification_jobs (
			id, user_id, type, payload, scheduled_for, timezone, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err = s.db.Pool().Exec(
		ctx,
		query,
		n.ID,
		n.UserID,
		string(n.Type),
		payload,
		n.ScheduledFor,
		n.Timezone,
		string(n.Status),
		n.CreatedAt,
	)

	if err != nil {
		s.logger.Error("failed to insert job",
			zap.Error(err),
			zap.String("job_id", n.ID.String()),
		)
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

const jobColumns = `
	id, user_id, type, payload, scheduled_for, timezone,
	status, sent_at, error_message, created_at
`

func (s *Store) Due(ctx context.Context, now time.Time) ([]*job.Notification, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY created_at
	`
	return s.queryJobs(ctx, query, now.UTC())
}

func (s *Store) Pending(ctx context.Context) ([]*job.Notification, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = 'pending'
		ORDER BY created_at
	`
	return s.queryJobs(ctx, query)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*job.Notification, error) {
	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Notification
	for rows.Next() {
		var (
			n       job.Notification
			typ     string
			status  string
			payload []byte
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&typ,
			&payload,
			&n.ScheduledFor,
			&n.Timezone,
			&status,
			&n.SentAt,
			&n.ErrorMessage,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		n.Type = job.Type(typ)
		n.Status = job.Status(status)
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", n.ID, err)
		}
		jobs = append(jobs, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.Pool().QueryRow(
		ctx,
		`SELECT COUNT(*) FROM notification_jobs WHERE status = 'pending'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return count, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Pool().Exec(
		ctx,
		`UPDATE notification_jobs
		 SET status = 'delivered', sent_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	tag, err := s.db.Pool().Exec(
		ctx,
		`UPDATE notification_jobs
		 SET status = 'failed', error_message = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, cause,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes a missing job from an illegal re-transition.
func (s *Store) transitionError(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.Pool().QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_jobs WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if !exists {
		return job.ErrNotFound
	}
	return job.ErrNotPending
}

func (s *Store) PruneTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	// Failed jobs carry no completion timestamp; scheduled_for is the fallback.
	tag, err := s.db.Pool().Exec(
		ctx,
		`DELETE FROM notification_jobs
		 WHERE status <> 'pending'
		   AND COALESCE(sent_at, scheduled_for) < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
