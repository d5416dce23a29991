package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound  = errors.New("reminder job not found")
	ErrJobQueued    = errors.New("a queued reminder job already exists for cycle")
)

// Repository defines the reminder job log. The invariant guarded here: a due
// cycle never holds more than one job in QUEUED state, so Create must fail
// with ErrJobQueued when one already exists.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetQueuedByCycle(ctx context.Context, cycleID uuid.UUID) (*Job, error)
	ListQueued(ctx context.Context, dueBy time.Time) ([]*Job, error)
	Update(ctx context.Context, j *Job) error
	// SuppressQueuedByCycle flips any queued job for the cycle to SUPPRESSED
	// and returns how many were affected.
	SuppressQueuedByCycle(ctx context.Context, cycleID uuid.UUID) (int, error)
}
