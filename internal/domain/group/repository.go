package group

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("group not found")

// Repository defines the operations for persisting and retrieving groups.
type Repository interface {
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	List(ctx context.Context) ([]*Group, error)
	UpdatePolicy(ctx context.Context, id uuid.UUID, p Policy) error
	UpdateLastTickAt(ctx context.Context, id uuid.UUID, tickedAt time.Time) error
}
