package member

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("member not found")
	ErrDuplicatePhone = errors.New("phone number already registered in group")
)

// Repository defines the operations for persisting and retrieving members.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByPhone(ctx context.Context, groupID uuid.UUID, phone string) (*Member, error)
	Update(ctx context.Context, m *Member) error
	ListActiveByGroup(ctx context.Context, groupID uuid.UUID) ([]*Member, error)
	CountByGroup(ctx context.Context, groupID uuid.UUID) (int, error)
}
