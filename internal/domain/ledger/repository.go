package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount       = errors.New("contribution amount must be positive")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrCycleNotFound       = errors.New("due cycle not found")
	ErrDuplicateCycle      = errors.New("due cycle already exists for member and period")
)

// MemberBalance pairs a member with the sum of their contributions.
type MemberBalance struct {
	MemberID uuid.UUID
	Balance  int64
}

// ContributionRepository defines the append-only contribution log. There is
// deliberately no update or delete: recorded entries are immutable.
type ContributionRepository interface {
	Create(ctx context.Context, c *Contribution) error
	GetByExternalRef(ctx context.Context, groupID uuid.UUID, ref string) (*Contribution, error)
	SumByMember(ctx context.Context, memberID uuid.UUID) (int64, error)
	SumByGroup(ctx context.Context, groupID uuid.UUID) (int64, error)
	SumByGroupSince(ctx context.Context, groupID uuid.UUID, since time.Time) (int64, error)
	ListRecentByGroup(ctx context.Context, groupID uuid.UUID, limit int) ([]*Contribution, error)
	BalancesByGroup(ctx context.Context, groupID uuid.UUID) ([]MemberBalance, error)
}

// CycleRepository defines the operations for due cycles. Create must reject a
// second cycle for the same member, group and period start with
// ErrDuplicateCycle so that calculator re-runs stay idempotent.
type CycleRepository interface {
	Create(ctx context.Context, c *DueCycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*DueCycle, error)
	GetByMemberAndPeriod(ctx context.Context, memberID, groupID uuid.UUID, periodStart time.Time) (*DueCycle, error)
	GetOpenByMember(ctx context.Context, memberID uuid.UUID) (*DueCycle, error)
	ListOpenByGroup(ctx context.Context, groupID uuid.UUID) ([]*DueCycle, error)
	Update(ctx context.Context, c *DueCycle) error
}
