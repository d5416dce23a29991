package ledger

import (
	"time"

	"github.com/google/uuid"
)

// ContributionType classifies a ledger entry.
type ContributionType string

const (
	ContributionTypeRegular ContributionType = "REGULAR"
	ContributionTypePenalty ContributionType = "PENALTY"
	ContributionTypeDeposit ContributionType = "DEPOSIT"
)

// Contribution is one immutable, append-only ledger entry. A member's balance
// is always the exact sum of their contribution amounts, which is why Amount
// is an integer in minor currency units rather than a float.
type Contribution struct {
	ID       uuid.UUID
	MemberID uuid.UUID
	GroupID  uuid.UUID
	// CycleID links the entry to the due cycle it settled, when any was open
	// at recording time.
	CycleID uuid.NullUUID
	Amount  int64
	Type    ContributionType
	// ExternalRef is the payment collaborator's transaction reference. It
	// deduplicates webhook replays: recording the same ref twice returns the
	// original entry instead of double-counting.
	ExternalRef string
	RecordedAt  time.Time
	CreatedAt   time.Time
}
