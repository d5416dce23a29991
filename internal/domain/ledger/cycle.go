package ledger

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// CycleStatus is the lifecycle state of a due cycle.
type CycleStatus string

const (
	CycleStatusPending  CycleStatus = "PENDING"
	CycleStatusReminded CycleStatus = "REMINDED"
	CycleStatusPaid     CycleStatus = "PAID"
	CycleStatusOverdue  CycleStatus = "OVERDUE"
)

// Open reports whether the status still accepts payments toward the cycle.
func (s CycleStatus) Open() bool {
	return s == CycleStatusPending || s == CycleStatusReminded || s == CycleStatusOverdue
}

// DueCycle is one billing period's expected contribution obligation for one
// member. Exactly one cycle exists per member, group and period start.
type DueCycle struct {
	ID          uuid.UUID
	MemberID    uuid.UUID
	GroupID     uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	DueAt       time.Time
	// ExpectedAmount is copied from the group policy at creation so that
	// policy edits never change an open cycle mid-period.
	ExpectedAmount int64
	// PaidAmount accumulates partial payments; the cycle closes as paid only
	// once PaidAmount reaches ExpectedAmount.
	PaidAmount     int64
	Status         CycleStatus
	ReminderCount  int
	LastRemindedAt sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Settled reports whether the accumulated payments cover the expectation.
func (c *DueCycle) Settled() bool {
	return c.PaidAmount >= c.ExpectedAmount
}

// Outstanding is the amount still owed on the cycle, never negative.
func (c *DueCycle) Outstanding() int64 {
	if c.PaidAmount >= c.ExpectedAmount {
		return 0
	}
	return c.ExpectedAmount - c.PaidAmount
}
