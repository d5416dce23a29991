package group

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Frequency is the contribution cadence of a group.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// Policy describes what a group expects from each member per period.
// A policy change never alters an already-created due cycle: cycles copy the
// expected amount at creation time, so edits apply from the next period on.
type Policy struct {
	// Amount is the expected contribution per period in minor currency units.
	Amount    int64
	Frequency Frequency
	// DueDay is the day of month (monthly) or weekday as int (weekly,
	// time.Sunday == 0) on which the contribution falls due.
	DueDay int
	// ProrateFirstPeriod controls the expected amount for members joining
	// mid-period: pro-rated by remaining days when true, full amount when
	// false. Applies to the first period only.
	ProrateFirstPeriod bool
	// LeadTimeDays is how many days before the due date the first reminder
	// goes out.
	LeadTimeDays int
	// MaxReminders caps reminder jobs per cycle, overdue nudges included.
	MaxReminders int
	// OverdueBackoff is the minimum gap between overdue nudges.
	OverdueBackoff time.Duration
}

// Group is a savings association with a shared contribution policy.
type Group struct {
	ID       uuid.UUID
	Name     string
	Currency string
	Policy   Policy
	// LastTickAt records when the scheduler last processed this group. It is
	// persisted so ticks can be replayed deterministically after a crash.
	LastTickAt sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
