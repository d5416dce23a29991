package reminder

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a reminder job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusSent       JobStatus = "SENT"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusSuppressed JobStatus = "SUPPRESSED"
)

// Job is a scheduled, trackable unit of outbound notification work tied to a
// due cycle. Jobs are created by the scheduler and consumed by the
// dispatcher, which writes the delivery outcome back onto the job.
type Job struct {
	ID       uuid.UUID
	CycleID  uuid.UUID
	MemberID uuid.UUID
	GroupID  uuid.UUID
	// TemplateID and Params are handed to the messaging gateway untouched;
	// rendering happens on the gateway side.
	TemplateID   string
	Params       map[string]string
	ScheduledFor time.Time
	Attempts     int
	Status       JobStatus
	// ChannelUsed records which channel ultimately delivered (or last tried).
	ChannelUsed sql.NullString
	SentAt      sql.NullTime
	LastError   sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
