package member

import (
	"time"

	"github.com/google/uuid"
)

// Member is a registered participant of a savings group. The phone number
// doubles as the delivery address for reminder messages and must be unique
// within the member's group.
type Member struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	Phone     string
	Name      string
	JoinedAt  time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
