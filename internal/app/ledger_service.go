package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LedgerService owns the durable record of members, groups, contributions and
// due cycles.
//
// The locks registry serializes cycle mutations per member: recording a
// contribution, closing a cycle and the scheduler's tick transitions for the
// same member must never interleave, or a payment landing mid-tick could be
// overwritten by a stale view of the cycle. ReminderService shares the same
// registry.
type LedgerService struct {
	members  member.Repository
	groups   group.Repository
	contribs ledger.ContributionRepository
	cycles   ledger.CycleRepository
	jobs     reminder.Repository
	logger   *logrus.Logger
	locks    *MutexMap
}

func NewLedgerService(
	mr member.Repository,
	gr group.Repository,
	cr ledger.ContributionRepository,
	dr ledger.CycleRepository,
	jr reminder.Repository,
	locks *MutexMap,
	logger *logrus.Logger,
) *LedgerService {
	return &LedgerService{
		members:  mr,
		groups:   gr,
		contribs: cr,
		cycles:   dr,
		jobs:     jr,
		logger:   logger,
		locks:    locks,
	}
}

// RecordContributionInput carries one payment confirmation into the ledger.
type RecordContributionInput struct {
	MemberID uuid.UUID
	GroupID  uuid.UUID
	Amount   int64
	Type     ledger.ContributionType
	// ExternalRef is the payment provider's transaction reference; replays
	// with a ref already on the ledger return the original entry.
	ExternalRef string
	RecordedAt  time.Time
}

// RecordContribution appends a contribution to the ledger. A regular payment
// that satisfies the member's open due cycle closes it as paid and suppresses
// any still-queued reminder job, atomically with the write under the
// per-member lock. Validation failures are rejected before anything is
// written.
func (s *LedgerService) RecordContribution(ctx context.Context, in RecordContributionInput) (*ledger.Contribution, error) {
	if in.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	m, err := s.members.GetByID(ctx, in.MemberID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("lookup member %s: %w", in.MemberID, err)
	}
	if m.GroupID != in.GroupID {
		return nil, member.ErrNotFound
	}

	lock := s.locks.For(in.MemberID)
	lock.Lock()
	defer lock.Unlock()

	if in.ExternalRef != "" {
		existing, err := s.contribs.GetByExternalRef(ctx, in.GroupID, in.ExternalRef)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"member_id":    in.MemberID,
				"external_ref": in.ExternalRef,
			}).Info("contribution already recorded, returning existing entry")
			return existing, nil
		}
		if !errors.Is(err, ledger.ErrContributionNotFound) {
			return nil, fmt.Errorf("check external ref %q: %w", in.ExternalRef, err)
		}
	}

	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	contribType := in.Type
	if contribType == "" {
		contribType = ledger.ContributionTypeRegular
	}

	c := &ledger.Contribution{
		ID:          uuid.New(),
		MemberID:    in.MemberID,
		GroupID:     in.GroupID,
		Amount:      in.Amount,
		Type:        contribType,
		ExternalRef: in.ExternalRef,
		RecordedAt:  recordedAt,
	}

	// A regular contribution settles against the member's open cycle.
	// Penalties and deposits never count toward the period expectation.
	if contribType == ledger.ContributionTypeRegular {
		cycle, err := s.cycles.GetOpenByMember(ctx, in.MemberID)
		switch {
		case err == nil:
			c.CycleID = uuid.NullUUID{UUID: cycle.ID, Valid: true}
		case errors.Is(err, ledger.ErrCycleNotFound):
			// No open obligation; the entry still counts toward the balance.
		default:
			return nil, fmt.Errorf("lookup open cycle for member %s: %w", in.MemberID, err)
		}

		if err := s.contribs.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("record contribution: %w", err)
		}

		if c.CycleID.Valid {
			if err := s.applyToCycle(ctx, c.CycleID.UUID, in.Amount); err != nil {
				// The ledger entry is already durable; cycle bookkeeping is
				// surfaced but never rolls the payment back.
				s.logger.WithError(err).WithField("cycle_id", c.CycleID.UUID).
					Error("contribution recorded but cycle update failed")
				return c, fmt.Errorf("apply contribution to cycle: %w", err)
			}
		}
		return c, nil
	}

	if err := s.contribs.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("record contribution: %w", err)
	}
	return c, nil
}

// applyToCycle accumulates the payment and closes the cycle once fully met.
func (s *LedgerService) applyToCycle(ctx context.Context, cycleID uuid.UUID, amount int64) error {
	cycle, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("reload cycle %s: %w", cycleID, err)
	}
	cycle.PaidAmount += amount
	if cycle.Settled() {
		cycle.Status = ledger.CycleStatusPaid
	}
	if err := s.cycles.Update(ctx, cycle); err != nil {
		return fmt.Errorf("update cycle %s: %w", cycleID, err)
	}
	if cycle.Status == ledger.CycleStatusPaid {
		n, err := s.jobs.SuppressQueuedByCycle(ctx, cycleID)
		if err != nil {
			return fmt.Errorf("suppress queued jobs for cycle %s: %w", cycleID, err)
		}
		if n > 0 {
			s.logger.WithFields(logrus.Fields{
				"cycle_id":   cycleID,
				"suppressed": n,
			}).Info("cycle paid, queued reminder suppressed")
		}
	}
	return nil
}

// GetBalance returns the exact sum of the member's recorded contributions in
// minor currency units.
func (s *LedgerService) GetBalance(ctx context.Context, memberID uuid.UUID) (int64, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return 0, err
	}
	sum, err := s.contribs.SumByMember(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("sum contributions for member %s: %w", memberID, err)
	}
	return sum, nil
}

// CloseDueCycle is the explicit mutator of cycle status for the paid and
// overdue outcomes. Closing as paid suppresses queued reminder jobs.
func (s *LedgerService) CloseDueCycle(ctx context.Context, cycleID uuid.UUID, outcome ledger.CycleStatus) error {
	if outcome != ledger.CycleStatusPaid && outcome != ledger.CycleStatusOverdue {
		return fmt.Errorf("invalid close outcome %q", outcome)
	}
	cycle, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return err
	}

	lock := s.locks.For(cycle.MemberID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock; a concurrent payment may have closed it already.
	cycle, err = s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return err
	}
	if cycle.Status == outcome {
		return nil
	}
	// Paid is terminal: a cycle the member has settled is never reopened as
	// overdue.
	if cycle.Status == ledger.CycleStatusPaid {
		return nil
	}
	cycle.Status = outcome
	if err := s.cycles.Update(ctx, cycle); err != nil {
		return fmt.Errorf("close cycle %s as %s: %w", cycleID, outcome, err)
	}
	if outcome == ledger.CycleStatusPaid {
		if _, err := s.jobs.SuppressQueuedByCycle(ctx, cycleID); err != nil {
			return fmt.Errorf("suppress queued jobs for cycle %s: %w", cycleID, err)
		}
	}
	return nil
}

// RegisterMember adds a member to a group. The phone number must be unique
// within the group.
func (s *LedgerService) RegisterMember(ctx context.Context, groupID uuid.UUID, phone, name string, joinedAt time.Time) (*member.Member, error) {
	if phone == "" || name == "" {
		return nil, fmt.Errorf("phone and name are required")
	}
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if _, err := s.members.GetByPhone(ctx, groupID, phone); err == nil {
		return nil, member.ErrDuplicatePhone
	} else if !errors.Is(err, member.ErrNotFound) {
		return nil, fmt.Errorf("check phone uniqueness: %w", err)
	}

	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	m := &member.Member{
		ID:       uuid.New(),
		GroupID:  groupID,
		Phone:    phone,
		Name:     name,
		JoinedAt: joinedAt,
		IsActive: true,
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"member_id": m.ID,
		"group_id":  groupID,
	}).Info("member registered")
	return m, nil
}

// CreateGroup creates a savings group with its contribution policy.
func (s *LedgerService) CreateGroup(ctx context.Context, name, currency string, policy group.Policy) (*group.Group, error) {
	if name == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if policy.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if currency == "" {
		currency = "KES"
	}
	if policy.LeadTimeDays <= 0 {
		policy.LeadTimeDays = 3
	}
	if policy.MaxReminders <= 0 {
		policy.MaxReminders = 3
	}
	if policy.OverdueBackoff <= 0 {
		policy.OverdueBackoff = 48 * time.Hour
	}
	g := &group.Group{
		ID:       uuid.New(),
		Name:     name,
		Currency: currency,
		Policy:   policy,
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}
