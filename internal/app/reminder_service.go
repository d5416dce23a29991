package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	TemplateUpcomingReminder = "contribution_due_soon"
	TemplateOverdueReminder  = "contribution_overdue"
)

// ReminderService scans a group's open due cycles on every tick and drives
// the pending -> reminded -> {paid, overdue} state machine, emitting at most
// one queued reminder job per cycle. Reminders per cycle are capped by the
// group policy so late payers are nudged, not spammed.
type ReminderService struct {
	members member.Repository
	groups  group.Repository
	cycles  ledger.CycleRepository
	jobs    reminder.Repository
	logger  *logrus.Logger
	// locks is shared with LedgerService so a tick transition never
	// interleaves with a contribution write for the same member.
	locks *MutexMap
}

func NewReminderService(
	mr member.Repository,
	gr group.Repository,
	cr ledger.CycleRepository,
	jr reminder.Repository,
	locks *MutexMap,
	logger *logrus.Logger,
) *ReminderService {
	return &ReminderService{members: mr, groups: gr, cycles: cr, jobs: jr, locks: locks, logger: logger}
}

// Tick processes every open cycle of the group against the given reference
// time. One cycle failing never blocks the others: errors are logged and the
// loop moves on. The group's lastTickAt is persisted afterwards so a crashed
// tick is visibly missing and simply re-covered by the next invocation.
func (s *ReminderService) Tick(ctx context.Context, g *group.Group, now time.Time) error {
	open, err := s.cycles.ListOpenByGroup(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("list open cycles for group %s: %w", g.ID, err)
	}

	for _, cycle := range open {
		if err := s.processCycle(ctx, g, cycle, now); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"group_id": g.ID,
				"cycle_id": cycle.ID,
			}).Error("cycle processing failed, continuing with next")
		}
	}

	if err := s.groups.UpdateLastTickAt(ctx, g.ID, now); err != nil {
		return fmt.Errorf("persist lastTickAt for group %s: %w", g.ID, err)
	}
	return nil
}

func (s *ReminderService) processCycle(ctx context.Context, g *group.Group, stale *ledger.DueCycle, now time.Time) error {
	lock := s.locks.For(stale.MemberID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: the group scan's snapshot may predate a
	// concurrent payment, and writing it back would erase that payment.
	cycle, err := s.cycles.GetByID(ctx, stale.ID)
	if err != nil {
		return fmt.Errorf("reload cycle %s: %w", stale.ID, err)
	}
	if !cycle.Status.Open() {
		return nil
	}

	// Paid wins over any reminder decision in the same tick. A cycle whose
	// payments already cover the expectation is closed without emitting.
	if cycle.Settled() {
		cycle.Status = ledger.CycleStatusPaid
		if err := s.cycles.Update(ctx, cycle); err != nil {
			return fmt.Errorf("close settled cycle: %w", err)
		}
		if _, err := s.jobs.SuppressQueuedByCycle(ctx, cycle.ID); err != nil {
			return fmt.Errorf("suppress jobs for settled cycle: %w", err)
		}
		return nil
	}

	leadTime := time.Duration(g.Policy.LeadTimeDays) * 24 * time.Hour

	switch cycle.Status {
	case ledger.CycleStatusPending:
		if now.Before(cycle.DueAt.Add(-leadTime)) {
			return nil
		}
		emitted, err := s.emitReminder(ctx, g, cycle, TemplateUpcomingReminder, now)
		if err != nil {
			return err
		}
		cycle.Status = ledger.CycleStatusReminded
		if emitted {
			return s.advanceCycle(ctx, cycle, now)
		}
		return s.cycles.Update(ctx, cycle)

	case ledger.CycleStatusReminded:
		if !now.After(endOfDay(cycle.DueAt)) {
			return nil
		}
		cycle.Status = ledger.CycleStatusOverdue
		if cycle.ReminderCount < g.Policy.MaxReminders && s.backoffElapsed(cycle, g.Policy.OverdueBackoff, now) {
			emitted, err := s.emitReminder(ctx, g, cycle, TemplateOverdueReminder, now)
			if err != nil {
				return err
			}
			if emitted {
				return s.advanceCycle(ctx, cycle, now)
			}
		}
		return s.cycles.Update(ctx, cycle)

	case ledger.CycleStatusOverdue:
		if cycle.ReminderCount >= g.Policy.MaxReminders {
			return nil
		}
		if !s.backoffElapsed(cycle, g.Policy.OverdueBackoff, now) {
			return nil
		}
		emitted, err := s.emitReminder(ctx, g, cycle, TemplateOverdueReminder, now)
		if err != nil {
			return err
		}
		if emitted {
			return s.advanceCycle(ctx, cycle, now)
		}
	}
	return nil
}

// backoffElapsed reports whether enough time passed since the last nudge.
func (s *ReminderService) backoffElapsed(cycle *ledger.DueCycle, backoff time.Duration, now time.Time) bool {
	if !cycle.LastRemindedAt.Valid {
		return true
	}
	return !now.Before(cycle.LastRemindedAt.Time.Add(backoff))
}

func (s *ReminderService) advanceCycle(ctx context.Context, cycle *ledger.DueCycle, now time.Time) error {
	cycle.ReminderCount++
	cycle.LastRemindedAt = sql.NullTime{Time: now, Valid: true}
	if err := s.cycles.Update(ctx, cycle); err != nil {
		return fmt.Errorf("advance cycle %s: %w", cycle.ID, err)
	}
	return nil
}

// emitReminder queues one job for the cycle unless one is already waiting.
func (s *ReminderService) emitReminder(ctx context.Context, g *group.Group, cycle *ledger.DueCycle, templateID string, now time.Time) (bool, error) {
	_, err := s.jobs.GetQueuedByCycle(ctx, cycle.ID)
	if err == nil {
		s.logger.WithField("cycle_id", cycle.ID).
			Debug("queued reminder already exists, not emitting another")
		return false, nil
	}
	if !errors.Is(err, reminder.ErrJobNotFound) {
		return false, fmt.Errorf("check queued jobs for cycle %s: %w", cycle.ID, err)
	}

	m, err := s.members.GetByID(ctx, cycle.MemberID)
	if err != nil {
		return false, fmt.Errorf("load member %s for reminder: %w", cycle.MemberID, err)
	}

	job := &reminder.Job{
		ID:         uuid.New(),
		CycleID:    cycle.ID,
		MemberID:   m.ID,
		GroupID:    g.ID,
		TemplateID: templateID,
		Params: map[string]string{
			"name":       m.Name,
			"group":      g.Name,
			"currency":   g.Currency,
			"amount_due": strconv.FormatInt(cycle.Outstanding(), 10),
			"due_date":   cycle.DueAt.Format("2006-01-02"),
		},
		ScheduledFor: now,
		Status:       reminder.JobStatusQueued,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, reminder.ErrJobQueued) {
			return false, nil
		}
		return false, fmt.Errorf("queue reminder for cycle %s: %w", cycle.ID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"cycle_id":  cycle.ID,
		"member_id": m.ID,
		"template":  templateID,
	}).Info("reminder job queued")
	return true, nil
}

// endOfDay pins a due date to the last instant of its calendar day, so a
// cycle only turns overdue once the whole due day has passed.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
