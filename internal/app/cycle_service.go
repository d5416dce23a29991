package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CycleService is the due-cycle calculator: given a group policy and a
// reference time it opens one pending cycle per active member per period.
// Re-running it for the same period never creates duplicates; cycles are
// keyed by member, group and period start.
type CycleService struct {
	members member.Repository
	cycles  ledger.CycleRepository
	logger  *logrus.Logger
}

func NewCycleService(mr member.Repository, cr ledger.CycleRepository, logger *logrus.Logger) *CycleService {
	return &CycleService{members: mr, cycles: cr, logger: logger}
}

// EnsureCycles creates the missing due cycles for the period containing now
// and returns how many were created. Failures for one member are logged and
// skipped so the rest of the group still gets processed.
func (s *CycleService) EnsureCycles(ctx context.Context, g *group.Group, now time.Time) (int, error) {
	period := g.Policy.PeriodFor(now)

	active, err := s.members.ListActiveByGroup(ctx, g.ID)
	if err != nil {
		return 0, fmt.Errorf("list active members of group %s: %w", g.ID, err)
	}

	created := 0
	for _, m := range active {
		if m.JoinedAt.After(period.End) || m.JoinedAt.Equal(period.End) {
			continue
		}
		_, err := s.cycles.GetByMemberAndPeriod(ctx, m.ID, g.ID, period.Start)
		if err == nil {
			continue
		}
		if !errors.Is(err, ledger.ErrCycleNotFound) {
			s.logger.WithError(err).WithField("member_id", m.ID).
				Error("cycle lookup failed, skipping member")
			continue
		}

		cycle := &ledger.DueCycle{
			ID:             uuid.New(),
			MemberID:       m.ID,
			GroupID:        g.ID,
			PeriodStart:    period.Start,
			PeriodEnd:      period.End,
			DueAt:          period.DueAt,
			ExpectedAmount: expectedAmountFor(g.Policy, m, period),
			Status:         ledger.CycleStatusPending,
		}
		if err := s.cycles.Create(ctx, cycle); err != nil {
			if errors.Is(err, ledger.ErrDuplicateCycle) {
				// Lost a race with a concurrent run; the cycle exists, which
				// is all idempotence asks for.
				continue
			}
			s.logger.WithError(err).WithField("member_id", m.ID).
				Error("cycle creation failed, skipping member")
			continue
		}
		created++
	}

	if created > 0 {
		s.logger.WithFields(logrus.Fields{
			"group_id":     g.ID,
			"period_start": period.Start.Format("2006-01-02"),
			"created":      created,
		}).Info("due cycles opened")
	}
	return created, nil
}

// expectedAmountFor applies the policy's first-period rule for members who
// joined mid-period: the full amount by default, or a day-based pro-rated
// share when the policy asks for it.
func expectedAmountFor(p group.Policy, m *member.Member, period group.Period) int64 {
	if !p.ProrateFirstPeriod || !m.JoinedAt.After(period.Start) {
		return p.Amount
	}
	totalDays := int64(period.End.Sub(period.Start).Hours() / 24)
	remainingDays := int64(period.End.Sub(m.JoinedAt).Hours()/24) + 1
	if remainingDays > totalDays {
		remainingDays = totalDays
	}
	if remainingDays <= 0 || totalDays <= 0 {
		return p.Amount
	}
	prorated := decimal.NewFromInt(p.Amount).
		Mul(decimal.NewFromInt(remainingDays)).
		Div(decimal.NewFromInt(totalDays)).
		Round(0)
	return prorated.IntPart()
}
