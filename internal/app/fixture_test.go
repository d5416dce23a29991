package app

import (
	"context"
	"io"
	"testing"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/reminder"
	"chamaledger/internal/infra/database/memory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fixture wires the services against in-memory repositories.
type fixture struct {
	members  *memory.MemberRepository
	groups   *memory.GroupRepository
	contribs *memory.ContributionRepository
	cycles   *memory.CycleRepository
	jobs     *memory.ReminderRepository

	ledger     *LedgerService
	calculator *CycleService
	reminders  *ReminderService
	reports    *ReportService

	locks  *MutexMap
	logger *logrus.Logger
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		members:  memory.NewMemberRepository(),
		groups:   memory.NewGroupRepository(),
		contribs: memory.NewContributionRepository(),
		cycles:   memory.NewCycleRepository(),
		jobs:     memory.NewReminderRepository(),
	}
	f.locks = NewMutexMap()
	f.logger = logger
	f.ledger = NewLedgerService(f.members, f.groups, f.contribs, f.cycles, f.jobs, f.locks, logger)
	f.calculator = NewCycleService(f.members, f.cycles, logger)
	f.reminders = NewReminderService(f.members, f.groups, f.cycles, f.jobs, f.locks, logger)
	f.reports = NewReportService(f.members, f.groups, f.contribs)
	return f
}

func (f *fixture) mustGroup(t *testing.T, policy group.Policy) *group.Group {
	t.Helper()
	g, err := f.ledger.CreateGroup(context.Background(), "Umoja Savings", "KES", policy)
	require.NoError(t, err)
	return g
}

func (f *fixture) mustMember(t *testing.T, g *group.Group, phone, name string, joinedAt time.Time) *member.Member {
	t.Helper()
	m, err := f.ledger.RegisterMember(context.Background(), g.ID, phone, name, joinedAt)
	require.NoError(t, err)
	return m
}

// drainQueued marks every queued job as sent, standing in for a dispatcher
// run between scheduler ticks.
func (f *fixture) drainQueued(t *testing.T, now time.Time) {
	t.Helper()
	for _, j := range f.jobs.All() {
		if j.Status != reminder.JobStatusQueued {
			continue
		}
		j.Status = reminder.JobStatusSent
		j.SentAt.Time = now
		j.SentAt.Valid = true
		require.NoError(t, f.jobs.Update(context.Background(), j))
	}
}

func monthlyPolicy(amount int64, dueDay int) group.Policy {
	return group.Policy{
		Amount:    amount,
		Frequency: group.FrequencyMonthly,
		DueDay:    dueDay,
	}
}
