package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/reminder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises a full month for a monthly group: KES 1000 due on the 28th with a
// 3-day lead time. A member who pays early is never messaged; a member who
// never pays gets an upcoming reminder, turns overdue, and is nudged until
// the per-cycle cap is reached.
func TestTick_MonthlyReminderLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	joined := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	payer := f.mustMember(t, g, "+254722000001", "Achieng", joined)
	latecomer := f.mustMember(t, g, "+254722000002", "Brian", joined)

	created, err := f.calculator.EnsureCycles(ctx, g, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, created)

	// Achieng pays in full on the 5th, well before the reminder window.
	_, err = f.ledger.RecordContribution(ctx, RecordContributionInput{
		MemberID: payer.ID, GroupID: g.ID, Amount: 1000, ExternalRef: "MPESA-A1",
		RecordedAt: time.Date(2025, time.July, 5, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Before the lead window opens nothing is emitted.
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 24, 9, 0, 0, 0, time.UTC)))
	assert.Empty(t, f.jobs.All())

	// July 25th, three days ahead of the due date: the upcoming reminder.
	tick1 := time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.reminders.Tick(ctx, g, tick1))
	jobs := f.jobs.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, latecomer.ID, jobs[0].MemberID)
	assert.Equal(t, TemplateUpcomingReminder, jobs[0].TemplateID)
	assert.Equal(t, "1000", jobs[0].Params["amount_due"])
	assert.Equal(t, "2025-07-28", jobs[0].Params["due_date"])

	cycle, err := f.cycles.GetOpenByMember(ctx, latecomer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusReminded, cycle.Status)
	assert.Equal(t, 1, cycle.ReminderCount)
	f.drainQueued(t, tick1)

	// The due day itself has not fully passed yet, so no escalation.
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 28, 9, 0, 0, 0, time.UTC)))
	assert.Len(t, f.jobs.All(), 1)

	// July 29th: overdue, first nudge.
	tick2 := time.Date(2025, time.July, 29, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.reminders.Tick(ctx, g, tick2))
	jobs = f.jobs.All()
	require.Len(t, jobs, 2)
	assert.Equal(t, TemplateOverdueReminder, jobs[1].TemplateID)

	cycle, err = f.cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusOverdue, cycle.Status)
	assert.Equal(t, 2, cycle.ReminderCount)
	f.drainQueued(t, tick2)

	// Next day is inside the 48h backoff window.
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 30, 9, 0, 0, 0, time.UTC)))
	assert.Len(t, f.jobs.All(), 2)

	// July 31st: backoff elapsed, second nudge. That exhausts the cap.
	tick3 := time.Date(2025, time.July, 31, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.reminders.Tick(ctx, g, tick3))
	assert.Len(t, f.jobs.All(), 3)
	f.drainQueued(t, tick3)

	last := time.Date(2025, time.August, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.August, 2, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, f.reminders.Tick(ctx, g, last))
	assert.Len(t, f.jobs.All(), 3, "reminder cap reached, no further nudges")

	// The early payer never appeared in a single job.
	for _, j := range f.jobs.All() {
		assert.NotEqual(t, payer.ID, j.MemberID)
	}

	g2, err := f.groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, g2.LastTickAt.Valid)
	assert.Equal(t, last, g2.LastTickAt.Time)
}

func TestTick_PaidCycleClosesWithoutEmitting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	m := f.mustMember(t, g, "+254722000003", "Cynthia", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	// A cycle whose payment landed before the tick got to it, reminder job
	// still queued from the previous tick.
	cycle := &ledger.DueCycle{
		ID:             uuid.New(),
		MemberID:       m.ID,
		GroupID:        g.ID,
		PeriodStart:    time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		DueAt:          time.Date(2025, time.July, 28, 0, 0, 0, 0, time.UTC),
		ExpectedAmount: 1000,
		PaidAmount:     1000,
		Status:         ledger.CycleStatusReminded,
		ReminderCount:  1,
	}
	require.NoError(t, f.cycles.Create(ctx, cycle))
	job := &reminder.Job{
		ID:           uuid.New(),
		CycleID:      cycle.ID,
		MemberID:     m.ID,
		GroupID:      g.ID,
		TemplateID:   TemplateUpcomingReminder,
		Params:       map[string]string{"amount_due": "1000"},
		ScheduledFor: time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC),
		Status:       reminder.JobStatusQueued,
	}
	require.NoError(t, f.jobs.Create(ctx, job))

	// Deep into overdue territory, but paid wins.
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 30, 9, 0, 0, 0, time.UTC)))

	got, err := f.cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusPaid, got.Status)

	jobs := f.jobs.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, reminder.JobStatusSuppressed, jobs[0].Status)
}

// A sufficient payment for an overdue cycle ends in paid with the queued job
// suppressed, whether the payment lands before or after the tick.
func TestOverduePaymentAndTick_BothOrderings(t *testing.T) {
	setup := func(t *testing.T) (*fixture, *group.Group, *member.Member, *ledger.DueCycle) {
		f := newFixture()
		ctx := context.Background()
		g := f.mustGroup(t, monthlyPolicy(1000, 28))
		m := f.mustMember(t, g, "+254722000006", "Faith", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
		cycle := &ledger.DueCycle{
			ID:             uuid.New(),
			MemberID:       m.ID,
			GroupID:        g.ID,
			PeriodStart:    time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:      time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
			DueAt:          time.Date(2025, time.July, 28, 0, 0, 0, 0, time.UTC),
			ExpectedAmount: 1000,
			Status:         ledger.CycleStatusOverdue,
			ReminderCount:  2,
			LastRemindedAt: sql.NullTime{Time: time.Date(2025, time.July, 29, 9, 0, 0, 0, time.UTC), Valid: true},
		}
		require.NoError(t, f.cycles.Create(ctx, cycle))
		job := &reminder.Job{
			ID:           uuid.New(),
			CycleID:      cycle.ID,
			MemberID:     m.ID,
			GroupID:      g.ID,
			TemplateID:   TemplateOverdueReminder,
			Params:       map[string]string{"amount_due": "1000"},
			ScheduledFor: cycle.LastRemindedAt.Time,
			Status:       reminder.JobStatusQueued,
		}
		require.NoError(t, f.jobs.Create(ctx, job))
		return f, g, m, cycle
	}

	verify := func(t *testing.T, f *fixture, cycleID uuid.UUID) {
		t.Helper()
		got, err := f.cycles.GetByID(context.Background(), cycleID)
		require.NoError(t, err)
		assert.Equal(t, ledger.CycleStatusPaid, got.Status)
		for _, j := range f.jobs.All() {
			assert.Equal(t, reminder.JobStatusSuppressed, j.Status)
		}
	}

	tickAt := time.Date(2025, time.July, 31, 9, 0, 0, 0, time.UTC)

	t.Run("payment before tick", func(t *testing.T) {
		f, g, m, cycle := setup(t)
		ctx := context.Background()

		_, err := f.ledger.RecordContribution(ctx, RecordContributionInput{
			MemberID: m.ID, GroupID: g.ID, Amount: 1000, ExternalRef: "MPESA-RACE-1",
		})
		require.NoError(t, err)
		require.NoError(t, f.reminders.Tick(ctx, g, tickAt))
		verify(t, f, cycle.ID)
	})

	t.Run("tick before payment", func(t *testing.T) {
		f, g, m, cycle := setup(t)
		ctx := context.Background()

		require.NoError(t, f.reminders.Tick(ctx, g, tickAt))
		_, err := f.ledger.RecordContribution(ctx, RecordContributionInput{
			MemberID: m.ID, GroupID: g.ID, Amount: 1000, ExternalRef: "MPESA-RACE-2",
		})
		require.NoError(t, err)
		verify(t, f, cycle.ID)
	})
}

func TestTick_UndispatchedJobIsNotDuplicated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	m := f.mustMember(t, g, "+254722000004", "David", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.calculator.EnsureCycles(ctx, g, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC)))
	require.Len(t, f.jobs.All(), 1)

	// The job was never dispatched. The overdue transition still happens,
	// but no second job is queued and the cap is not consumed.
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 29, 9, 0, 0, 0, time.UTC)))
	assert.Len(t, f.jobs.All(), 1)

	cycle, err := f.cycles.GetOpenByMember(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusOverdue, cycle.Status)
	assert.Equal(t, 1, cycle.ReminderCount)

	// Once dispatched, the next eligible tick queues the overdue nudge.
	f.drainQueued(t, time.Date(2025, time.July, 29, 10, 0, 0, 0, time.UTC))
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 31, 9, 0, 0, 0, time.UTC)))
	assert.Len(t, f.jobs.All(), 2)
}

// scanHookCycleRepo runs a callback right after the tick's group scan,
// modeling a write that commits between the scan and the per-cycle
// processing.
type scanHookCycleRepo struct {
	ledger.CycleRepository
	afterScan func()
}

func (r *scanHookCycleRepo) ListOpenByGroup(ctx context.Context, groupID uuid.UUID) ([]*ledger.DueCycle, error) {
	out, err := r.CycleRepository.ListOpenByGroup(ctx, groupID)
	if r.afterScan != nil {
		r.afterScan()
	}
	return out, err
}

// A payment that lands after the tick has scanned the group but before it
// processes the cycle must not be overwritten by the tick's stale snapshot:
// the cycle stays paid and no reminder goes out.
func TestTick_PaymentLandingMidTickIsNotClobbered(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	m := f.mustMember(t, g, "+254722000007", "George", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.calculator.EnsureCycles(ctx, g, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	cycle, err := f.cycles.GetOpenByMember(ctx, m.ID)
	require.NoError(t, err)

	hooked := &scanHookCycleRepo{
		CycleRepository: f.cycles,
		afterScan: func() {
			_, err := f.ledger.RecordContribution(ctx, RecordContributionInput{
				MemberID: m.ID, GroupID: g.ID, Amount: 1000, ExternalRef: "MPESA-MIDTICK",
			})
			require.NoError(t, err)
		},
	}
	reminders := NewReminderService(f.members, f.groups, hooked, f.jobs, f.locks, f.logger)

	// Inside the lead window: without the payment this tick would emit the
	// upcoming reminder and move the cycle to reminded.
	require.NoError(t, reminders.Tick(ctx, g, time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC)))

	got, err := f.cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusPaid, got.Status)
	assert.Equal(t, int64(1000), got.PaidAmount)
	assert.Empty(t, f.jobs.All(), "no reminder for a cycle paid mid-tick")
}

// Same interleaving with a reminded cycle holding a queued job: the job stays
// suppressed and no overdue nudge is queued.
func TestTick_MidTickPaymentSuppressionSurvivesOverdueTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	m := f.mustMember(t, g, "+254722000008", "Hassan", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.calculator.EnsureCycles(ctx, g, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, f.reminders.Tick(ctx, g, time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC)))
	cycle, err := f.cycles.GetOpenByMember(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.CycleStatusReminded, cycle.Status)

	hooked := &scanHookCycleRepo{
		CycleRepository: f.cycles,
		afterScan: func() {
			_, err := f.ledger.RecordContribution(ctx, RecordContributionInput{
				MemberID: m.ID, GroupID: g.ID, Amount: 1000, ExternalRef: "MPESA-MIDTICK-2",
			})
			require.NoError(t, err)
		},
	}
	reminders := NewReminderService(f.members, f.groups, hooked, f.jobs, f.locks, f.logger)

	// Past the due day: without the payment this tick would turn the cycle
	// overdue and queue a nudge.
	require.NoError(t, reminders.Tick(ctx, g, time.Date(2025, time.July, 29, 9, 0, 0, 0, time.UTC)))

	got, err := f.cycles.GetByID(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CycleStatusPaid, got.Status)
	assert.Equal(t, int64(1000), got.PaidAmount)

	jobs := f.jobs.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, reminder.JobStatusSuppressed, jobs[0].Status)
}

func TestTick_OneFailingCycleDoesNotBlockOthers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g := f.mustGroup(t, monthlyPolicy(1000, 28))
	m := f.mustMember(t, g, "+254722000005", "Esther", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.calculator.EnsureCycles(ctx, g, time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// A cycle pointing at a member that no longer resolves.
	orphan := &ledger.DueCycle{
		ID:             uuid.New(),
		MemberID:       uuid.New(),
		GroupID:        g.ID,
		PeriodStart:    time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
		DueAt:          time.Date(2025, time.July, 28, 0, 0, 0, 0, time.UTC),
		ExpectedAmount: 1000,
		Status:         ledger.CycleStatusPending,
	}
	require.NoError(t, f.cycles.Create(ctx, orphan))

	now := time.Date(2025, time.July, 25, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.reminders.Tick(ctx, g, now))

	jobs := f.jobs.All()
	require.Len(t, jobs, 1)
	assert.Equal(t, m.ID, jobs[0].MemberID)

	g2, err := f.groups.GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, g2.LastTickAt.Valid, "tick bookkeeping survives a failing cycle")
}
