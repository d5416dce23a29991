package scheduler

import (
	"context"
	"time"

	"chamaledger/internal/app"
	"chamaledger/internal/domain/group"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const tickTimeout = 10 * time.Minute

// TickScheduler is the single periodic driver of the core: on every cron
// tick it runs the due-cycle calculator, then the reminder scheduler, then
// the dispatcher, group by group. A failing group is logged and skipped so
// the others still get processed; a tick that never ran is simply covered by
// the next invocation (each group's lastTickAt shows the gap).
type TickScheduler struct {
	cronEngine *cron.Cron
	groups     group.Repository
	cycleSvc   *app.CycleService
	reminders  *app.ReminderService
	dispatcher *app.DispatchService
	logger     *logrus.Logger
	cronSpec   string
}

func NewTickScheduler(
	gr group.Repository,
	cycleSvc *app.CycleService,
	reminders *app.ReminderService,
	dispatcher *app.DispatchService,
	logger *logrus.Logger,
	cronSpec string,
) *TickScheduler {
	return &TickScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		groups:     gr,
		cycleSvc:   cycleSvc,
		reminders:  reminders,
		dispatcher: dispatcher,
		logger:     logger,
		cronSpec:   cronSpec,
	}
}

func (s *TickScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		s.RunTick(ctx, time.Now())
	})
	if err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.WithField("cron_spec", s.cronSpec).Info("tick scheduler started")
	return nil
}

// RunTick executes one full pass over all groups. Exposed so operators can
// trigger a catch-up run outside the cron cadence.
func (s *TickScheduler) RunTick(ctx context.Context, now time.Time) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("tick aborted, cannot list groups")
		return
	}

	for _, g := range groups {
		log := s.logger.WithField("group_id", g.ID)

		if _, err := s.cycleSvc.EnsureCycles(ctx, g, now); err != nil {
			log.WithError(err).Error("due-cycle calculation failed, skipping group")
			continue
		}
		if err := s.reminders.Tick(ctx, g, now); err != nil {
			log.WithError(err).Error("reminder tick failed, skipping dispatch for group")
			continue
		}
	}

	// Dispatch runs once for the whole batch; the worker pool bounds
	// parallelism across jobs.
	if err := s.dispatcher.DispatchDue(ctx, now); err != nil {
		s.logger.WithError(err).Error("dispatching queued reminders failed")
	}
}

func (s *TickScheduler) Stop() {
	s.logger.Info("stopping tick scheduler")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("tick scheduler stopped")
}
