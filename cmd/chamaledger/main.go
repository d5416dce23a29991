package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chamaledger/internal/app"
	"chamaledger/internal/domain/messaging"
	"chamaledger/internal/infra/config"
	idb "chamaledger/internal/infra/database"
	ihttp "chamaledger/internal/infra/http"
	"chamaledger/internal/infra/logger"
	imessaging "chamaledger/internal/infra/messaging"
	"chamaledger/internal/infra/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("FATAL: could not load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg)
	log.WithField("environment", cfg.Environment).Info("chama ledger starting")

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("could not connect to database")
	}
	defer db.Close()
	log.Info("database connection established")

	if err := idb.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("could not apply schema migrations")
	}

	memberRepo := idb.NewPostgresMemberRepository(db)
	groupRepo := idb.NewPostgresGroupRepository(db)
	contributionRepo := idb.NewPostgresContributionRepository(db)
	cycleRepo := idb.NewPostgresCycleRepository(db)
	reminderRepo := idb.NewPostgresReminderRepository(db)

	memberLocks := app.NewMutexMap()
	ledgerSvc := app.NewLedgerService(memberRepo, groupRepo, contributionRepo, cycleRepo, reminderRepo, memberLocks, log)
	cycleSvc := app.NewCycleService(memberRepo, cycleRepo, log)
	reminderSvc := app.NewReminderService(memberRepo, groupRepo, cycleRepo, reminderRepo, memberLocks, log)
	reportSvc := app.NewReportService(memberRepo, groupRepo, contributionRepo)

	// The real WhatsApp Business / SMS provider clients implement
	// messaging.Gateway and plug in here; the log gateway keeps development
	// deployments from messaging anyone.
	gateway := imessaging.NewLogGateway(log)
	channels := []messaging.Channel{
		imessaging.NewWhatsAppChannel(gateway, cfg.WhatsAppSender),
		imessaging.NewSMSChannel(gateway, cfg.SMSSender),
	}
	dispatchSvc := app.NewDispatchService(reminderRepo, cycleRepo, memberRepo, channels, app.DispatchConfig{
		MaxAttempts: cfg.DispatchMaxAttempts,
		SendTimeout: cfg.DispatchSendTimeout,
		Workers:     cfg.DispatchWorkers,
	}, log)

	tickScheduler := scheduler.NewTickScheduler(groupRepo, cycleSvc, reminderSvc, dispatchSvc, log, cfg.CronSpecTick)
	if err := tickScheduler.Start(); err != nil {
		log.WithError(err).Fatal("could not start tick scheduler")
	}

	server := ihttp.NewServer(cfg.HTTPAddr, ledgerSvc, reportSvc, log)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	tickScheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown failed")
	}
	log.Info("shut down gracefully")
}
