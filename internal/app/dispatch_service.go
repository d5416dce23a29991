package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/messaging"
	"chamaledger/internal/domain/reminder"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DispatchService delivers reminder jobs through a fallback chain of
// channels, WhatsApp first, SMS once after it fails. Transient channel errors
// are retried with exponential backoff up to the attempt cap; permanent ones
// (invalid address) end the attempt immediately. Re-dispatching a job that
// already went out is a no-op returning the stored result, so scheduler-retry
// races cannot double-message a member.
type DispatchService struct {
	jobs     reminder.Repository
	cycles   ledger.CycleRepository
	members  member.Repository
	channels []messaging.Channel
	logger   *logrus.Logger

	// jobLocks serializes Dispatch per job id: an operator-triggered run
	// overlapping the cron tick must not double-send the same job.
	jobLocks *MutexMap

	maxAttempts     int
	initialInterval time.Duration
	sendTimeout     time.Duration
	workers         int
}

// DispatchConfig tunes retry and concurrency behavior.
type DispatchConfig struct {
	// MaxAttempts caps send tries per channel, first try included.
	MaxAttempts int
	// InitialInterval seeds the exponential backoff between retries.
	InitialInterval time.Duration
	// SendTimeout bounds a single gateway call; an attempt exceeding it
	// counts as a transient failure.
	SendTimeout time.Duration
	// Workers bounds dispatch parallelism across independent jobs.
	Workers int
}

func NewDispatchService(
	jr reminder.Repository,
	cr ledger.CycleRepository,
	mr member.Repository,
	channels []messaging.Channel,
	cfg DispatchConfig,
	logger *logrus.Logger,
) *DispatchService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &DispatchService{
		jobs:            jr,
		cycles:          cr,
		members:         mr,
		channels:        channels,
		logger:          logger,
		jobLocks:        NewMutexMap(),
		maxAttempts:     cfg.MaxAttempts,
		initialInterval: cfg.InitialInterval,
		sendTimeout:     cfg.SendTimeout,
		workers:         cfg.Workers,
	}
}

// Dispatch delivers one reminder job and records the outcome on it. Calls
// for the same job id are serialized, so a racing second invocation observes
// the first one's recorded outcome instead of sending again.
func (s *DispatchService) Dispatch(ctx context.Context, jobID uuid.UUID) (messaging.DeliveryResult, error) {
	lock := s.jobLocks.For(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return messaging.DeliveryResult{}, err
	}

	// Idempotence: a finished job returns its stored outcome without
	// touching the gateway again.
	switch job.Status {
	case reminder.JobStatusSent:
		return storedResult(job, true), nil
	case reminder.JobStatusFailed:
		return storedResult(job, false), nil
	case reminder.JobStatusSuppressed:
		return messaging.DeliveryResult{Delivered: false, Timestamp: job.UpdatedAt}, nil
	}

	// A payment may have landed between queueing and dispatch; a paid cycle
	// suppresses the job instead of messaging the member.
	cycle, err := s.cycles.GetByID(ctx, job.CycleID)
	if err != nil {
		return messaging.DeliveryResult{}, fmt.Errorf("load cycle %s for job %s: %w", job.CycleID, jobID, err)
	}
	if cycle.Status == ledger.CycleStatusPaid {
		job.Status = reminder.JobStatusSuppressed
		if err := s.jobs.Update(ctx, job); err != nil {
			return messaging.DeliveryResult{}, fmt.Errorf("suppress job %s: %w", jobID, err)
		}
		s.logger.WithField("job_id", jobID).Info("cycle already paid, job suppressed")
		return messaging.DeliveryResult{Delivered: false, Timestamp: time.Now()}, nil
	}

	m, err := s.members.GetByID(ctx, job.MemberID)
	if err != nil {
		return messaging.DeliveryResult{}, fmt.Errorf("load member %s for job %s: %w", job.MemberID, jobID, err)
	}

	var lastErr error
	for _, ch := range s.channels {
		err := s.sendWithRetry(ctx, ch, m.Phone, job)
		if err == nil {
			now := time.Now()
			job.Status = reminder.JobStatusSent
			job.ChannelUsed = sql.NullString{String: string(ch.Kind()), Valid: true}
			job.SentAt = sql.NullTime{Time: now, Valid: true}
			job.LastError = sql.NullString{}
			if err := s.jobs.Update(ctx, job); err != nil {
				return messaging.DeliveryResult{}, fmt.Errorf("record delivery of job %s: %w", jobID, err)
			}
			s.logger.WithFields(logrus.Fields{
				"job_id":  jobID,
				"channel": ch.Kind(),
			}).Info("reminder delivered")
			return messaging.DeliveryResult{Delivered: true, Channel: ch.Kind(), Timestamp: now}, nil
		}
		lastErr = err
		job.ChannelUsed = sql.NullString{String: string(ch.Kind()), Valid: true}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"job_id":  jobID,
			"channel": ch.Kind(),
		}).Warn("channel delivery failed")
	}

	now := time.Now()
	job.Status = reminder.JobStatusFailed
	job.LastError = sql.NullString{String: lastErr.Error(), Valid: true}
	if err := s.jobs.Update(ctx, job); err != nil {
		return messaging.DeliveryResult{}, fmt.Errorf("record failure of job %s: %w", jobID, err)
	}
	result := messaging.DeliveryResult{Delivered: false, Timestamp: now, Err: lastErr.Error()}
	if job.ChannelUsed.Valid {
		result.Channel = messaging.ChannelKind(job.ChannelUsed.String)
	}
	return result, nil
}

// sendWithRetry tries one channel with exponential backoff on transient
// failures. Permanent errors abort retrying right away.
func (s *DispatchService) sendWithRetry(ctx context.Context, ch messaging.Channel, address string, job *reminder.Job) error {
	operation := func() error {
		job.Attempts++
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		defer cancel()
		err := ch.Send(sendCtx, address, job.TemplateID, job.Params)
		if err != nil && messaging.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	return backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.maxAttempts-1)), ctx))
}

// DispatchDue sends every queued job scheduled at or before now. Jobs run
// concurrently on a bounded worker pool; because a cycle never holds more
// than one queued job, no two workers ever touch the same cycle.
func (s *DispatchService) DispatchDue(ctx context.Context, now time.Time) error {
	due, err := s.jobs.ListQueued(ctx, now)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, job := range due {
		job := job
		g.Go(func() error {
			if _, err := s.Dispatch(ctx, job.ID); err != nil {
				// One failed job must not stop the batch.
				s.logger.WithError(err).WithField("job_id", job.ID).
					Error("dispatch failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func storedResult(job *reminder.Job, delivered bool) messaging.DeliveryResult {
	r := messaging.DeliveryResult{Delivered: delivered}
	if job.ChannelUsed.Valid {
		r.Channel = messaging.ChannelKind(job.ChannelUsed.String)
	}
	if job.SentAt.Valid {
		r.Timestamp = job.SentAt.Time
	} else {
		r.Timestamp = job.UpdatedAt
	}
	if job.LastError.Valid {
		r.Err = job.LastError.String
	}
	return r
}
