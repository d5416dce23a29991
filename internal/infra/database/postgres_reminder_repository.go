package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chamaledger/internal/domain/reminder"

	"github.com/google/uuid"
)

const jobColumns = `id, cycle_id, member_id, group_id, template_id, params, scheduled_for,
       attempts, status, channel_used, sent_at, last_error, created_at, updated_at`

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) Create(ctx context.Context, j *reminder.Job) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}
	query := `INSERT INTO reminder_jobs (id, cycle_id, member_id, group_id, template_id, params,
                  scheduled_for, attempts, status, channel_used, sent_at, last_error)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
              RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		j.ID, j.CycleID, j.MemberID, j.GroupID, j.TemplateID, params,
		j.ScheduledFor, j.Attempts, j.Status, j.ChannelUsed, j.SentAt, j.LastError,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "reminder_job_queued_unique") {
			return reminder.ErrJobQueued
		}
		return fmt.Errorf("error creating reminder job: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id uuid.UUID) (*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresReminderRepository) GetQueuedByCycle(ctx context.Context, cycleID uuid.UUID) (*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs
              WHERE cycle_id = $1 AND status = 'QUEUED'
              LIMIT 1`
	return r.getOne(ctx, query, cycleID)
}

func (r *PostgresReminderRepository) ListQueued(ctx context.Context, dueBy time.Time) ([]*reminder.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM reminder_jobs
              WHERE status = 'QUEUED' AND scheduled_for <= $1
              ORDER BY scheduled_for ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, dueBy)
	if err != nil {
		return nil, fmt.Errorf("error querying queued jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*reminder.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

func (r *PostgresReminderRepository) Update(ctx context.Context, j *reminder.Job) error {
	query := `UPDATE reminder_jobs
              SET attempts = $1, status = $2, channel_used = $3, sent_at = $4, last_error = $5, updated_at = NOW()
              WHERE id = $6
              RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		j.Attempts, j.Status, j.ChannelUsed, j.SentAt, j.LastError, j.ID).Scan(&j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reminder.ErrJobNotFound
		}
		return fmt.Errorf("error updating reminder job: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) SuppressQueuedByCycle(ctx context.Context, cycleID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminder_jobs SET status = 'SUPPRESSED', updated_at = NOW()
         WHERE cycle_id = $1 AND status = 'QUEUED'`, cycleID)
	if err != nil {
		return 0, fmt.Errorf("error suppressing queued jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading suppressed row count: %w", err)
	}
	return int(n), nil
}

func (r *PostgresReminderRepository) getOne(ctx context.Context, query string, args ...any) (*reminder.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reminder.ErrJobNotFound
		}
		return nil, fmt.Errorf("error getting reminder job: %w", err)
	}
	return j, nil
}

func scanJob(row rowScanner) (*reminder.Job, error) {
	j := reminder.Job{}
	var params []byte
	err := row.Scan(
		&j.ID, &j.CycleID, &j.MemberID, &j.GroupID, &j.TemplateID, &params, &j.ScheduledFor,
		&j.Attempts, &j.Status, &j.ChannelUsed, &j.SentAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.Params); err != nil {
			return nil, fmt.Errorf("unmarshal job params: %w", err)
		}
	}
	return &j, nil
}
