package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chamaledger/internal/domain/group"

	"github.com/google/uuid"
)

type PostgresGroupRepository struct {
	db *sql.DB
}

func NewPostgresGroupRepository(db *sql.DB) *PostgresGroupRepository {
	return &PostgresGroupRepository{db: db}
}

const groupColumns = `id, name, currency, policy_amount, policy_frequency, policy_due_day,
       policy_prorate_first_period, policy_lead_time_days, policy_max_reminders,
       policy_overdue_backoff_seconds, last_tick_at, created_at, updated_at`

func (r *PostgresGroupRepository) Create(ctx context.Context, g *group.Group) error {
	query := `INSERT INTO groups (id, name, currency, policy_amount, policy_frequency, policy_due_day,
                  policy_prorate_first_period, policy_lead_time_days, policy_max_reminders,
                  policy_overdue_backoff_seconds)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		g.ID, g.Name, g.Currency,
		g.Policy.Amount, g.Policy.Frequency, g.Policy.DueDay,
		g.Policy.ProrateFirstPeriod, g.Policy.LeadTimeDays, g.Policy.MaxReminders,
		int64(g.Policy.OverdueBackoff.Seconds()),
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating group: %w", err)
	}
	return nil
}

func (r *PostgresGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*group.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, group.ErrNotFound
		}
		return nil, fmt.Errorf("error getting group by ID: %w", err)
	}
	return g, nil
}

func (r *PostgresGroupRepository) List(ctx context.Context) ([]*group.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*group.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}
	return groups, nil
}

func (r *PostgresGroupRepository) UpdatePolicy(ctx context.Context, id uuid.UUID, p group.Policy) error {
	query := `UPDATE groups
              SET policy_amount = $1, policy_frequency = $2, policy_due_day = $3,
                  policy_prorate_first_period = $4, policy_lead_time_days = $5,
                  policy_max_reminders = $6, policy_overdue_backoff_seconds = $7,
                  updated_at = NOW()
              WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query,
		p.Amount, p.Frequency, p.DueDay, p.ProrateFirstPeriod,
		p.LeadTimeDays, p.MaxReminders, int64(p.OverdueBackoff.Seconds()), id)
	if err != nil {
		return fmt.Errorf("error updating group policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (r *PostgresGroupRepository) UpdateLastTickAt(ctx context.Context, id uuid.UUID, tickedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE groups SET last_tick_at = $1, updated_at = NOW() WHERE id = $2`, tickedAt, id)
	if err != nil {
		return fmt.Errorf("error updating group last tick: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return group.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*group.Group, error) {
	g := group.Group{}
	var backoffSeconds int64
	err := row.Scan(
		&g.ID, &g.Name, &g.Currency,
		&g.Policy.Amount, &g.Policy.Frequency, &g.Policy.DueDay,
		&g.Policy.ProrateFirstPeriod, &g.Policy.LeadTimeDays, &g.Policy.MaxReminders,
		&backoffSeconds, &g.LastTickAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Policy.OverdueBackoff = time.Duration(backoffSeconds) * time.Second
	return &g, nil
}
