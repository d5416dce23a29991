package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chamaledger/internal/domain/ledger"

	"github.com/google/uuid"
)

const cycleColumns = `id, member_id, group_id, period_start, period_end, due_at,
       expected_amount, paid_amount, status, reminder_count, last_reminded_at,
       created_at, updated_at`

type PostgresCycleRepository struct {
	db *sql.DB
}

func NewPostgresCycleRepository(db *sql.DB) *PostgresCycleRepository {
	return &PostgresCycleRepository{db: db}
}

func (r *PostgresCycleRepository) Create(ctx context.Context, c *ledger.DueCycle) error {
	query := `INSERT INTO due_cycles (id, member_id, group_id, period_start, period_end, due_at,
                  expected_amount, paid_amount, status, reminder_count, last_reminded_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
              RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.MemberID, c.GroupID, c.PeriodStart, c.PeriodEnd, c.DueAt,
		c.ExpectedAmount, c.PaidAmount, c.Status, c.ReminderCount, c.LastRemindedAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "cycle_member_period_unique") {
			return ledger.ErrDuplicateCycle
		}
		return fmt.Errorf("error creating due cycle: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.DueCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM due_cycles WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresCycleRepository) GetByMemberAndPeriod(ctx context.Context, memberID, groupID uuid.UUID, periodStart time.Time) (*ledger.DueCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM due_cycles
              WHERE member_id = $1 AND group_id = $2 AND period_start = $3`
	return r.getOne(ctx, query, memberID, groupID, periodStart)
}

func (r *PostgresCycleRepository) GetOpenByMember(ctx context.Context, memberID uuid.UUID) (*ledger.DueCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM due_cycles
              WHERE member_id = $1 AND status IN ('PENDING', 'REMINDED', 'OVERDUE')
              ORDER BY period_start ASC
              LIMIT 1`
	return r.getOne(ctx, query, memberID)
}

func (r *PostgresCycleRepository) ListOpenByGroup(ctx context.Context, groupID uuid.UUID) ([]*ledger.DueCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM due_cycles
              WHERE group_id = $1 AND status IN ('PENDING', 'REMINDED', 'OVERDUE')
              ORDER BY due_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("error querying open cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]*ledger.DueCycle, 0)
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning cycle row: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle rows: %w", err)
	}
	return cycles, nil
}

func (r *PostgresCycleRepository) Update(ctx context.Context, c *ledger.DueCycle) error {
	query := `UPDATE due_cycles
              SET paid_amount = $1, status = $2, reminder_count = $3, last_reminded_at = $4, updated_at = NOW()
              WHERE id = $5
              RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query,
		c.PaidAmount, c.Status, c.ReminderCount, c.LastRemindedAt, c.ID).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrCycleNotFound
		}
		return fmt.Errorf("error updating due cycle: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) getOne(ctx context.Context, query string, args ...any) (*ledger.DueCycle, error) {
	c, err := scanCycle(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting due cycle: %w", err)
	}
	return c, nil
}

func scanCycle(row rowScanner) (*ledger.DueCycle, error) {
	c := ledger.DueCycle{}
	err := row.Scan(
		&c.ID, &c.MemberID, &c.GroupID, &c.PeriodStart, &c.PeriodEnd, &c.DueAt,
		&c.ExpectedAmount, &c.PaidAmount, &c.Status, &c.ReminderCount, &c.LastRemindedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
