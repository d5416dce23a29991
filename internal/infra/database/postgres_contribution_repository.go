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

type PostgresContributionRepository struct {
	db *sql.DB
}

func NewPostgresContributionRepository(db *sql.DB) *PostgresContributionRepository {
	return &PostgresContributionRepository{db: db}
}

func (r *PostgresContributionRepository) Create(ctx context.Context, c *ledger.Contribution) error {
	query := `INSERT INTO contributions (id, member_id, group_id, cycle_id, amount, contribution_type, external_ref, recorded_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
              RETURNING created_at`
	var externalRef sql.NullString
	if c.ExternalRef != "" {
		externalRef = sql.NullString{String: c.ExternalRef, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.MemberID, c.GroupID, c.CycleID, c.Amount, c.Type, externalRef, c.RecordedAt,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating contribution: %w", err)
	}
	return nil
}

func (r *PostgresContributionRepository) GetByExternalRef(ctx context.Context, groupID uuid.UUID, ref string) (*ledger.Contribution, error) {
	query := `SELECT id, member_id, group_id, cycle_id, amount, contribution_type, external_ref, recorded_at, created_at
              FROM contributions WHERE group_id = $1 AND external_ref = $2`
	c, err := scanContribution(r.db.QueryRowContext(ctx, query, groupID, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrContributionNotFound
		}
		return nil, fmt.Errorf("error getting contribution by external ref: %w", err)
	}
	return c, nil
}

func (r *PostgresContributionRepository) SumByMember(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE member_id = $1`, memberID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("error summing member contributions: %w", err)
	}
	return sum, nil
}

func (r *PostgresContributionRepository) SumByGroup(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_id = $1`, groupID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("error summing group contributions: %w", err)
	}
	return sum, nil
}

func (r *PostgresContributionRepository) SumByGroupSince(ctx context.Context, groupID uuid.UUID, since time.Time) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_id = $1 AND recorded_at >= $2`,
		groupID, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("error summing group contributions since %s: %w", since.Format("2006-01-02"), err)
	}
	return sum, nil
}

func (r *PostgresContributionRepository) ListRecentByGroup(ctx context.Context, groupID uuid.UUID, limit int) ([]*ledger.Contribution, error) {
	query := `SELECT id, member_id, group_id, cycle_id, amount, contribution_type, external_ref, recorded_at, created_at
              FROM contributions WHERE group_id = $1
              ORDER BY recorded_at DESC, created_at DESC
              LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing recent contributions: %w", err)
	}
	defer rows.Close()

	contributions := make([]*ledger.Contribution, 0)
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning contribution row: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contribution rows: %w", err)
	}
	return contributions, nil
}

func (r *PostgresContributionRepository) BalancesByGroup(ctx context.Context, groupID uuid.UUID) ([]ledger.MemberBalance, error) {
	query := `SELECT member_id, COALESCE(SUM(amount), 0)
              FROM contributions WHERE group_id = $1
              GROUP BY member_id`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("error querying group balances: %w", err)
	}
	defer rows.Close()

	balances := make([]ledger.MemberBalance, 0)
	for rows.Next() {
		var b ledger.MemberBalance
		if err := rows.Scan(&b.MemberID, &b.Balance); err != nil {
			return nil, fmt.Errorf("error scanning balance row: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}
	return balances, nil
}

func scanContribution(row rowScanner) (*ledger.Contribution, error) {
	c := ledger.Contribution{}
	var externalRef sql.NullString
	err := row.Scan(&c.ID, &c.MemberID, &c.GroupID, &c.CycleID, &c.Amount, &c.Type, &externalRef, &c.RecordedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ExternalRef = externalRef.String
	return &c, nil
}
