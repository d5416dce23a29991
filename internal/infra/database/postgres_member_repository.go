package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chamaledger/internal/domain/member"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type PostgresMemberRepository struct {
	db *sql.DB
}

func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

func (r *PostgresMemberRepository) Create(ctx context.Context, m *member.Member) error {
	query := `INSERT INTO members (id, group_id, phone, name, joined_at, is_active)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.ID, m.GroupID, m.Phone, m.Name, m.JoinedAt, m.IsActive).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "member_group_phone_unique") {
			return member.ErrDuplicatePhone
		}
		return fmt.Errorf("error creating member: %w", err)
	}
	return nil
}

func (r *PostgresMemberRepository) GetByID(ctx context.Context, id uuid.UUID) (*member.Member, error) {
	query := `SELECT id, group_id, phone, name, joined_at, is_active, created_at, updated_at
              FROM members WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresMemberRepository) GetByPhone(ctx context.Context, groupID uuid.UUID, phone string) (*member.Member, error) {
	query := `SELECT id, group_id, phone, name, joined_at, is_active, created_at, updated_at
              FROM members WHERE group_id = $1 AND phone = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, phone))
}

func (r *PostgresMemberRepository) Update(ctx context.Context, m *member.Member) error {
	query := `UPDATE members
              SET phone = $1, name = $2, is_active = $3, updated_at = NOW()
              WHERE id = $4
              RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, m.Phone, m.Name, m.IsActive, m.ID).Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return member.ErrNotFound
		}
		return fmt.Errorf("error updating member: %w", err)
	}
	return nil
}

func (r *PostgresMemberRepository) ListActiveByGroup(ctx context.Context, groupID uuid.UUID) ([]*member.Member, error) {
	query := `SELECT id, group_id, phone, name, joined_at, is_active, created_at, updated_at
              FROM members WHERE group_id = $1 AND is_active = TRUE ORDER BY joined_at, id`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("error querying active members: %w", err)
	}
	defer rows.Close()

	members := make([]*member.Member, 0)
	for rows.Next() {
		m := member.Member{}
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Phone, &m.Name, &m.JoinedAt, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning member row: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (r *PostgresMemberRepository) CountByGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE group_id = $1`, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting members: %w", err)
	}
	return count, nil
}

func (r *PostgresMemberRepository) scanOne(row *sql.Row) (*member.Member, error) {
	m := member.Member{}
	err := row.Scan(&m.ID, &m.GroupID, &m.Phone, &m.Name, &m.JoinedAt, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("error getting member: %w", err)
	}
	return &m, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
