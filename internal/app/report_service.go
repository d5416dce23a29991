package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"

	"github.com/google/uuid"
)

// GroupStats is the dashboard-facing aggregate for one group. All amounts are
// integers in minor currency units; formatting is the caller's job.
type GroupStats struct {
	GroupID             uuid.UUID
	MemberCount         int
	TotalBalance        int64
	PeriodContributions int64
	Currency            string
}

// PaymentRecord is one recent ledger entry joined with the member's name.
type PaymentRecord struct {
	ContributionID uuid.UUID
	MemberID       uuid.UUID
	MemberName     string
	Amount         int64
	Type           ledger.ContributionType
	RecordedAt     time.Time
}

// ContributorRank is one row of the top-contributors ranking.
type ContributorRank struct {
	MemberID   uuid.UUID
	MemberName string
	Balance    int64
	JoinedAt   time.Time
}

// ReportService is the read-only aggregation layer consumed by the dashboard.
// It never mutates state and reads the ledger directly, so results are as
// fresh as the store itself.
type ReportService struct {
	members  member.Repository
	groups   group.Repository
	contribs ledger.ContributionRepository
}

func NewReportService(mr member.Repository, gr group.Repository, cr ledger.ContributionRepository) *ReportService {
	return &ReportService{members: mr, groups: gr, contribs: cr}
}

// GetStats aggregates member count, total balance and this-period
// contributions for the group.
func (s *ReportService) GetStats(ctx context.Context, groupID uuid.UUID) (*GroupStats, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	count, err := s.members.CountByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	total, err := s.contribs.SumByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("sum group contributions: %w", err)
	}
	period := g.Policy.PeriodFor(time.Now())
	periodSum, err := s.contribs.SumByGroupSince(ctx, groupID, period.Start)
	if err != nil {
		return nil, fmt.Errorf("sum period contributions: %w", err)
	}
	return &GroupStats{
		GroupID:             groupID,
		MemberCount:         count,
		TotalBalance:        total,
		PeriodContributions: periodSum,
		Currency:            g.Currency,
	}, nil
}

// GetRecentPayments lists the newest contributions of a group with member
// names resolved.
func (s *ReportService) GetRecentPayments(ctx context.Context, groupID uuid.UUID, limit int) ([]PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	entries, err := s.contribs.ListRecentByGroup(ctx, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent contributions: %w", err)
	}

	names := make(map[uuid.UUID]string)
	records := make([]PaymentRecord, 0, len(entries))
	for _, c := range entries {
		name, ok := names[c.MemberID]
		if !ok {
			m, err := s.members.GetByID(ctx, c.MemberID)
			if err != nil {
				return nil, fmt.Errorf("resolve member %s: %w", c.MemberID, err)
			}
			name = m.Name
			names[c.MemberID] = name
		}
		records = append(records, PaymentRecord{
			ContributionID: c.ID,
			MemberID:       c.MemberID,
			MemberName:     name,
			Amount:         c.Amount,
			Type:           c.Type,
			RecordedAt:     c.RecordedAt,
		})
	}
	return records, nil
}

// GetTopContributors ranks members by balance, descending, ties broken by
// the earliest join date.
func (s *ReportService) GetTopContributors(ctx context.Context, groupID uuid.UUID, limit int) ([]ContributorRank, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	balances, err := s.contribs.BalancesByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group balances: %w", err)
	}

	ranks := make([]ContributorRank, 0, len(balances))
	for _, b := range balances {
		m, err := s.members.GetByID(ctx, b.MemberID)
		if err != nil {
			return nil, fmt.Errorf("resolve member %s: %w", b.MemberID, err)
		}
		ranks = append(ranks, ContributorRank{
			MemberID:   b.MemberID,
			MemberName: m.Name,
			Balance:    b.Balance,
			JoinedAt:   m.JoinedAt,
		})
	}

	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Balance != ranks[j].Balance {
			return ranks[i].Balance > ranks[j].Balance
		}
		return ranks[i].JoinedAt.Before(ranks[j].JoinedAt)
	})

	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, nil
}
