// Package memory provides in-memory implementations of the domain
// repositories. They back the test suites and double as a non-durable store
// for local development; semantics mirror the Postgres implementations,
// sentinel errors included.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/domain/reminder"

	"github.com/google/uuid"
)

// MemberRepository is an in-memory member.Repository.
type MemberRepository struct {
	mu      sync.RWMutex
	members map[uuid.UUID]member.Member
}

func NewMemberRepository() *MemberRepository {
	return &MemberRepository{members: make(map[uuid.UUID]member.Member)}
}

func (r *MemberRepository) Create(_ context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.members {
		if existing.GroupID == m.GroupID && existing.Phone == m.Phone {
			return member.ErrDuplicatePhone
		}
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	r.members[m.ID] = *m
	return nil
}

func (r *MemberRepository) GetByID(_ context.Context, id uuid.UUID) (*member.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	return &m, nil
}

func (r *MemberRepository) GetByPhone(_ context.Context, groupID uuid.UUID, phone string) (*member.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.GroupID == groupID && m.Phone == phone {
			found := m
			return &found, nil
		}
	}
	return nil, member.ErrNotFound
}

func (r *MemberRepository) Update(_ context.Context, m *member.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		return member.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	r.members[m.ID] = *m
	return nil
}

func (r *MemberRepository) ListActiveByGroup(_ context.Context, groupID uuid.UUID) ([]*member.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*member.Member, 0)
	for _, m := range r.members {
		if m.GroupID == groupID && m.IsActive {
			found := m
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *MemberRepository) CountByGroup(_ context.Context, groupID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, m := range r.members {
		if m.GroupID == groupID {
			count++
		}
	}
	return count, nil
}

// GroupRepository is an in-memory group.Repository.
type GroupRepository struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]group.Group
}

func NewGroupRepository() *GroupRepository {
	return &GroupRepository{groups: make(map[uuid.UUID]group.Group)}
}

func (r *GroupRepository) Create(_ context.Context, g *group.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now
	r.groups[g.ID] = *g
	return nil
}

func (r *GroupRepository) GetByID(_ context.Context, id uuid.UUID) (*group.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, group.ErrNotFound
	}
	return &g, nil
}

func (r *GroupRepository) List(_ context.Context) ([]*group.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*group.Group, 0, len(r.groups))
	for _, g := range r.groups {
		found := g
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *GroupRepository) UpdatePolicy(_ context.Context, id uuid.UUID, p group.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return group.ErrNotFound
	}
	g.Policy = p
	g.UpdatedAt = time.Now()
	r.groups[id] = g
	return nil
}

func (r *GroupRepository) UpdateLastTickAt(_ context.Context, id uuid.UUID, tickedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return group.ErrNotFound
	}
	g.LastTickAt.Time = tickedAt
	g.LastTickAt.Valid = true
	g.UpdatedAt = time.Now()
	r.groups[id] = g
	return nil
}

// ContributionRepository is an in-memory ledger.ContributionRepository.
type ContributionRepository struct {
	mu      sync.RWMutex
	entries []ledger.Contribution
}

func NewContributionRepository() *ContributionRepository {
	return &ContributionRepository{}
}

func (r *ContributionRepository) Create(_ context.Context, c *ledger.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = time.Now()
	r.entries = append(r.entries, *c)
	return nil
}

func (r *ContributionRepository) GetByExternalRef(_ context.Context, groupID uuid.UUID, ref string) (*ledger.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.entries {
		if c.GroupID == groupID && c.ExternalRef == ref {
			found := c
			return &found, nil
		}
	}
	return nil, ledger.ErrContributionNotFound
}

func (r *ContributionRepository) SumByMember(_ context.Context, memberID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, c := range r.entries {
		if c.MemberID == memberID {
			sum += c.Amount
		}
	}
	return sum, nil
}

func (r *ContributionRepository) SumByGroup(_ context.Context, groupID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, c := range r.entries {
		if c.GroupID == groupID {
			sum += c.Amount
		}
	}
	return sum, nil
}

func (r *ContributionRepository) SumByGroupSince(_ context.Context, groupID uuid.UUID, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, c := range r.entries {
		if c.GroupID == groupID && !c.RecordedAt.Before(since) {
			sum += c.Amount
		}
	}
	return sum, nil
}

func (r *ContributionRepository) ListRecentByGroup(_ context.Context, groupID uuid.UUID, limit int) ([]*ledger.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ledger.Contribution, 0)
	for _, c := range r.entries {
		if c.GroupID == groupID {
			found := c
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ContributionRepository) BalancesByGroup(_ context.Context, groupID uuid.UUID) ([]ledger.MemberBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sums := make(map[uuid.UUID]int64)
	for _, c := range r.entries {
		if c.GroupID == groupID {
			sums[c.MemberID] += c.Amount
		}
	}
	out := make([]ledger.MemberBalance, 0, len(sums))
	for id, balance := range sums {
		out = append(out, ledger.MemberBalance{MemberID: id, Balance: balance})
	}
	return out, nil
}

// CycleRepository is an in-memory ledger.CycleRepository.
type CycleRepository struct {
	mu     sync.RWMutex
	cycles map[uuid.UUID]ledger.DueCycle
}

func NewCycleRepository() *CycleRepository {
	return &CycleRepository{cycles: make(map[uuid.UUID]ledger.DueCycle)}
}

func (r *CycleRepository) Create(_ context.Context, c *ledger.DueCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cycles {
		if existing.MemberID == c.MemberID && existing.GroupID == c.GroupID &&
			existing.PeriodStart.Equal(c.PeriodStart) {
			return ledger.ErrDuplicateCycle
		}
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.cycles[c.ID] = *c
	return nil
}

func (r *CycleRepository) GetByID(_ context.Context, id uuid.UUID) (*ledger.DueCycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cycles[id]
	if !ok {
		return nil, ledger.ErrCycleNotFound
	}
	return &c, nil
}

func (r *CycleRepository) GetByMemberAndPeriod(_ context.Context, memberID, groupID uuid.UUID, periodStart time.Time) (*ledger.DueCycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cycles {
		if c.MemberID == memberID && c.GroupID == groupID && c.PeriodStart.Equal(periodStart) {
			found := c
			return &found, nil
		}
	}
	return nil, ledger.ErrCycleNotFound
}

func (r *CycleRepository) GetOpenByMember(_ context.Context, memberID uuid.UUID) (*ledger.DueCycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest *ledger.DueCycle
	for _, c := range r.cycles {
		if c.MemberID == memberID && c.Status.Open() {
			found := c
			if oldest == nil || found.PeriodStart.Before(oldest.PeriodStart) {
				oldest = &found
			}
		}
	}
	if oldest == nil {
		return nil, ledger.ErrCycleNotFound
	}
	return oldest, nil
}

func (r *CycleRepository) ListOpenByGroup(_ context.Context, groupID uuid.UUID) ([]*ledger.DueCycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ledger.DueCycle, 0)
	for _, c := range r.cycles {
		if c.GroupID == groupID && c.Status.Open() {
			found := c
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *CycleRepository) Update(_ context.Context, c *ledger.DueCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cycles[c.ID]; !ok {
		return ledger.ErrCycleNotFound
	}
	c.UpdatedAt = time.Now()
	r.cycles[c.ID] = *c
	return nil
}

// ReminderRepository is an in-memory reminder.Repository.
type ReminderRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]reminder.Job
}

func NewReminderRepository() *ReminderRepository {
	return &ReminderRepository{jobs: make(map[uuid.UUID]reminder.Job)}
}

func (r *ReminderRepository) Create(_ context.Context, j *reminder.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.CycleID == j.CycleID && existing.Status == reminder.JobStatusQueued {
			return reminder.ErrJobQueued
		}
	}
	now := time.Now()
	j.CreatedAt = now
	j.UpdatedAt = now
	r.jobs[j.ID] = *j
	return nil
}

func (r *ReminderRepository) GetByID(_ context.Context, id uuid.UUID) (*reminder.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, reminder.ErrJobNotFound
	}
	return &j, nil
}

func (r *ReminderRepository) GetQueuedByCycle(_ context.Context, cycleID uuid.UUID) (*reminder.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobs {
		if j.CycleID == cycleID && j.Status == reminder.JobStatusQueued {
			found := j
			return &found, nil
		}
	}
	return nil, reminder.ErrJobNotFound
}

func (r *ReminderRepository) ListQueued(_ context.Context, dueBy time.Time) ([]*reminder.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*reminder.Job, 0)
	for _, j := range r.jobs {
		if j.Status == reminder.JobStatusQueued && !j.ScheduledFor.After(dueBy) {
			found := j
			out = append(out, &found)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (r *ReminderRepository) Update(_ context.Context, j *reminder.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return reminder.ErrJobNotFound
	}
	j.UpdatedAt = time.Now()
	r.jobs[j.ID] = *j
	return nil
}

func (r *ReminderRepository) SuppressQueuedByCycle(_ context.Context, cycleID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for id, j := range r.jobs {
		if j.CycleID == cycleID && j.Status == reminder.JobStatusQueued {
			j.Status = reminder.JobStatusSuppressed
			j.UpdatedAt = time.Now()
			r.jobs[id] = j
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every job, newest last. Test helper.
func (r *ReminderRepository) All() []*reminder.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*reminder.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		found := j
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
