package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chamaledger/internal/app"
	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/member"
	"chamaledger/internal/infra/database/memory"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	handler http.Handler
	ledger  *app.LedgerService
}

func newAPIFixture() *apiFixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	members := memory.NewMemberRepository()
	groups := memory.NewGroupRepository()
	contribs := memory.NewContributionRepository()
	cycles := memory.NewCycleRepository()
	jobs := memory.NewReminderRepository()

	ledgerSvc := app.NewLedgerService(members, groups, contribs, cycles, jobs, app.NewMutexMap(), logger)
	reportSvc := app.NewReportService(members, groups, contribs)
	srv := NewServer(":0", ledgerSvc, reportSvc, logger)
	return &apiFixture{handler: srv.Handler(), ledger: ledgerSvc}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedGroupAndMember(t *testing.T) (*group.Group, *member.Member) {
	t.Helper()
	ctx := context.Background()
	g, err := f.ledger.CreateGroup(ctx, "Umoja Savings", "KES", group.Policy{
		Amount:    1000,
		Frequency: group.FrequencyMonthly,
		DueDay:    28,
	})
	require.NoError(t, err)
	m, err := f.ledger.RegisterMember(ctx, g.ID, "+254755000001", "Achieng",
		time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return g, m
}

func TestRecordPaymentEndpoint(t *testing.T) {
	f := newAPIFixture()
	g, m := f.seedGroupAndMember(t)

	rec := f.do(t, http.MethodPost, "/api/payments", map[string]any{
		"member_id":    m.ID,
		"group_id":     g.ID,
		"amount":       1000,
		"external_ref": "MPESA-HTTP-1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Webhook replay returns the same entry without double-counting.
	rec = f.do(t, http.MethodPost, "/api/payments", map[string]any{
		"member_id":    m.ID,
		"group_id":     g.ID,
		"amount":       1000,
		"external_ref": "MPESA-HTTP-1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/members/%s/balance", m.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, int64(1000), balance["balance"])
}

func TestRecordPaymentEndpoint_Validation(t *testing.T) {
	f := newAPIFixture()
	g, m := f.seedGroupAndMember(t)

	rec := f.do(t, http.MethodPost, "/api/payments", map[string]any{
		"member_id": m.ID,
		"group_id":  g.ID,
		"amount":    0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/payments", map[string]any{
		"member_id": uuid.New(),
		"group_id":  g.ID,
		"amount":    500,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGroupEndpoint(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(t, http.MethodPost, "/api/groups", map[string]any{
		"name":      "Harambee Circle",
		"amount":    2000,
		"frequency": "MONTHLY",
		"due_day":   15,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID uuid.UUID `json:"ID"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.ID)

	rec = f.do(t, http.MethodPost, "/api/groups", map[string]any{
		"name":      "Broke Circle",
		"amount":    0,
		"frequency": "MONTHLY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterMemberEndpoint(t *testing.T) {
	f := newAPIFixture()
	g, m := f.seedGroupAndMember(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/groups/%s/members", g.ID), map[string]any{
		"phone": "+254755000002",
		"name":  "Brian",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/groups/%s/members", g.ID), map[string]any{
		"phone": m.Phone,
		"name":  "Imposter",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/groups/%s/members", uuid.New()), map[string]any{
		"phone": "+254755000003",
		"name":  "Cynthia",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/groups/not-a-uuid/members", map[string]any{
		"phone": "+254755000004",
		"name":  "David",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportEndpoints(t *testing.T) {
	f := newAPIFixture()
	g, m := f.seedGroupAndMember(t)

	rec := f.do(t, http.MethodPost, "/api/payments", map[string]any{
		"member_id":    m.ID,
		"group_id":     g.ID,
		"amount":       1000,
		"external_ref": "MPESA-REPORT-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%s/stats", g.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		MemberCount  int   `json:"MemberCount"`
		TotalBalance int64 `json:"TotalBalance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.MemberCount)
	assert.Equal(t, int64(1000), stats.TotalBalance)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%s/payments?limit=5", g.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%s/top-contributors", g.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/groups/%s/stats", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
