package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"chamaledger/internal/app"
	"chamaledger/internal/domain/group"
	"chamaledger/internal/domain/ledger"
	"chamaledger/internal/domain/member"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type handlers struct {
	ledger  *app.LedgerService
	reports *app.ReportService
	logger  *logrus.Logger
}

type recordPaymentRequest struct {
	MemberID    uuid.UUID `json:"member_id"`
	GroupID     uuid.UUID `json:"group_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	RecordedAt  time.Time `json:"recorded_at,omitempty"`
}

// recordPayment is the payment-confirmation webhook: the mobile-money
// collaborator posts here once a transaction clears. Replays with the same
// external_ref return the original entry instead of double-counting.
func (h *handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.ledger.RecordContribution(r.Context(), app.RecordContributionInput{
		MemberID:    req.MemberID,
		GroupID:     req.GroupID,
		Amount:      req.Amount,
		Type:        ledger.ContributionType(req.Type),
		ExternalRef: req.ExternalRef,
		RecordedAt:  req.RecordedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, member.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown member")
		default:
			h.logger.WithError(err).Error("recording contribution failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type createGroupRequest struct {
	Name                string `json:"name"`
	Currency            string `json:"currency,omitempty"`
	Amount              int64  `json:"amount"`
	Frequency           string `json:"frequency"`
	DueDay              int    `json:"due_day"`
	ProrateFirstPeriod  bool   `json:"prorate_first_period,omitempty"`
	LeadTimeDays        int    `json:"lead_time_days,omitempty"`
	MaxReminders        int    `json:"max_reminders,omitempty"`
	OverdueBackoffHours int    `json:"overdue_backoff_hours,omitempty"`
}

func (h *handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	policy := group.Policy{
		Amount:             req.Amount,
		Frequency:          group.Frequency(req.Frequency),
		DueDay:             req.DueDay,
		ProrateFirstPeriod: req.ProrateFirstPeriod,
		LeadTimeDays:       req.LeadTimeDays,
		MaxReminders:       req.MaxReminders,
		OverdueBackoff:     time.Duration(req.OverdueBackoffHours) * time.Hour,
	}
	g, err := h.ledger.CreateGroup(r.Context(), req.Name, req.Currency, policy)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, "policy amount must be positive")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type registerMemberRequest struct {
	Phone    string    `json:"phone"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
}

func (h *handlers) registerMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUIDParam(w, r, "groupID")
	if !ok {
		return
	}
	var req registerMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.ledger.RegisterMember(r.Context(), groupID, req.Phone, req.Name, req.JoinedAt)
	if err != nil {
		switch {
		case errors.Is(err, member.ErrDuplicatePhone):
			writeError(w, http.StatusConflict, "phone already registered in group")
		case errors.Is(err, group.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown group")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handlers) groupStats(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUIDParam(w, r, "groupID")
	if !ok {
		return
	}
	stats, err := h.reports.GetStats(r.Context(), groupID)
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) recentPayments(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUIDParam(w, r, "groupID")
	if !ok {
		return
	}
	payments, err := h.reports.GetRecentPayments(r.Context(), groupID, limitParam(r))
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *handlers) topContributors(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseUUIDParam(w, r, "groupID")
	if !ok {
		return
	}
	ranks, err := h.reports.GetTopContributors(r.Context(), groupID, limitParam(r))
	if err != nil {
		h.writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}

func (h *handlers) memberBalance(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUIDParam(w, r, "memberID")
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown member")
			return
		}
		h.logger.WithError(err).Error("balance lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *handlers) writeReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, group.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown group")
		return
	}
	h.logger.WithError(err).Error("report query failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
