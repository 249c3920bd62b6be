package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/store"
	"github.com/stellar-payment-gateway/internal/validation"
)

// SubmissionLister is implemented by *service.SubmissionService.
type SubmissionLister interface {
	List(ctx context.Context, filters store.SubmissionFilters) ([]*model.Submission, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
}

// --- List Submissions ---

type SubmissionsHandler struct {
	service SubmissionLister
}

func NewSubmissionsHandler(svc SubmissionLister) *SubmissionsHandler {
	return &SubmissionsHandler{service: svc}
}

type submissionsResponse struct {
	Submissions []submissionItem `json:"submissions"`
	Total       int              `json:"total"`
	Page        int              `json:"page"`
	PerPage     int              `json:"per_page"`
}

type submissionItem struct {
	ID                 uuid.UUID `json:"id"`
	SourceAccount      string    `json:"source_account"`
	TransactionType    string    `json:"transaction_type"`
	IdempotencyToken   string    `json:"idempotency_token"`
	LifecycleState     string    `json:"lifecycle_state"`
	TransactionHash    string    `json:"transaction_hash,omitempty"`
	SubmittedIDs       []string  `json:"submitted_ids"`
	SubmissionAttempts int       `json:"submission_attempts"`
	LedgerReference    *uint32   `json:"ledger_reference,omitempty"`
	ResultCode         string    `json:"result_code,omitempty"`
	ExpiresAt          *string   `json:"expires_at,omitempty"`
	CreatedAt          string    `json:"created_at"`
	UpdatedAt          string    `json:"updated_at"`
}

func toItem(s *model.Submission) submissionItem {
	item := submissionItem{
		ID:                 s.ID,
		SourceAccount:      s.SourceAccount,
		TransactionType:    string(s.TransactionType),
		IdempotencyToken:   s.IdempotencyToken,
		LifecycleState:     string(s.LifecycleState),
		TransactionHash:    s.TransactionHash,
		SubmittedIDs:       s.SubmittedIDs,
		SubmissionAttempts: s.SubmissionAttempts,
		LedgerReference:    s.LedgerReference,
		ResultCode:         s.NetworkResultCode,
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          s.UpdatedAt.Format(time.RFC3339),
	}
	if item.SubmittedIDs == nil {
		item.SubmittedIDs = []string{}
	}
	if s.ExpiresAt != nil {
		e := s.ExpiresAt.Format(time.RFC3339)
		item.ExpiresAt = &e
	}
	return item
}

func (h *SubmissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := httputil.ParsePagination(q)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filters := store.SubmissionFilters{
		Page:    page.Number,
		PerPage: page.PerPage,
	}

	if account := q.Get("account"); account != "" {
		if err := validation.Account(account); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		filters.Account = account
	}

	if typeStr := q.Get("type"); typeStr != "" {
		txType := model.TransactionType(typeStr)
		if !txType.Submittable() {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "type must be one of payment, trustline, settings")
			return
		}
		filters.TransactionType = &txType
	}

	if stateStr := q.Get("state"); stateStr != "" {
		state := model.LifecycleState(stateStr)
		if !state.Valid() {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid state")
			return
		}
		filters.State = &state
	}

	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid 'from' date format (use RFC3339)")
			return
		}
		filters.From = &t
	}

	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid 'to' date format (use RFC3339)")
			return
		}
		filters.To = &t
	}

	subs, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	items := make([]submissionItem, 0, len(subs))
	for _, s := range subs {
		items = append(items, toItem(s))
	}

	httputil.RespondJSON(w, http.StatusOK, submissionsResponse{
		Submissions: items,
		Total:       total,
		Page:        page.Number,
		PerPage:     page.PerPage,
	})
}

// --- Get Submission ---

type SubmissionHandler struct {
	service SubmissionLister
}

func NewSubmissionHandler(svc SubmissionLister) *SubmissionHandler {
	return &SubmissionHandler{service: svc}
}

func (h *SubmissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid submission ID")
		return
	}

	sub, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toItem(sub))
}
