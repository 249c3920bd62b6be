package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/store"
	"github.com/stellar-payment-gateway/internal/validation"
)

// --- List Submissions ---

type ListSubmissionsHandler struct {
	service SubmissionReader
}

func NewListSubmissionsHandler(svc SubmissionReader) *ListSubmissionsHandler {
	return &ListSubmissionsHandler{service: svc}
}

type submissionsResponse struct {
	Submissions []*model.Submission `json:"submissions"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	PerPage     int                 `json:"per_page"`
}

func (h *ListSubmissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if err := validation.Account(account); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	q := r.URL.Query()
	page, err := httputil.ParsePagination(q)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	filters := store.SubmissionFilters{Account: account, Page: page.Number, PerPage: page.PerPage}
	if s := q.Get("state"); s != "" {
		state := model.LifecycleState(s)
		if !state.Valid() {
			httputil.RespondError(w, http.StatusBadRequest, "invalid_request", "state must be one of unsubmitted, pending, validated, failed")
			return
		}
		filters.State = &state
	}

	subs, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		service.RespondError(w, err)
		return
	}
	if subs == nil {
		subs = []*model.Submission{}
	}

	httputil.RespondJSON(w, http.StatusOK, submissionsResponse{
		Submissions: subs,
		Total:       total,
		Page:        page.Number,
		PerPage:     page.PerPage,
	})
}

// --- Get Submission ---

type GetSubmissionHandler struct {
	service   SubmissionReader
	publicURL string
}

func NewGetSubmissionHandler(svc SubmissionReader, publicURL string) *GetSubmissionHandler {
	return &GetSubmissionHandler{service: svc, publicURL: strings.TrimRight(publicURL, "/")}
}

type submissionRecordsResponse struct {
	IdempotencyToken string               `json:"idempotency_token"`
	ResourceLocator  string               `json:"resource_locator"`
	Submissions      []SubmissionResponse `json:"submissions"`
}

// ServeHTTP returns every record made with the token, one per transaction
// type. A record is in doubt until it reaches a final state.
func (h *GetSubmissionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	token := chi.URLParam(r, "token")
	if err := validation.Account(account); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := validation.IdempotencyToken(token); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	subs, err := h.service.Get(r.Context(), account, token)
	if err != nil {
		service.RespondError(w, err)
		return
	}

	resp := submissionRecordsResponse{
		IdempotencyToken: token,
		Submissions:      make([]SubmissionResponse, 0, len(subs)),
	}
	for _, sub := range subs {
		resp.ResourceLocator = submissionLocator(h.publicURL, sub)
		resp.Submissions = append(resp.Submissions, SubmissionResponse{
			Submission:      sub,
			InDoubt:         !sub.LifecycleState.Final(),
			ResourceLocator: resp.ResourceLocator,
		})
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
