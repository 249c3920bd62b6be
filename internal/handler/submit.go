package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
)

// SubmitHandler accepts one transaction type for an account.
type SubmitHandler struct {
	service   Submitter
	txType    model.TransactionType
	publicURL string
}

func NewSubmitHandler(svc Submitter, txType model.TransactionType, publicURL string) *SubmitHandler {
	return &SubmitHandler{
		service:   svc,
		txType:    txType,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// SubmitRequest carries the signing secret for the source account. The secret
// is used once to sign and is never stored or logged.
type SubmitRequest struct {
	IdempotencyToken  string           `json:"idempotency_token"`
	Secret            string           `json:"secret"`
	WaitForValidation bool             `json:"wait_for_validation"`
	Payment           *model.Payment   `json:"payment,omitempty"`
	Trustline         *model.Trustline `json:"trustline,omitempty"`
	Settings          *model.Settings  `json:"settings,omitempty"`
	Memo              *model.Memo      `json:"memo,omitempty"`
}

type SubmissionResponse struct {
	*model.Submission
	InDoubt         bool   `json:"in_doubt"`
	ResourceLocator string `json:"resource_locator"`
}

func (h *SubmitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req SubmitRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	outcome, err := h.service.Submit(r.Context(), service.SubmitRequest{
		Account:          account,
		TransactionType:  h.txType,
		IdempotencyToken: req.IdempotencyToken,
		Transaction: &model.Transaction{
			Type:      h.txType,
			Payment:   req.Payment,
			Trustline: req.Trustline,
			Settings:  req.Settings,
			Memo:      req.Memo,
		},
		Secret:            req.Secret,
		WaitForValidation: req.WaitForValidation,
	})
	if err != nil {
		service.RespondError(w, err)
		return
	}

	status := http.StatusAccepted
	if outcome.Submission.LifecycleState.Final() {
		status = http.StatusOK
	}
	httputil.RespondJSON(w, status, SubmissionResponse{
		Submission:      outcome.Submission,
		InDoubt:         outcome.InDoubt,
		ResourceLocator: submissionLocator(h.publicURL, outcome.Submission),
	})
}

func submissionLocator(publicURL string, sub *model.Submission) string {
	return fmt.Sprintf("%s/v1/accounts/%s/submissions/%s", publicURL, sub.SourceAccount, sub.IdempotencyToken)
}
