package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
)

func balanceFilter(r *http.Request) service.BalanceFilter {
	q := r.URL.Query()
	return service.BalanceFilter{
		Currency:     q.Get("currency"),
		Counterparty: q.Get("counterparty"),
	}
}

// --- Balances ---

type BalancesHandler struct {
	service AccountReader
}

func NewBalancesHandler(svc AccountReader) *BalancesHandler {
	return &BalancesHandler{service: svc}
}

type balancesResponse struct {
	Account  string          `json:"account"`
	Balances []model.Balance `json:"balances"`
}

func (h *BalancesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balances, err := h.service.Balances(r.Context(), account, balanceFilter(r))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, balancesResponse{Account: account, Balances: balances})
}

// --- Trustlines ---

type TrustlinesHandler struct {
	service AccountReader
}

func NewTrustlinesHandler(svc AccountReader) *TrustlinesHandler {
	return &TrustlinesHandler{service: svc}
}

type trustlinesResponse struct {
	Account    string                `json:"account"`
	Trustlines []model.TrustlineInfo `json:"trustlines"`
}

func (h *TrustlinesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	lines, err := h.service.Trustlines(r.Context(), account, balanceFilter(r))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, trustlinesResponse{Account: account, Trustlines: lines})
}

// --- Settings ---

type SettingsHandler struct {
	service AccountReader
}

func NewSettingsHandler(svc AccountReader) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, settings)
}

// --- Transaction ---

type TransactionHandler struct {
	service AccountReader
}

func NewTransactionHandler(svc AccountReader) *TransactionHandler {
	return &TransactionHandler{service: svc}
}

func (h *TransactionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Transaction(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, rec)
}
