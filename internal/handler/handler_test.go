package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/store"
)

var testAccount = keypair.MustRandom().Address()

type fakeSubmitter struct {
	got     service.SubmitRequest
	outcome *service.SubmissionOutcome
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, req service.SubmitRequest) (*service.SubmissionOutcome, error) {
	f.got = req
	return f.outcome, f.err
}

type fakeReader struct {
	filters store.SubmissionFilters
	subs    []*model.Submission
	err     error
}

func (f *fakeReader) Get(_ context.Context, account, token string) ([]*model.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subs, nil
}

func (f *fakeReader) List(_ context.Context, filters store.SubmissionFilters) ([]*model.Submission, int, error) {
	f.filters = filters
	return f.subs, len(f.subs), f.err
}

type fakeLocator struct {
	latest     bool
	identifier string
}

func (f *fakeLocator) Locate(_ context.Context, account, identifier string) (*model.Notification, error) {
	f.identifier = identifier
	if identifier == "missing" {
		return nil, service.NewTransactionNotFound("not found")
	}
	return &model.Notification{Account: account, TransactionHash: identifier}, nil
}

func (f *fakeLocator) LocateLatest(_ context.Context, account string) (*model.Notification, error) {
	f.latest = true
	return &model.Notification{Account: account, TransactionHash: "latest"}, nil
}

type fakeAccounts struct {
	filter service.BalanceFilter
}

func (f *fakeAccounts) Balances(_ context.Context, account string, filter service.BalanceFilter) ([]model.Balance, error) {
	f.filter = filter
	return []model.Balance{{Value: "10.0000000", Currency: "XLM"}}, nil
}

func (f *fakeAccounts) Trustlines(_ context.Context, account string, filter service.BalanceFilter) ([]model.TrustlineInfo, error) {
	f.filter = filter
	return []model.TrustlineInfo{}, nil
}

func (f *fakeAccounts) Settings(_ context.Context, account string) (*model.AccountSettings, error) {
	return nil, service.NewNotFound(service.CodeAccountNotFound, "missing")
}

func (f *fakeAccounts) Transaction(_ context.Context, hash string) (*model.TransactionRecord, error) {
	return &model.TransactionRecord{Hash: hash}, nil
}

// serve routes req through a chi router so URL parameters resolve.
func serve(pattern, method string, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestSubmitHandler(t *testing.T) {
	const pattern = "/v1/accounts/{account}/payments"
	path := "/v1/accounts/" + testAccount + "/payments"
	body := `{"idempotency_token":"invoice-1","secret":"S...","payment":{"destination_account":"GDEST","destination_amount":{"value":"5","currency":"XLM"}}}`

	t.Run("pending submission is accepted", func(t *testing.T) {
		svc := &fakeSubmitter{outcome: &service.SubmissionOutcome{Submission: &model.Submission{
			ID:               uuid.New(),
			SourceAccount:    testAccount,
			TransactionType:  model.TypePayment,
			IdempotencyToken: "invoice-1",
			LifecycleState:   model.StatePending,
		}}}
		h := NewSubmitHandler(svc, model.TypePayment, "https://gw.example.com/")

		rr := serve(pattern, http.MethodPost, h, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		if svc.got.Account != testAccount || svc.got.TransactionType != model.TypePayment || svc.got.IdempotencyToken != "invoice-1" {
			t.Fatalf("unexpected request: %+v", svc.got)
		}
		if svc.got.Transaction.Payment == nil || svc.got.Transaction.Payment.DestinationAccount != "GDEST" {
			t.Fatalf("payment body not forwarded: %+v", svc.got.Transaction)
		}

		var resp map[string]interface{}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["lifecycle_state"] != "pending" || resp["in_doubt"] != false {
			t.Fatalf("unexpected response: %v", resp)
		}
		want := "https://gw.example.com/v1/accounts/" + testAccount + "/submissions/invoice-1"
		if resp["resource_locator"] != want {
			t.Fatalf("unexpected locator %v", resp["resource_locator"])
		}
		if _, ok := resp["secret"]; ok {
			t.Fatal("secret must not be echoed")
		}
	})

	t.Run("final submission returns 200", func(t *testing.T) {
		svc := &fakeSubmitter{outcome: &service.SubmissionOutcome{Submission: &model.Submission{
			SourceAccount: testAccount, LifecycleState: model.StateValidated,
		}}}
		h := NewSubmitHandler(svc, model.TypePayment, "")

		rr := serve(pattern, http.MethodPost, h, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})

	t.Run("duplicate maps to conflict", func(t *testing.T) {
		svc := &fakeSubmitter{err: service.NewDuplicateSubmission("exists")}
		h := NewSubmitHandler(svc, model.TypePayment, "")

		rr := serve(pattern, http.MethodPost, h, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		if rr.Code != http.StatusConflict {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		if resp := decodeError(t, rr); resp.Error != service.CodeDuplicateSubmission {
			t.Fatalf("unexpected error code %q", resp.Error)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := &fakeSubmitter{}
		h := NewSubmitHandler(svc, model.TypePayment, "")

		rr := serve(pattern, http.MethodPost, h, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{")))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		if svc.got.Account != "" {
			t.Fatal("service should not be called for a malformed body")
		}
	})
}

func TestListSubmissionsHandler(t *testing.T) {
	const pattern = "/v1/accounts/{account}/submissions"
	base := "/v1/accounts/" + testAccount + "/submissions"

	t.Run("passes filters", func(t *testing.T) {
		svc := &fakeReader{}
		rr := serve(pattern, http.MethodGet, NewListSubmissionsHandler(svc),
			httptest.NewRequest(http.MethodGet, base+"?state=pending&page=2&per_page=5", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		f := svc.filters
		if f.Account != testAccount || f.Page != 2 || f.PerPage != 5 || f.State == nil || *f.State != model.StatePending {
			t.Fatalf("unexpected filters: %+v", f)
		}
		if !strings.Contains(rr.Body.String(), `"submissions":[]`) {
			t.Fatalf("expected empty list, got %s", rr.Body.String())
		}
	})

	tests := []struct {
		name  string
		query string
	}{
		{"unknown state", "?state=done"},
		{"bad page", "?page=x"},
		{"per_page too large", "?per_page=500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(pattern, http.MethodGet, NewListSubmissionsHandler(&fakeReader{}),
				httptest.NewRequest(http.MethodGet, base+tt.query, nil))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: %d", rr.Code)
			}
		})
	}

	t.Run("invalid account", func(t *testing.T) {
		rr := serve(pattern, http.MethodGet, NewListSubmissionsHandler(&fakeReader{}),
			httptest.NewRequest(http.MethodGet, "/v1/accounts/nope/submissions", nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})
}

func TestGetSubmissionHandler(t *testing.T) {
	const pattern = "/v1/accounts/{account}/submissions/{token}"
	path := "/v1/accounts/" + testAccount + "/submissions/invoice-1"

	t.Run("marks unfinalized records in doubt", func(t *testing.T) {
		svc := &fakeReader{subs: []*model.Submission{
			{SourceAccount: testAccount, IdempotencyToken: "invoice-1", TransactionType: model.TypePayment, LifecycleState: model.StatePending},
			{SourceAccount: testAccount, IdempotencyToken: "invoice-1", TransactionType: model.TypeTrustline, LifecycleState: model.StateValidated},
		}}
		rr := serve(pattern, http.MethodGet, NewGetSubmissionHandler(svc, "https://gw.example.com"),
			httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}

		var resp struct {
			Submissions []struct {
				LifecycleState string `json:"lifecycle_state"`
				InDoubt        bool   `json:"in_doubt"`
			} `json:"submissions"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Submissions) != 2 || !resp.Submissions[0].InDoubt || resp.Submissions[1].InDoubt {
			t.Fatalf("unexpected response: %+v", resp)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		svc := &fakeReader{err: service.NewNotFound(service.CodeSubmissionNotFound, "none")}
		rr := serve(pattern, http.MethodGet, NewGetSubmissionHandler(svc, ""),
			httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
	})
}

func TestNotificationHandler(t *testing.T) {
	loc := &fakeLocator{}
	h := NewNotificationHandler(loc)
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/v1/accounts/{account}/notifications", h)
	r.Method(http.MethodGet, "/v1/accounts/{account}/notifications/{identifier}", h)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testAccount+"/notifications", nil))
	if rr.Code != http.StatusOK || !loc.latest {
		t.Fatalf("expected latest lookup, status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testAccount+"/notifications/invoice-9", nil))
	if rr.Code != http.StatusOK || loc.identifier != "invoice-9" {
		t.Fatalf("expected identifier lookup, status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testAccount+"/notifications/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Error != service.CodeTransactionNotFound {
		t.Fatalf("unexpected error code %q", resp.Error)
	}
}

func TestAccountHandlers(t *testing.T) {
	svc := &fakeAccounts{}

	rr := serve("/v1/accounts/{account}/balances", http.MethodGet, NewBalancesHandler(svc),
		httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testAccount+"/balances?currency=usd&counterparty=GISSUER", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if svc.filter.Currency != "usd" || svc.filter.Counterparty != "GISSUER" {
		t.Fatalf("unexpected filter: %+v", svc.filter)
	}

	rr = serve("/v1/accounts/{account}/settings", http.MethodGet, NewSettingsHandler(svc),
		httptest.NewRequest(http.MethodGet, "/v1/accounts/"+testAccount+"/settings", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	rr = serve("/v1/transactions/{hash}", http.MethodGet, NewTransactionHandler(svc),
		httptest.NewRequest(http.MethodGet, "/v1/transactions/abc", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"hash":"abc"`) {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeStatus struct{ err error }

func (s fakeStatus) ServerStatus(context.Context) (*ledger.ServerStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ledger.ServerStatus{CompleteLedgerMin: 10, CompleteLedgerMax: 20}, nil
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		store    error
		network  error
		code     int
		status   string
		database string
	}{
		{"healthy", nil, nil, http.StatusOK, "healthy", "ok"},
		{"network down", nil, errors.New("dial"), http.StatusOK, "degraded", "ok"},
		{"store down", errors.New("refused"), nil, http.StatusServiceUnavailable, "unhealthy", "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakePinger{tt.store}, fakeStatus{tt.network}, "testnet")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.code {
				t.Fatalf("unexpected status code: %d", rr.Code)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status || resp.Database != tt.database {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}
