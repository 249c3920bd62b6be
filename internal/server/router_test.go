package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/metrics"
	"github.com/stellar-payment-gateway/internal/middleware"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/store"
)

type stubSubmissions struct{}

func (stubSubmissions) Submit(context.Context, service.SubmitRequest) (*service.SubmissionOutcome, error) {
	return nil, service.NewInvalidTransaction("rejected")
}

func (stubSubmissions) Get(context.Context, string, string) ([]*model.Submission, error) {
	return nil, service.NewNotFound(service.CodeSubmissionNotFound, "none")
}

func (stubSubmissions) List(context.Context, store.SubmissionFilters) ([]*model.Submission, int, error) {
	return nil, 0, nil
}

func (stubSubmissions) GetByID(context.Context, uuid.UUID) (*model.Submission, error) {
	return nil, service.NewNotFound(service.CodeSubmissionNotFound, "none")
}

type stubNetwork struct{}

func (stubNetwork) Ping(context.Context) error { return nil }

func (stubNetwork) ServerStatus(context.Context) (*ledger.ServerStatus, error) {
	return &ledger.ServerStatus{CompleteLedgerMin: 1, CompleteLedgerMax: 2}, nil
}

func newTestRouter(apiKeys []string) http.Handler {
	return NewRouter(Deps{
		Submissions:       stubSubmissions{},
		Store:             stubNetwork{},
		Network:           stubNetwork{},
		Metrics:           metrics.New(),
		Logger:            zerolog.Nop(),
		StellarNetwork:    "testnet",
		NetworkPassphrase: "Test SDF Network ; September 2015",
		BaseFee:           100,
		MaxFee:            1000,
		APIKeys:           apiKeys,
		RateLimiter:       middleware.NewRateLimiter(100, time.Minute),
	})
}

func TestRouterAuth(t *testing.T) {
	router := newTestRouter([]string{"k1"})

	tests := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"metrics is public", "/metrics", "", http.StatusOK},
		{"v1 requires key", "/v1/info", "", http.StatusUnauthorized},
		{"v1 with key", "/v1/info", "Bearer k1", http.StatusOK},
		{"admin requires key", "/admin/submissions", "", http.StatusUnauthorized},
		{"admin with key", "/admin/submissions", "Bearer k1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.code {
				t.Fatalf("unexpected status code: %d", rr.Code)
			}
		})
	}
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(nil)

	t.Run("submission errors use the service taxonomy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/accounts/GABC/payments", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), service.CodeInvalidTransaction) {
			t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-RateLimit-Limit") != "100" {
			t.Fatalf("expected rate-limit headers, got %v", rr.Header())
		}
	})

	t.Run("non-json body is refused", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/accounts/GABC/trustlines", strings.NewReader(`a=b`))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("unexpected status code: %d", rr.Code)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))
		if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), `"error":"not_found"`) {
			t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("requests are counted by route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if !strings.Contains(rr.Body.String(), `route="/v1/accounts/{account}/payments"`) {
			t.Fatalf("expected payments route in metrics output")
		}
	})
}
