package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stellar-payment-gateway/internal/handler"
	"github.com/stellar-payment-gateway/internal/handler/admin"
	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/metrics"
	"github.com/stellar-payment-gateway/internal/middleware"
	"github.com/stellar-payment-gateway/internal/model"
)

// Deps are the collaborators the HTTP API is served from.
type Deps struct {
	Submissions interface {
		handler.Submitter
		handler.SubmissionReader
		admin.SubmissionLister
	}
	Notifications handler.NotificationLocator
	Accounts      handler.AccountReader
	Store         handler.Pinger
	Network       handler.StatusReader
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger

	StellarNetwork    string
	NetworkPassphrase string
	PublicURL         string
	BaseFee           int64
	MaxFee            int64
	CORSOrigins       []string

	// APIKeys gates /v1 and /admin routes. Auth is disabled when empty.
	APIKeys     []string
	RateLimiter *middleware.RateLimiter
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(d.Logger))
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.SecurityHeaders)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}))
	}

	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(d.Store, d.Network, d.StellarNetwork))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	var keys middleware.KeySet
	var authFailures *middleware.RateLimiter
	if len(d.APIKeys) > 0 {
		keys = middleware.NewKeySet(d.APIKeys)
		authFailures = middleware.NewRateLimiter(5, 15*time.Minute)
	}

	protected := func(r chi.Router) {
		if keys != nil {
			r.Use(middleware.APIKeyAuth(keys, authFailures))
		}
		if d.RateLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(d.RateLimiter))
		}
		r.Use(middleware.RequireJSON)
	}

	r.Route("/v1", func(r chi.Router) {
		protected(r)

		r.Method(http.MethodGet, "/info", handler.NewInfoHandler(d.NetworkPassphrase, d.BaseFee, d.MaxFee))
		r.Method(http.MethodGet, "/transactions/{hash}", handler.NewTransactionHandler(d.Accounts))

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Method(http.MethodPost, "/payments", handler.NewSubmitHandler(d.Submissions, model.TypePayment, d.PublicURL))
			r.Method(http.MethodPost, "/trustlines", handler.NewSubmitHandler(d.Submissions, model.TypeTrustline, d.PublicURL))
			r.Method(http.MethodPost, "/settings", handler.NewSubmitHandler(d.Submissions, model.TypeSettings, d.PublicURL))

			r.Method(http.MethodGet, "/submissions", handler.NewListSubmissionsHandler(d.Submissions))
			r.Method(http.MethodGet, "/submissions/{token}", handler.NewGetSubmissionHandler(d.Submissions, d.PublicURL))

			notifications := handler.NewNotificationHandler(d.Notifications)
			r.Method(http.MethodGet, "/notifications", notifications)
			r.Method(http.MethodGet, "/notifications/{identifier}", notifications)

			r.Method(http.MethodGet, "/balances", handler.NewBalancesHandler(d.Accounts))
			r.Method(http.MethodGet, "/trustlines", handler.NewTrustlinesHandler(d.Accounts))
			r.Method(http.MethodGet, "/settings", handler.NewSettingsHandler(d.Accounts))
		})
	})

	r.Route("/admin", func(r chi.Router) {
		protected(r)

		r.Method(http.MethodGet, "/submissions", admin.NewSubmissionsHandler(d.Submissions))
		r.Method(http.MethodGet, "/submissions/{id}", admin.NewSubmissionHandler(d.Submissions))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}
