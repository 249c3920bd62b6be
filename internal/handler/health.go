package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/ledger"
)

// Pinger is implemented by the submission stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusReader reports the network peer's ledger range.
type StatusReader interface {
	ServerStatus(ctx context.Context) (*ledger.ServerStatus, error)
}

type HealthHandler struct {
	store          Pinger
	network        StatusReader
	stellarNetwork string
	startTime      time.Time
}

func NewHealthHandler(s Pinger, network StatusReader, stellarNetwork string) *HealthHandler {
	return &HealthHandler{
		store:          s,
		network:        network,
		stellarNetwork: stellarNetwork,
		startTime:      time.Now(),
	}
}

type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	StellarNetwork    string `json:"stellar_network"`
	Database          string `json:"database"`
	Network           string `json:"network"`
	CompleteLedgerMin uint32 `json:"complete_ledger_min,omitempty"`
	CompleteLedgerMax uint32 `json:"complete_ledger_max,omitempty"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:         "healthy",
		Version:        "1.0.0",
		StellarNetwork: h.stellarNetwork,
		Database:       "ok",
		Network:        "ok",
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
	}

	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: store unreachable")
		resp.Status = "unhealthy"
		resp.Database = "unreachable"
	}

	// An unreachable network degrades the service but queued submissions
	// keep being monitored.
	status, err := h.network.ServerStatus(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("health check: network unreachable")
		if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
		resp.Network = "unreachable"
	} else {
		resp.CompleteLedgerMin = status.CompleteLedgerMin
		resp.CompleteLedgerMax = status.CompleteLedgerMax
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	httputil.RespondJSON(w, code, resp)
}
