package handler

import (
	"net/http"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/stellar"
)

type InfoHandler struct {
	networkPassphrase string
	baseFee           int64
	maxFee            int64
}

func NewInfoHandler(networkPassphrase string, baseFee, maxFee int64) *InfoHandler {
	return &InfoHandler{networkPassphrase: networkPassphrase, baseFee: baseFee, maxFee: maxFee}
}

type InfoResponse struct {
	NetworkPassphrase string   `json:"network_passphrase"`
	BaseReserve       string   `json:"base_reserve"`
	BaseFee           int64    `json:"base_fee"`
	MaxFee            int64    `json:"max_fee"`
	TransactionTypes  []string `json:"transaction_types"`
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, InfoResponse{
		NetworkPassphrase: h.networkPassphrase,
		BaseReserve:       "0.5000000",
		BaseFee:           h.baseFee,
		MaxFee:            h.maxFee,
		TransactionTypes:  stellar.SupportedTransactionTypes(),
	})
}
