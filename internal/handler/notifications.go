package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stellar-payment-gateway/internal/httputil"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
)

// NotificationHandler serves the notification for one transaction of an
// account, or the latest one when no identifier is given.
type NotificationHandler struct {
	service NotificationLocator
}

func NewNotificationHandler(svc NotificationLocator) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	identifier := chi.URLParam(r, "identifier")

	var (
		n   *model.Notification
		err error
	)
	if identifier == "" {
		n, err = h.service.LocateLatest(r.Context(), account)
	} else {
		n, err = h.service.Locate(r.Context(), account, identifier)
	}
	if err != nil {
		service.RespondError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, n)
}
