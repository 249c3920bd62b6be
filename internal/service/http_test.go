package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"duplicate", NewDuplicateSubmission("exists"), http.StatusConflict, CodeDuplicateSubmission},
		{"invalid", NewInvalidTransaction("bad"), http.StatusBadRequest, CodeInvalidTransaction},
		{"unavailable", NewNetworkUnavailable("down"), http.StatusServiceUnavailable, CodeNetworkUnavailable},
		{"incomplete history", NewIncompleteHistory("gap"), http.StatusServiceUnavailable, CodeIncompleteHistory},
		{"wrapped", fmt.Errorf("locate: %w", NewTransactionNotFound("gone")), http.StatusNotFound, CodeTransactionNotFound},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"cancelled", context.Canceled, 499, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tt.err)
			if rr.Code != tt.code {
				t.Fatalf("unexpected status code: %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.body) {
				t.Fatalf("expected body to contain %q, got %s", tt.body, rr.Body.String())
			}
		})
	}
}
