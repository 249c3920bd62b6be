package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/stellar-payment-gateway/internal/httputil"
)

type contextKey string

const clientContextKey contextKey = "client"

// GetClient returns the identity of the authenticated caller, or "" when the
// request was not authenticated.
func GetClient(ctx context.Context) string {
	client, _ := ctx.Value(clientContextKey).(string)
	return client
}

// KeySet holds the SHA-256 hashes of the accepted API keys.
type KeySet map[string]struct{}

func NewKeySet(keys []string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[SHA256Hex(k)] = struct{}{}
		}
	}
	return set
}

// clientID is a short, stable identifier for a key that is safe to log and
// use as a rate-limit bucket.
func clientID(keyHash string) string {
	return "key:" + keyHash[:12]
}

// APIKeyAuth returns middleware that authenticates requests via Bearer token.
// Failed attempts are counted per remote address in failures; an address
// that exhausts its window is refused until the window resets.
func APIKeyAuth(keys KeySet, failures *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attemptKey := clientIPKey(r, "auth")
			if failures != nil {
				if blocked, resetAt := failures.Exhausted(attemptKey); blocked {
					w.Header().Set("Retry-After", retryAfter(resetAt))
					httputil.RespondError(w, http.StatusTooManyRequests, "rate_limited", "Too many authentication failures")
					return
				}
			}

			reject := func(message string) {
				if failures != nil {
					failures.Allow(attemptKey)
				}
				httputil.RespondError(w, http.StatusUnauthorized, "invalid_api_key", message)
			}

			token := extractBearerToken(r)
			if token == "" {
				reject("Missing API key")
				return
			}
			keyHash := SHA256Hex(token)
			if _, ok := keys[keyHash]; !ok {
				reject("Invalid API key")
				return
			}

			if failures != nil {
				failures.Forget(attemptKey)
			}
			ctx := context.WithValue(r.Context(), clientContextKey, clientID(keyHash))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// SHA256Hex returns the hex-encoded SHA-256 hash of the input.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}
