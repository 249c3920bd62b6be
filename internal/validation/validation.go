package validation

import (
	"encoding/hex"
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
)

const maxTokenLength = 255

// Account validates that account is a Stellar public key.
func Account(account string) error {
	if _, err := keypair.ParseAddress(account); err != nil {
		return fmt.Errorf("invalid account %q", account)
	}
	return nil
}

// Counterparty validates an optional issuer filter.
func Counterparty(counterparty string) error {
	if counterparty == "" {
		return nil
	}
	if _, err := keypair.ParseAddress(counterparty); err != nil {
		return fmt.Errorf("invalid counterparty %q", counterparty)
	}
	return nil
}

// IdempotencyToken validates a client-chosen token. Tokens are opaque but
// restricted to URL-safe characters so they can appear in resource paths.
func IdempotencyToken(token string) error {
	if token == "" {
		return fmt.Errorf("idempotency_token is required")
	}
	if len(token) > maxTokenLength {
		return fmt.Errorf("idempotency_token must be at most %d characters", maxTokenLength)
	}
	for _, r := range token {
		if !tokenChar(r) {
			return fmt.Errorf("idempotency_token contains invalid character %q", r)
		}
	}
	return nil
}

func tokenChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	}
	return false
}

// TransactionHash validates a hex-encoded 32 byte transaction hash.
func TransactionHash(hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("invalid transaction hash %q", hash)
	}
	return nil
}

// IsTransactionHash reports whether s looks like a transaction hash rather
// than an idempotency token.
func IsTransactionHash(s string) bool {
	return TransactionHash(s) == nil
}
