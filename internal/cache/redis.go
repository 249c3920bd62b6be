// Package cache keeps transactions from closed ledgers in Redis. Closed
// ledgers are immutable, so a cached transaction never goes stale.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/ledger"
)

const txKeyPrefix = "tx:"

// Gateway decorates a ledger.Gateway with a read-through cache for
// TransactionByHash. Every other call goes to the wrapped gateway.
type Gateway struct {
	ledger.Gateway
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewGateway(next ledger.Gateway, client *redis.Client, ttl time.Duration) *Gateway {
	return &Gateway{Gateway: next, client: client, ttl: ttl}
}

func (g *Gateway) TransactionByHash(ctx context.Context, hash string) (*ledger.Transaction, error) {
	key := txKeyPrefix + hash

	raw, err := g.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tx ledger.Transaction
		if jerr := json.Unmarshal(raw, &tx); jerr == nil {
			return &tx, nil
		}
		log.Warn().Str("tx_hash", hash).Msg("discarding undecodable cached transaction")
	case !errors.Is(err, redis.Nil):
		// The cache is an optimisation; fall through to the network.
		log.Warn().Err(err).Str("tx_hash", hash).Msg("transaction cache read failed")
	}

	tx, err := g.Gateway.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(tx); err == nil {
		if err := g.client.Set(ctx, key, raw, g.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("tx_hash", hash).Msg("transaction cache write failed")
		}
	}
	return tx, nil
}

var _ ledger.Gateway = (*Gateway)(nil)
