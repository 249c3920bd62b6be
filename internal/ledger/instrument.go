package ledger

import (
	"context"
	"time"

	"github.com/stellar-payment-gateway/internal/model"
)

// Observer receives the outcome of every gateway call.
type Observer interface {
	ObserveGatewayCall(op string, err error, elapsed time.Duration)
}

type instrumented struct {
	next Gateway
	obs  Observer
}

// Instrument wraps a gateway so that every call is reported to obs.
func Instrument(next Gateway, obs Observer) Gateway {
	return &instrumented{next: next, obs: obs}
}

func (g *instrumented) observe(op string, start time.Time, err error) {
	g.obs.ObserveGatewayCall(op, err, time.Since(start))
}

func (g *instrumented) ServerStatus(ctx context.Context) (_ *ServerStatus, err error) {
	defer func(start time.Time) { g.observe("server_status", start, err) }(time.Now())
	return g.next.ServerStatus(ctx)
}

func (g *instrumented) AccountInfo(ctx context.Context, account string) (_ *model.AccountInfo, err error) {
	defer func(start time.Time) { g.observe("account_info", start, err) }(time.Now())
	return g.next.AccountInfo(ctx, account)
}

func (g *instrumented) AccountTransactions(ctx context.Context, q AccountTxQuery) (_ []Transaction, err error) {
	defer func(start time.Time) { g.observe("account_transactions", start, err) }(time.Now())
	return g.next.AccountTransactions(ctx, q)
}

func (g *instrumented) TransactionByHash(ctx context.Context, hash string) (_ *Transaction, err error) {
	defer func(start time.Time) { g.observe("transaction_by_hash", start, err) }(time.Now())
	return g.next.TransactionByHash(ctx, hash)
}

func (g *instrumented) Submit(ctx context.Context, envelopeXDR string) (_ *SubmitResult, err error) {
	defer func(start time.Time) { g.observe("submit", start, err) }(time.Now())
	return g.next.Submit(ctx, envelopeXDR)
}
