// Package events publishes submission lifecycle events to interested consumers.
package events

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/model"
)

// Publisher is notified once per submission reaching a final state.
type Publisher interface {
	PublishFinalized(ctx context.Context, sub *model.Submission) error
	Close() error
}

// Finalized is the payload of a submission finalized event.
type Finalized struct {
	ID                 string                `json:"id"`
	SourceAccount      string                `json:"source_account"`
	TransactionType    model.TransactionType `json:"transaction_type"`
	IdempotencyToken   string                `json:"idempotency_token"`
	LifecycleState     model.LifecycleState  `json:"lifecycle_state"`
	TransactionHash    string                `json:"transaction_hash,omitempty"`
	LedgerReference    uint32                `json:"ledger_reference,omitempty"`
	ResultCode         string                `json:"result_code,omitempty"`
	SubmissionAttempts int                   `json:"submission_attempts"`
	FinalizedAt        time.Time             `json:"finalized_at"`
}

func newFinalized(sub *model.Submission) Finalized {
	ev := Finalized{
		ID:                 sub.ID.String(),
		SourceAccount:      sub.SourceAccount,
		TransactionType:    sub.TransactionType,
		IdempotencyToken:   sub.IdempotencyToken,
		LifecycleState:     sub.LifecycleState,
		TransactionHash:    sub.TransactionHash,
		ResultCode:         sub.NetworkResultCode,
		SubmissionAttempts: sub.SubmissionAttempts,
		FinalizedAt:        sub.UpdatedAt,
	}
	if sub.LedgerReference != nil {
		ev.LedgerReference = *sub.LedgerReference
	}
	return ev
}

// LogPublisher writes finalized events to the process log. It is used when
// no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) PublishFinalized(_ context.Context, sub *model.Submission) error {
	ev := newFinalized(sub)
	log.Info().
		Str("id", ev.ID).
		Str("account", ev.SourceAccount).
		Str("token", ev.IdempotencyToken).
		Str("state", string(ev.LifecycleState)).
		Str("tx_hash", ev.TransactionHash).
		Str("result_code", ev.ResultCode).
		Msg("submission finalized")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

var _ Publisher = (*LogPublisher)(nil)
