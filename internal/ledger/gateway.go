// Package ledger defines the boundary between the service and the remote
// ledger network. Implementations translate network-specific responses into
// these types and classify failures with *Error.
package ledger

import (
	"context"
	"time"

	"github.com/stellar-payment-gateway/internal/model"
)

// Gateway is the asynchronous request/response peer of the ledger network.
type Gateway interface {
	// ServerStatus reports the contiguous range of ledgers the peer holds history for.
	ServerStatus(ctx context.Context) (*ServerStatus, error)
	AccountInfo(ctx context.Context, account string) (*model.AccountInfo, error)
	// AccountTransactions returns transactions affecting the account within
	// [LedgerMin, LedgerMax] in chronological (Forward) or reverse order.
	AccountTransactions(ctx context.Context, q AccountTxQuery) ([]Transaction, error)
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	Submit(ctx context.Context, envelopeXDR string) (*SubmitResult, error)
}

type ServerStatus struct {
	CompleteLedgerMin uint32
	CompleteLedgerMax uint32
}

// Contains reports whether the ledger has full history on both sides, meaning
// neighbours in either direction can be determined without gaps.
func (s ServerStatus) Contains(ledger uint32) bool {
	return s.CompleteLedgerMin < ledger && ledger <= s.CompleteLedgerMax
}

type AccountTxQuery struct {
	Account   string
	LedgerMin uint32
	LedgerMax uint32
	// Limit caps the number of results. Zero returns everything in range.
	Limit   int
	Forward bool
}

// Transaction is a transaction included in a closed ledger.
type Transaction struct {
	Hash          string
	Ledger        uint32
	Index         int32 // application order within the ledger, starting at 1
	PagingToken   string
	SourceAccount string
	Successful    bool
	ResultCode    string
	EnvelopeXDR   string
	FeeCharged    int64
	ClosedAt      time.Time
}

// Before reports whether t was applied before o.
func (t Transaction) Before(o Transaction) bool {
	if t.Ledger != o.Ledger {
		return t.Ledger < o.Ledger
	}
	return t.Index < o.Index
}

type SubmitStatus string

const (
	// SubmitPending means the peer accepted the transaction for inclusion.
	SubmitPending SubmitStatus = "pending"
	// SubmitDuplicate means the peer already holds this exact transaction.
	SubmitDuplicate SubmitStatus = "duplicate"
	// SubmitTryAgainLater means the peer declined for now without judging the transaction.
	SubmitTryAgainLater SubmitStatus = "try_again_later"
	// SubmitRejected means the transaction can never be included as-is.
	SubmitRejected SubmitStatus = "rejected"
)

// Accepted reports whether the transaction is provisionally accepted.
func (s SubmitStatus) Accepted() bool {
	return s == SubmitPending || s == SubmitDuplicate
}

type SubmitResult struct {
	Hash          string
	Status        SubmitStatus
	ResultCode    string
	ResultMessage string
}
