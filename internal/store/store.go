package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-payment-gateway/internal/model"
)

var (
	ErrNotFound = errors.New("submission not found")
	// ErrDuplicate is returned by Reserve when a record with the same
	// identity exists and has not failed.
	ErrDuplicate = errors.New("duplicate submission")
	// ErrInvalidTransition is returned when an update would move a record
	// backwards in its lifecycle or out of a final state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// SubmissionStore persists submission records. Every update is guarded by
// the predecessor states it is allowed from, so concurrent writers can never
// move a record backwards.
type SubmissionStore interface {
	// Reserve atomically claims the (source account, type, token) identity of
	// sub. A new record, or a reset of a failed one, is left in the
	// unsubmitted state and sub is updated with its id and timestamps.
	Reserve(ctx context.Context, sub *model.Submission) error
	// RecordAttempt appends a network identifier to an unsubmitted record and
	// counts the attempt.
	RecordAttempt(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	MarkPending(ctx context.Context, id uuid.UUID, ledgerRef uint32) error
	Finalize(ctx context.Context, id uuid.UUID, f model.Finalization) (*model.Submission, error)

	GetSubmission(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListSubmissionsByToken(ctx context.Context, account, token string) ([]*model.Submission, error)
	FindSubmissionByHash(ctx context.Context, account, hash string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filters SubmissionFilters) ([]*model.Submission, int, error)
	ListUnfinalized(ctx context.Context) ([]*model.Submission, error)
}

type SubmissionFilters struct {
	Account         string
	TransactionType *model.TransactionType
	State           *model.LifecycleState
	From            *time.Time
	To              *time.Time
	Page            int
	PerPage         int
}

func (f SubmissionFilters) pagination() (limit, offset int) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	perPage := f.PerPage
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return perPage, (page - 1) * perPage
}

func validFinalization(f model.Finalization) error {
	if !f.State.Final() {
		return errors.New("finalization requires a final state")
	}
	return nil
}
