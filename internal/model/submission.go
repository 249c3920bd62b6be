package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type LifecycleState string

const (
	StateUnsubmitted LifecycleState = "unsubmitted"
	StatePending     LifecycleState = "pending"
	StateValidated   LifecycleState = "validated"
	StateFailed      LifecycleState = "failed"
)

// Final reports whether the state can no longer change, except through a
// retry that reuses the idempotency token of a failed submission.
func (s LifecycleState) Final() bool {
	return s == StateValidated || s == StateFailed
}

func (s LifecycleState) Valid() bool {
	switch s {
	case StateUnsubmitted, StatePending, StateValidated, StateFailed:
		return true
	}
	return false
}

// Submission is the durable record of one idempotent submission request.
type Submission struct {
	ID                    uuid.UUID       `json:"id"`
	SourceAccount         string          `json:"source_account"`
	TransactionType       TransactionType `json:"transaction_type"`
	IdempotencyToken      string          `json:"idempotency_token"`
	CanonicalTransaction  json.RawMessage `json:"canonical_transaction"`
	SubmittedIDs          []string        `json:"submitted_ids"`
	SubmissionAttempts    int             `json:"submission_attempts"`
	LifecycleState        LifecycleState  `json:"lifecycle_state"`
	LedgerReference       *uint32         `json:"ledger_reference,omitempty"`
	TransactionHash       string          `json:"transaction_hash,omitempty"`
	NetworkResultCode     string          `json:"network_result_code,omitempty"`
	NetworkResultMessage  string          `json:"network_result_message,omitempty"`
	Finalized             bool            `json:"finalized"`
	ProvisionallyAccepted bool            `json:"provisionally_accepted"`
	ExpiresAt             *time.Time      `json:"expires_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Retryable reports whether a new submission may reuse the record's
// idempotency token: it failed without any network effect.
func (s *Submission) Retryable() bool {
	return s.LifecycleState == StateFailed && !s.ProvisionallyAccepted &&
		s.TransactionHash == "" && s.LedgerReference == nil
}

// LatestSubmittedID returns the most recent network identifier, if any.
func (s *Submission) LatestSubmittedID() string {
	if len(s.SubmittedIDs) == 0 {
		return ""
	}
	return s.SubmittedIDs[len(s.SubmittedIDs)-1]
}

// Finalization is the definitive outcome recorded for a submission.
type Finalization struct {
	State           LifecycleState
	TransactionHash string
	LedgerReference uint32
	ResultCode      string
	ResultMessage   string
}
