package store

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-payment-gateway/internal/model"
)

type identity struct {
	account string
	txType  model.TransactionType
	token   string
}

// Memory is a SubmissionStore kept in process memory. It is used when no
// database is configured and in tests.
type Memory struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Submission
	keys map[identity]uuid.UUID
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byID: make(map[uuid.UUID]*model.Submission),
		keys: make(map[identity]uuid.UUID),
		now:  time.Now,
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Reserve(_ context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	key := identity{sub.SourceAccount, sub.TransactionType, sub.IdempotencyToken}

	sub.SubmittedIDs = nil
	if id, ok := m.keys[key]; ok {
		existing := m.byID[id]
		if !existing.Retryable() {
			return ErrDuplicate
		}
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
		sub.SubmittedIDs = slices.Clone(existing.SubmittedIDs)
	} else {
		sub.ID = uuid.New()
		sub.CreatedAt = now
	}

	sub.UpdatedAt = now
	sub.SubmissionAttempts = 0
	sub.LifecycleState = model.StateUnsubmitted
	sub.LedgerReference = nil
	sub.TransactionHash = ""
	sub.NetworkResultCode = ""
	sub.NetworkResultMessage = ""
	sub.Finalized = false
	sub.ProvisionallyAccepted = false
	sub.ExpiresAt = nil

	m.keys[key] = sub.ID
	m.byID[sub.ID] = clone(sub)
	return nil
}

func (m *Memory) RecordAttempt(_ context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.get(id)
	if err != nil {
		return err
	}
	if sub.LifecycleState != model.StateUnsubmitted {
		return ErrInvalidTransition
	}

	if !slices.Contains(sub.SubmittedIDs, hash) {
		sub.SubmittedIDs = append(sub.SubmittedIDs, hash)
	}
	sub.SubmissionAttempts++
	if sub.ExpiresAt == nil || expiresAt.After(*sub.ExpiresAt) {
		exp := expiresAt
		sub.ExpiresAt = &exp
	}
	sub.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) MarkPending(_ context.Context, id uuid.UUID, ledgerRef uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.get(id)
	if err != nil {
		return err
	}
	if sub.LifecycleState != model.StateUnsubmitted {
		return ErrInvalidTransition
	}

	sub.LifecycleState = model.StatePending
	sub.ProvisionallyAccepted = true
	if ledgerRef != 0 {
		sub.LedgerReference = &ledgerRef
	}
	sub.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) Finalize(_ context.Context, id uuid.UUID, f model.Finalization) (*model.Submission, error) {
	if err := validFinalization(f); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if sub.LifecycleState.Final() {
		return nil, ErrInvalidTransition
	}

	sub.LifecycleState = f.State
	sub.Finalized = true
	sub.TransactionHash = f.TransactionHash
	sub.NetworkResultCode = f.ResultCode
	sub.NetworkResultMessage = f.ResultMessage
	if f.LedgerReference != 0 {
		ref := f.LedgerReference
		sub.LedgerReference = &ref
	}
	sub.UpdatedAt = m.now().UTC()
	return clone(sub), nil
}

func (m *Memory) GetSubmission(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return clone(sub), nil
}

func (m *Memory) ListSubmissionsByToken(_ context.Context, account, token string) ([]*model.Submission, error) {
	return m.filter(func(s *model.Submission) bool {
		return s.SourceAccount == account && s.IdempotencyToken == token
	}, false), nil
}

func (m *Memory) FindSubmissionByHash(_ context.Context, account, hash string) (*model.Submission, error) {
	subs := m.filter(func(s *model.Submission) bool {
		return s.SourceAccount == account && slices.Contains(s.SubmittedIDs, hash)
	}, false)
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return subs[len(subs)-1], nil
}

func (m *Memory) ListSubmissions(_ context.Context, filters SubmissionFilters) ([]*model.Submission, int, error) {
	subs := m.filter(func(s *model.Submission) bool {
		if filters.Account != "" && s.SourceAccount != filters.Account {
			return false
		}
		if filters.TransactionType != nil && s.TransactionType != *filters.TransactionType {
			return false
		}
		if filters.State != nil && s.LifecycleState != *filters.State {
			return false
		}
		if filters.From != nil && s.CreatedAt.Before(*filters.From) {
			return false
		}
		if filters.To != nil && s.CreatedAt.After(*filters.To) {
			return false
		}
		return true
	}, true)

	total := len(subs)
	limit, offset := filters.pagination()
	if offset >= total {
		return []*model.Submission{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return subs[offset:end], total, nil
}

func (m *Memory) ListUnfinalized(_ context.Context) ([]*model.Submission, error) {
	return m.filter(func(s *model.Submission) bool { return !s.Finalized }, false), nil
}

func (m *Memory) get(id uuid.UUID) (*model.Submission, error) {
	sub, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

// filter returns copies of matching records ordered by creation time.
func (m *Memory) filter(match func(*model.Submission) bool, newestFirst bool) []*model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Submission
	for _, sub := range m.byID {
		if match(sub) {
			out = append(out, clone(sub))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func clone(s *model.Submission) *model.Submission {
	c := *s
	c.SubmittedIDs = slices.Clone(s.SubmittedIDs)
	c.CanonicalTransaction = json.RawMessage(slices.Clone([]byte(s.CanonicalTransaction)))
	if s.LedgerReference != nil {
		ref := *s.LedgerReference
		c.LedgerReference = &ref
	}
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}
