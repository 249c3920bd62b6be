package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/stellar-payment-gateway/internal/events"
	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/metrics"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/stellar"
	"github.com/stellar-payment-gateway/internal/store"
	"github.com/stellar-payment-gateway/internal/validation"
)

// SubmissionConfig tunes the submission driver and monitor.
type SubmissionConfig struct {
	MaxAttempts  int
	WaitTimeout  time.Duration
	TxTimeout    time.Duration
	ExpiryGrace  time.Duration
	PollInterval time.Duration
	BaseFee      int64
	MaxFee       int64
	// RetryBackoff is the initial delay before resubmitting an envelope the
	// peer asked us to try again later.
	RetryBackoff time.Duration
}

// SubmitRequest is one idempotent request to submit a canonical transaction.
type SubmitRequest struct {
	Account           string
	TransactionType   model.TransactionType
	IdempotencyToken  string
	Transaction       *model.Transaction
	Secret            string
	WaitForValidation bool
}

// SubmissionOutcome is the state of a submission when the caller stopped
// waiting. InDoubt is set when the network has not yet given an answer the
// caller can rely on.
type SubmissionOutcome struct {
	Submission *model.Submission
	InDoubt    bool
}

// SubmissionService drives submissions through their lifecycle. Each accepted
// request is handled by a background driver that outlives the request.
type SubmissionService struct {
	store     store.SubmissionStore
	gateway   ledger.Gateway
	builder   *stellar.Builder
	publisher events.Publisher
	metrics   *metrics.Metrics
	cfg       SubmissionConfig
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSubmissionService(
	store store.SubmissionStore,
	gateway ledger.Gateway,
	builder *stellar.Builder,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg SubmissionConfig,
) *SubmissionService {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SubmissionService{
		store:     store,
		gateway:   gateway,
		builder:   builder,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit reserves the request's identity and starts driving the transaction
// to the network. It returns once the transaction is provisionally accepted,
// or finalized when WaitForValidation is set, or when the wait times out.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmissionOutcome, error) {
	if err := s.precheck(&req); err != nil {
		s.metrics.SubmissionAdmitted(string(req.TransactionType), "invalid")
		return nil, err
	}

	canonical, err := json.Marshal(req.Transaction)
	if err != nil {
		return nil, NewInvalidTransaction("transaction body cannot be encoded")
	}

	sub := &model.Submission{
		SourceAccount:        req.Account,
		TransactionType:      req.TransactionType,
		IdempotencyToken:     req.IdempotencyToken,
		CanonicalTransaction: canonical,
	}
	if err := s.store.Reserve(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.metrics.SubmissionAdmitted(string(req.TransactionType), "duplicate")
			return nil, NewDuplicateSubmission(fmt.Sprintf(
				"A %s submission with idempotency token %q already exists for this account", req.TransactionType, req.IdempotencyToken))
		}
		log.Error().Err(err).Str("account", req.Account).Str("token", req.IdempotencyToken).Msg("failed to reserve submission")
		return nil, NewInternal("internal_error", "Failed to record submission")
	}
	s.metrics.SubmissionAdmitted(string(req.TransactionType), "accepted")

	log.Info().
		Str("id", sub.ID.String()).
		Str("account", req.Account).
		Str("token", req.IdempotencyToken).
		Str("type", string(req.TransactionType)).
		Msg("submission reserved")

	d := s.start(ctx, sub.ID, func(ctx context.Context, d *driver) bool {
		return s.submit(ctx, d, req)
	})
	return s.await(ctx, d, req.WaitForValidation)
}

// precheck rejects requests that can never succeed before anything is
// recorded or sent to the network.
func (s *SubmissionService) precheck(req *SubmitRequest) error {
	if err := validation.IdempotencyToken(req.IdempotencyToken); err != nil {
		return NewInvalidTransaction(err.Error())
	}
	if err := validation.Account(req.Account); err != nil {
		return NewInvalidTransaction(err.Error())
	}
	if !req.TransactionType.Submittable() {
		return NewInvalidTransaction(fmt.Sprintf("transaction type %q cannot be submitted", req.TransactionType))
	}
	if req.Transaction == nil {
		return NewInvalidTransaction("transaction body is required")
	}
	if req.Transaction.Type == "" {
		req.Transaction.Type = req.TransactionType
	}
	if req.Transaction.Type != req.TransactionType {
		return NewInvalidTransaction(fmt.Sprintf("transaction body is a %s, not a %s", req.Transaction.Type, req.TransactionType))
	}
	if err := bindAccount(req.Transaction, req.Account); err != nil {
		return NewInvalidTransaction(err.Error())
	}
	if err := stellar.Validate(req.Transaction); err != nil {
		return NewInvalidTransaction(err.Error())
	}

	kp, err := keypair.ParseFull(req.Secret)
	if err != nil {
		return NewInvalidTransaction("secret must be a valid secret seed")
	}
	if kp.Address() != req.Account {
		return NewInvalidTransaction("secret does not belong to the source account")
	}
	return nil
}

// bindAccount fills the body's own account field from the request and
// rejects bodies that name a different account.
func bindAccount(tx *model.Transaction, account string) error {
	var field *string
	switch {
	case tx.Payment != nil:
		field = &tx.Payment.SourceAccount
	case tx.Trustline != nil:
		field = &tx.Trustline.Account
	case tx.Settings != nil:
		field = &tx.Settings.Account
	default:
		return nil
	}
	if *field == "" {
		*field = account
	}
	if *field != account {
		return fmt.Errorf("transaction body names account %s, expected %s", *field, account)
	}
	return nil
}

// Get returns the submissions of an account made with the given token, one
// per transaction type that used it.
func (s *SubmissionService) Get(ctx context.Context, account, token string) ([]*model.Submission, error) {
	subs, err := s.store.ListSubmissionsByToken(ctx, account, token)
	if err != nil {
		log.Error().Err(err).Str("account", account).Str("token", token).Msg("failed to load submissions")
		return nil, NewInternal("internal_error", "Failed to load submission")
	}
	if len(subs) == 0 {
		return nil, NewNotFound(CodeSubmissionNotFound, "No submission exists for this idempotency token")
	}
	return subs, nil
}

func (s *SubmissionService) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound(CodeSubmissionNotFound, "Submission not found")
		}
		log.Error().Err(err).Str("id", id.String()).Msg("failed to load submission")
		return nil, NewInternal("internal_error", "Failed to load submission")
	}
	return sub, nil
}

func (s *SubmissionService) List(ctx context.Context, filters store.SubmissionFilters) ([]*model.Submission, int, error) {
	subs, total, err := s.store.ListSubmissions(ctx, filters)
	if err != nil {
		log.Error().Err(err).Str("account", filters.Account).Msg("failed to list submissions")
		return nil, 0, NewInternal("internal_error", "Failed to list submissions")
	}
	return subs, total, nil
}

// Resume restarts monitoring of every unfinalized submission. Records that
// never reached the network are failed so their token can be reused.
func (s *SubmissionService) Resume(ctx context.Context) (int, error) {
	subs, err := s.store.ListUnfinalized(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinalized submissions: %w", err)
	}

	resumed := 0
	for _, sub := range subs {
		if sub.SubmissionAttempts == 0 {
			s.finalize(ctx, sub.ID, model.Finalization{
				State:         model.StateFailed,
				ResultCode:    "submission_interrupted",
				ResultMessage: "The service stopped before the transaction was sent to the network",
			})
			continue
		}
		s.start(ctx, sub.ID, func(context.Context, *driver) bool { return true })
		resumed++
	}

	log.Info().Int("resumed", resumed).Int("interrupted", len(subs)-resumed).Msg("resumed unfinalized submissions")
	return resumed, nil
}

// Close stops all drivers and monitors and waits for them to exit.
// Unfinalized records are picked up again by Resume on the next start.
func (s *SubmissionService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *SubmissionService) await(ctx context.Context, d *driver, waitForValidation bool) (*SubmissionOutcome, error) {
	wait := d.handoff
	if waitForValidation {
		wait = d.done
	}

	timer := time.NewTimer(s.cfg.WaitTimeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-wait:
		if err := d.failure(); err != nil {
			return nil, err
		}
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sub, err := s.store.GetSubmission(ctx, d.id)
	if err != nil {
		log.Error().Err(err).Str("id", d.id.String()).Msg("failed to load submission")
		return nil, NewInternal("internal_error", "Failed to load submission")
	}

	inDoubt := !sub.LifecycleState.Final() &&
		(timedOut || waitForValidation || sub.LifecycleState == model.StateUnsubmitted)
	return &SubmissionOutcome{Submission: sub, InDoubt: inDoubt}, nil
}

// driver tracks one background submission.
type driver struct {
	id uuid.UUID
	// handoff is closed once active submission stops: the transaction was
	// accepted, handed to the monitor or definitively failed.
	handoff chan struct{}
	done    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (d *driver) release(err error) {
	d.once.Do(func() {
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		close(d.handoff)
	})
}

func (d *driver) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// start runs submit and, when it hands over, the monitor in a goroutine that
// is detached from the caller's cancellation but stops with the service.
func (s *SubmissionService) start(ctx context.Context, id uuid.UUID, submit func(context.Context, *driver) bool) *driver {
	d := &driver{id: id, handoff: make(chan struct{}), done: make(chan struct{})}

	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(d.done)
		defer d.release(nil)
		defer cancel()
		defer stop()

		s.metrics.DriverStarted()
		defer s.metrics.DriverStopped()

		if !submit(dctx, d) {
			return
		}
		d.release(nil)
		s.monitor(dctx, id)
	}()
	return d
}
