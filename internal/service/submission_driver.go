package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/stellar"
	"github.com/stellar-payment-gateway/internal/store"
)

const codeNetworkUnavailable = "network_unavailable"

// submit sends the transaction until the peer provisionally accepts it, the
// outcome becomes unknowable or it definitively fails. It reports whether
// the record must be handed to the monitor.
func (s *SubmissionService) submit(ctx context.Context, d *driver, req SubmitRequest) bool {
	logger := log.With().Str("id", d.id.String()).Str("account", req.Account).Str("token", req.IdempotencyToken).Logger()

	account, err := s.gateway.AccountInfo(ctx, req.Account)
	if err != nil {
		return s.failBeforeSubmit(ctx, d, err)
	}

	fee := s.cfg.BaseFee
	var env *stellar.Envelope
	var last *ledger.SubmitResult
	var sent []string

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if env == nil {
			env, err = s.builder.Build(stellar.BuildParams{
				Source:      account,
				Transaction: req.Transaction,
				Secret:      req.Secret,
				BaseFee:     fee,
				ExpiresAt:   s.now().Add(s.cfg.TxTimeout),
			})
			if err != nil {
				return s.fail(ctx, d, stellar.CodeMalformed, err.Error(), NewInvalidTransaction(err.Error()))
			}
		}

		if err := s.store.RecordAttempt(ctx, d.id, env.Hash, env.ExpiresAt); err != nil {
			logger.Error().Err(err).Str("tx_hash", env.Hash).Msg("failed to record submission attempt")
			if len(sent) > 0 {
				// Earlier envelopes may still be included.
				return true
			}
			return s.fail(ctx, d, "internal_error", "The submission attempt could not be recorded",
				NewInternal("internal_error", "Failed to record submission attempt"))
		}
		sent = append(sent, env.Hash)

		res, err := s.gateway.Submit(ctx, env.XDR)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warn().Err(err).Str("tx_hash", env.Hash).Msg("submission outcome unknown, monitoring")
			return true
		}
		last = res

		logger.Debug().Str("tx_hash", env.Hash).Str("status", string(res.Status)).Int("attempt", attempt).Msg("submitted transaction")

		switch res.Status {
		case ledger.SubmitPending, ledger.SubmitDuplicate:
			s.markPending(ctx, d.id)
			return true

		case ledger.SubmitTryAgainLater:
			s.metrics.Resubmitted(string(ledger.SubmitTryAgainLater))
			if !s.sleep(ctx, s.backoff(attempt)) {
				return false
			}

		case ledger.SubmitRejected:
			switch res.ResultCode {
			case stellar.CodeBadSeq:
				if account, err = s.gateway.AccountInfo(ctx, req.Account); err != nil {
					if ctx.Err() != nil {
						return false
					}
					logger.Warn().Err(err).Msg("account reload failed after bad sequence, monitoring")
					return true
				}
				// A retried delivery of one of our envelopes may be what
				// consumed the sequence number.
				if account.Sequence >= env.Sequence && s.anyIncluded(ctx, sent) {
					logger.Info().Str("tx_hash", env.Hash).Msg("sequence consumed by an earlier delivery, monitoring")
					return true
				}
				s.metrics.Resubmitted(res.ResultCode)
				env = nil
			case stellar.CodeInsufficientFee:
				if fee >= s.cfg.MaxFee {
					return s.fail(ctx, d, res.ResultCode, res.ResultMessage, NewInvalidTransaction(
						"The network requires a fee above the configured maximum"))
				}
				s.metrics.Resubmitted(res.ResultCode)
				fee = min(fee*2, s.cfg.MaxFee)
				env = nil
			default:
				return s.fail(ctx, d, res.ResultCode, res.ResultMessage, NewInvalidTransaction(res.ResultMessage))
			}
		}
	}

	if last != nil && last.Status == ledger.SubmitTryAgainLater {
		return s.fail(ctx, d, codeNetworkUnavailable, "The network declined the transaction repeatedly",
			NewNetworkUnavailable("The network is not accepting transactions right now"))
	}
	code, msg := stellar.CodeBadSeq, stellar.ResultMessage(stellar.CodeBadSeq)
	if last != nil && last.ResultCode != "" {
		code, msg = last.ResultCode, last.ResultMessage
	}
	return s.fail(ctx, d, code, msg, NewInvalidTransaction(msg))
}

// anyIncluded reports whether one of hashes may have been included in a
// ledger. Lookup failures other than not found count as included.
func (s *SubmissionService) anyIncluded(ctx context.Context, hashes []string) bool {
	for _, hash := range hashes {
		_, err := s.gateway.TransactionByHash(ctx, hash)
		if err == nil || !ledger.IsNotFound(err) {
			return true
		}
	}
	return false
}

// failBeforeSubmit handles a failed account lookup. No envelope built from
// this lookup reached the network, so failing the record is safe.
func (s *SubmissionService) failBeforeSubmit(ctx context.Context, d *driver, err error) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case ledger.IsNotFound(err):
		msg := stellar.ResultMessage(stellar.CodeNoAccount)
		return s.fail(ctx, d, stellar.CodeNoAccount, msg, NewInvalidTransaction(msg))
	case ledger.IsTransient(err):
		log.Warn().Err(err).Str("id", d.id.String()).Msg("network unavailable before submission")
		return s.fail(ctx, d, codeNetworkUnavailable, "The network could not be reached",
			NewNetworkUnavailable("The network could not be reached"))
	default:
		return s.fail(ctx, d, stellar.CodeMalformed, err.Error(), NewInvalidTransaction(err.Error()))
	}
}

// fail records a definitive failure that happened before any provisional
// acceptance and releases the caller with callerErr.
func (s *SubmissionService) fail(ctx context.Context, d *driver, code, message string, callerErr *Error) bool {
	s.finalize(ctx, d.id, model.Finalization{
		State:         model.StateFailed,
		ResultCode:    code,
		ResultMessage: message,
	})
	d.release(callerErr)
	return false
}

func (s *SubmissionService) markPending(ctx context.Context, id uuid.UUID) {
	var ref uint32
	if status, err := s.gateway.ServerStatus(ctx); err == nil {
		ref = status.CompleteLedgerMax + 1
	} else {
		log.Warn().Err(err).Str("id", id.String()).Msg("could not determine in-flight ledger")
	}

	if err := s.store.MarkPending(ctx, id, ref); err != nil {
		log.Error().Err(err).Str("id", id.String()).Msg("failed to mark submission pending")
	}
}

// monitor polls the network until every outstanding envelope of the record
// is resolved, either by inclusion in a ledger or by expiry.
func (s *SubmissionService) monitor(ctx context.Context, id uuid.UUID) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if s.check(ctx, id) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check looks up the record's envelopes once and reports whether the record
// is final.
func (s *SubmissionService) check(ctx context.Context, id uuid.UUID) bool {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("id", id.String()).Msg("failed to load monitored submission")
		}
		return errors.Is(err, store.ErrNotFound)
	}
	if sub.Finalized {
		return true
	}

	// Later envelopes are the likeliest to be included.
	for i := len(sub.SubmittedIDs) - 1; i >= 0; i-- {
		hash := sub.SubmittedIDs[i]
		tx, err := s.gateway.TransactionByHash(ctx, hash)
		if err == nil {
			state := model.StateFailed
			if stellar.Successful(*tx) {
				state = model.StateValidated
			}
			return s.finalize(ctx, id, model.Finalization{
				State:           state,
				TransactionHash: tx.Hash,
				LedgerReference: tx.Ledger,
				ResultCode:      tx.ResultCode,
				ResultMessage:   stellar.ResultMessage(tx.ResultCode),
			})
		}
		if !ledger.IsNotFound(err) {
			log.Debug().Err(err).Str("id", id.String()).Str("tx_hash", hash).Msg("transaction lookup failed")
			return false
		}
	}

	// Every envelope carries an upper time bound. Once it has passed, none of
	// them can be included any more.
	if sub.ExpiresAt != nil && s.now().After(sub.ExpiresAt.Add(s.cfg.ExpiryGrace)) {
		return s.finalize(ctx, id, model.Finalization{
			State:         model.StateFailed,
			ResultCode:    stellar.CodeTooLate,
			ResultMessage: stellar.ResultMessage(stellar.CodeTooLate),
		})
	}
	return false
}

// finalize records f and publishes the result. It reports whether the record
// is final afterwards, which includes a concurrent finalization winning.
func (s *SubmissionService) finalize(ctx context.Context, id uuid.UUID, f model.Finalization) bool {
	sub, err := s.store.Finalize(ctx, id, f)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return true
		}
		log.Error().Err(err).Str("id", id.String()).Str("state", string(f.State)).Msg("failed to finalize submission")
		return false
	}

	log.Info().
		Str("id", id.String()).
		Str("account", sub.SourceAccount).
		Str("token", sub.IdempotencyToken).
		Str("state", string(sub.LifecycleState)).
		Str("tx_hash", sub.TransactionHash).
		Str("result_code", sub.NetworkResultCode).
		Msg("submission finalized")

	s.metrics.SubmissionFinalized(string(sub.LifecycleState), sub.NetworkResultCode)
	if s.publisher != nil {
		if err := s.publisher.PublishFinalized(ctx, sub); err != nil {
			log.Error().Err(err).Str("id", id.String()).Msg("failed to publish finalized submission")
		}
	}
	return true
}

func (s *SubmissionService) backoff(attempt int) time.Duration {
	d := s.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (s *SubmissionService) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
