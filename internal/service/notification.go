package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/metrics"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/stellar"
	"github.com/stellar-payment-gateway/internal/store"
	"github.com/stellar-payment-gateway/internal/validation"
)

// NotificationService derives notifications from an account's transaction
// history: each notification links to the previous and next transaction of
// the same account, so clients can walk the history in either direction.
type NotificationService struct {
	gateway   ledger.Gateway
	store     store.SubmissionStore
	metrics   *metrics.Metrics
	publicURL string
}

func NewNotificationService(gateway ledger.Gateway, store store.SubmissionStore, m *metrics.Metrics, publicURL string) *NotificationService {
	return &NotificationService{
		gateway:   gateway,
		store:     store,
		metrics:   m,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Locate returns the notification for a transaction of account. identifier
// is a transaction hash or an idempotency token used with this service.
func (s *NotificationService) Locate(ctx context.Context, account, identifier string) (*model.Notification, error) {
	if err := validation.Account(account); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	hash, token, err := s.resolve(ctx, account, identifier)
	if err != nil {
		return nil, err
	}

	tx, err := s.gateway.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, s.lookupError(err, hash)
	}

	n, err := s.locate(ctx, account, *tx)
	if err != nil {
		return nil, err
	}
	if n.IdempotencyToken == "" {
		n.IdempotencyToken = token
	}
	return n, nil
}

// LocateLatest returns the notification for the most recent transaction of
// account within the peer's complete history.
func (s *NotificationService) LocateLatest(ctx context.Context, account string) (*model.Notification, error) {
	if err := validation.Account(account); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	status, err := s.gateway.ServerStatus(ctx)
	if err != nil {
		return nil, s.gatewayError(err)
	}
	if status.CompleteLedgerMax <= status.CompleteLedgerMin {
		s.metrics.NotificationLookup("incomplete_history")
		return nil, NewIncompleteHistory("The network has no complete ledger history yet")
	}

	txs, err := s.gateway.AccountTransactions(ctx, ledger.AccountTxQuery{
		Account:   account,
		LedgerMin: status.CompleteLedgerMin + 1,
		LedgerMax: status.CompleteLedgerMax,
		Limit:     1,
	})
	if err != nil {
		return nil, s.gatewayError(err)
	}
	if len(txs) == 0 {
		s.metrics.NotificationLookup("not_found")
		return nil, NewTransactionNotFound("The account has no transactions in the available history")
	}
	return s.locate(ctx, account, txs[0])
}

// resolve maps identifier to a transaction hash. Tokens resolve through the
// submission records, and only once a record has a definitive hash.
func (s *NotificationService) resolve(ctx context.Context, account, identifier string) (hash, token string, err error) {
	if validation.IsTransactionHash(identifier) {
		return strings.ToLower(identifier), "", nil
	}
	if validation.IdempotencyToken(identifier) != nil {
		return "", "", NewBadRequest("invalid_request", "identifier must be a transaction hash or an idempotency token")
	}

	subs, err := s.store.ListSubmissionsByToken(ctx, account, identifier)
	if err != nil {
		log.Error().Err(err).Str("account", account).Str("token", identifier).Msg("failed to resolve token")
		return "", "", NewInternal("internal_error", "Failed to resolve idempotency token")
	}
	for i := len(subs) - 1; i >= 0; i-- {
		if subs[i].TransactionHash != "" {
			return subs[i].TransactionHash, identifier, nil
		}
	}
	s.metrics.NotificationLookup("not_found")
	return "", "", NewTransactionNotFound("No transaction has been recorded for this idempotency token")
}

// locate finds the neighbours of base in the account's history. All three
// queries run against a single snapshot of the complete ledger range.
func (s *NotificationService) locate(ctx context.Context, account string, base ledger.Transaction) (*model.Notification, error) {
	status, err := s.gateway.ServerStatus(ctx)
	if err != nil {
		return nil, s.gatewayError(err)
	}
	if !status.Contains(base.Ledger) {
		s.metrics.NotificationLookup("incomplete_history")
		return nil, NewIncompleteHistory(fmt.Sprintf(
			"Ledger %d is outside the complete history range (%d, %d]",
			base.Ledger, status.CompleteLedgerMin, status.CompleteLedgerMax))
	}

	var same, after, before []ledger.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		same, err = s.gateway.AccountTransactions(gctx, ledger.AccountTxQuery{
			Account: account, LedgerMin: base.Ledger, LedgerMax: base.Ledger, Forward: true,
		})
		return err
	})
	if base.Ledger < status.CompleteLedgerMax {
		g.Go(func() error {
			var err error
			after, err = s.gateway.AccountTransactions(gctx, ledger.AccountTxQuery{
				Account: account, LedgerMin: base.Ledger + 1, LedgerMax: status.CompleteLedgerMax, Limit: 2, Forward: true,
			})
			return err
		})
	}
	if base.Ledger-1 > status.CompleteLedgerMin {
		g.Go(func() error {
			var err error
			before, err = s.gateway.AccountTransactions(gctx, ledger.AccountTxQuery{
				Account: account, LedgerMin: status.CompleteLedgerMin + 1, LedgerMax: base.Ledger - 1, Limit: 2,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.gatewayError(err)
	}

	idx := -1
	for i, tx := range same {
		if tx.Hash == base.Hash {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.metrics.NotificationLookup("not_found")
		return nil, NewTransactionNotFound("The transaction does not affect this account")
	}

	var prev, next *ledger.Transaction
	if idx > 0 {
		prev = &same[idx-1]
	} else if len(before) > 0 {
		prev = &before[0]
	}
	if idx < len(same)-1 {
		next = &same[idx+1]
	} else if len(after) > 0 {
		next = &after[0]
	}

	n, err := s.notification(account, same[idx], prev, next)
	if err != nil {
		return nil, err
	}
	if sub, err := s.store.FindSubmissionByHash(ctx, account, n.TransactionHash); err == nil {
		n.IdempotencyToken = sub.IdempotencyToken
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("tx_hash", n.TransactionHash).Msg("failed to look up submission for notification")
	}

	s.metrics.NotificationLookup("found")
	return n, nil
}

func (s *NotificationService) notification(account string, tx ledger.Transaction, prev, next *ledger.Transaction) (*model.Notification, error) {
	decoded, err := stellar.DecodeEnvelope(tx.EnvelopeXDR)
	if err != nil {
		log.Error().Err(err).Str("tx_hash", tx.Hash).Msg("failed to decode transaction envelope")
		return nil, NewBadGateway("invalid_network_response", "The network returned an undecodable transaction")
	}

	state := model.StateFailed
	if stellar.Successful(tx) {
		state = model.StateValidated
	}

	n := &model.Notification{
		Account:         account,
		TransactionHash: tx.Hash,
		TransactionType: decoded.Transaction.Type,
		Direction:       stellar.Direction(account, decoded),
		State:           state,
		ResultCode:      tx.ResultCode,
		LedgerSequence:  tx.Ledger,
		Timestamp:       tx.ClosedAt,
		TransactionURL:  s.publicURL + "/v1/transactions/" + tx.Hash,
	}
	if prev != nil {
		n.PreviousHash = prev.Hash
		n.PreviousNotificationURL = s.notificationURL(account, prev.Hash)
	}
	if next != nil {
		n.NextHash = next.Hash
		n.NextNotificationURL = s.notificationURL(account, next.Hash)
	}
	return n, nil
}

func (s *NotificationService) notificationURL(account, hash string) string {
	return fmt.Sprintf("%s/v1/accounts/%s/notifications/%s", s.publicURL, account, hash)
}

func (s *NotificationService) lookupError(err error, hash string) error {
	if ledger.IsNotFound(err) {
		s.metrics.NotificationLookup("not_found")
		return NewTransactionNotFound(fmt.Sprintf("Transaction %s was not found", hash))
	}
	return s.gatewayError(err)
}

func (s *NotificationService) gatewayError(err error) error {
	s.metrics.NotificationLookup("error")
	return gatewayError(err)
}

// gatewayError maps a classified gateway failure to a service error.
func gatewayError(err error) error {
	switch {
	case ledger.IsNotFound(err):
		return NewNotFound("not_found", "The requested object does not exist on the network")
	case ledger.IsRejected(err):
		return NewBadGateway("network_rejected", "The network rejected the request")
	default:
		log.Warn().Err(err).Msg("gateway request failed")
		return NewNetworkUnavailable("The network could not be reached")
	}
}
