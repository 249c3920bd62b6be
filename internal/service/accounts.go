package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/stellar"
	"github.com/stellar-payment-gateway/internal/validation"
)

// AccountService reads current account state and closed transactions.
type AccountService struct {
	gateway ledger.Gateway
}

func NewAccountService(gateway ledger.Gateway) *AccountService {
	return &AccountService{gateway: gateway}
}

// BalanceFilter narrows balances and trustlines. Empty fields match all.
type BalanceFilter struct {
	Currency     string
	Counterparty string
}

func (f BalanceFilter) matches(currency, counterparty string) bool {
	if f.Currency != "" && !strings.EqualFold(f.Currency, currency) {
		return false
	}
	return f.Counterparty == "" || f.Counterparty == counterparty
}

func (f BalanceFilter) validate() error {
	if err := validation.Counterparty(f.Counterparty); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return nil
}

func (s *AccountService) Balances(ctx context.Context, account string, filter BalanceFilter) ([]model.Balance, error) {
	info, err := s.account(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		if filter.matches(b.Currency, b.Counterparty) {
			balances = append(balances, b)
		}
	}
	return balances, nil
}

func (s *AccountService) Trustlines(ctx context.Context, account string, filter BalanceFilter) ([]model.TrustlineInfo, error) {
	info, err := s.account(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}

	lines := []model.TrustlineInfo{}
	for _, b := range info.Balances {
		if b.IsNative() || !filter.matches(b.Currency, b.Counterparty) {
			continue
		}
		lines = append(lines, model.TrustlineInfo{
			Account:      account,
			Currency:     b.Currency,
			Counterparty: b.Counterparty,
			Limit:        b.Limit,
			Balance:      b.Value,
			Authorized:   b.Authorized == nil || *b.Authorized,
		})
	}
	return lines, nil
}

func (s *AccountService) Settings(ctx context.Context, account string) (*model.AccountSettings, error) {
	info, err := s.account(ctx, account)
	if err != nil {
		return nil, err
	}
	return &model.AccountSettings{
		Account:        info.Account,
		Sequence:       info.Sequence,
		SubentryCount:  info.SubentryCount,
		HomeDomain:     info.HomeDomain,
		MasterWeight:   info.MasterWeight,
		Flags:          info.Flags,
		Thresholds:     info.Thresholds,
		MinimumBalance: info.MinimumBalance,
	}, nil
}

// Transaction looks up a transaction in a closed ledger by hash.
func (s *AccountService) Transaction(ctx context.Context, hash string) (*model.TransactionRecord, error) {
	if err := validation.TransactionHash(hash); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	tx, err := s.gateway.TransactionByHash(ctx, strings.ToLower(hash))
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, NewTransactionNotFound(fmt.Sprintf("Transaction %s was not found", hash))
		}
		return nil, gatewayError(err)
	}

	rec, err := stellar.Record(*tx)
	if err != nil {
		log.Error().Err(err).Str("tx_hash", hash).Msg("failed to convert transaction")
		return nil, NewBadGateway("invalid_network_response", "The network returned an undecodable transaction")
	}
	return rec, nil
}

func (s *AccountService) account(ctx context.Context, account string) (*model.AccountInfo, error) {
	if err := validation.Account(account); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	info, err := s.gateway.AccountInfo(ctx, account)
	if err != nil {
		if ledger.IsNotFound(err) {
			return nil, NewNotFound(CodeAccountNotFound, fmt.Sprintf("Account %s does not exist", account))
		}
		return nil, gatewayError(err)
	}
	return info, nil
}
