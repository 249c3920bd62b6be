package handler

import (
	"context"

	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/service"
	"github.com/stellar-payment-gateway/internal/store"
)

// Submitter is implemented by *service.SubmissionService.
type Submitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmissionOutcome, error)
}

// SubmissionReader is implemented by *service.SubmissionService.
type SubmissionReader interface {
	Get(ctx context.Context, account, token string) ([]*model.Submission, error)
	List(ctx context.Context, filters store.SubmissionFilters) ([]*model.Submission, int, error)
}

// NotificationLocator is implemented by *service.NotificationService.
type NotificationLocator interface {
	Locate(ctx context.Context, account, identifier string) (*model.Notification, error)
	LocateLatest(ctx context.Context, account string) (*model.Notification, error)
}

// AccountReader is implemented by *service.AccountService.
type AccountReader interface {
	Balances(ctx context.Context, account string, filter service.BalanceFilter) ([]model.Balance, error)
	Trustlines(ctx context.Context, account string, filter service.BalanceFilter) ([]model.TrustlineInfo, error)
	Settings(ctx context.Context, account string) (*model.AccountSettings, error)
	Transaction(ctx context.Context, hash string) (*model.TransactionRecord, error)
}
