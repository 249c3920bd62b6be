package stellar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	hProtocol "github.com/stellar/go-stellar-sdk/protocols/horizon"
	"github.com/stellar/go-stellar-sdk/toid"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
)

const maxPageSize = 200

// Horizon async submission statuses.
const (
	txStatusPending       = "PENDING"
	txStatusDuplicate     = "DUPLICATE"
	txStatusTryAgainLater = "TRY_AGAIN_LATER"
	txStatusError         = "ERROR"
)

// HorizonClient is the subset of *horizonclient.Client used by the gateway.
type HorizonClient interface {
	Root() (hProtocol.Root, error)
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	Transactions(request horizonclient.TransactionRequest) (hProtocol.TransactionsPage, error)
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
	AsyncSubmitTransactionXDR(transactionXdr string) (hProtocol.AsyncTransactionSubmissionResponse, error)
}

// Gateway implements ledger.Gateway on top of a Horizon server.
type Gateway struct {
	client HorizonClient
	retry  ledger.RetryPolicy
}

// NewGateway creates a Horizon backed gateway. Transient failures are
// retried according to retry.
func NewGateway(client HorizonClient, retry ledger.RetryPolicy) *Gateway {
	return &Gateway{client: client, retry: retry}
}

func (g *Gateway) ServerStatus(ctx context.Context) (*ledger.ServerStatus, error) {
	var root hProtocol.Root
	err := g.do(ctx, "server_status", func() error {
		var err error
		root, err = g.client.Root()
		return err
	})
	if err != nil {
		return nil, err
	}

	status := &ledger.ServerStatus{}
	if root.HistoryElderSequence > 0 {
		status.CompleteLedgerMin = uint32(root.HistoryElderSequence)
	}
	if root.HorizonSequence > 0 {
		status.CompleteLedgerMax = uint32(root.HorizonSequence)
	}
	return status, nil
}

func (g *Gateway) AccountInfo(ctx context.Context, account string) (*model.AccountInfo, error) {
	var acct hProtocol.Account
	err := g.do(ctx, "account_info", func() error {
		var err error
		acct, err = g.client.AccountDetail(horizonclient.AccountRequest{AccountID: account})
		return err
	})
	if err != nil {
		return nil, err
	}
	return accountFromHorizon(acct)
}

func (g *Gateway) AccountTransactions(ctx context.Context, q ledger.AccountTxQuery) ([]ledger.Transaction, error) {
	if q.LedgerMin > q.LedgerMax {
		return nil, nil
	}

	pageSize := maxPageSize
	if q.Limit > 0 && q.Limit < pageSize {
		pageSize = q.Limit
	}

	req := horizonclient.TransactionRequest{
		ForAccount:    q.Account,
		IncludeFailed: true,
		Limit:         uint(pageSize),
	}
	// TOID cursors are exclusive: the first transaction of a ledger has order 1.
	if q.Forward {
		req.Order = horizonclient.OrderAsc
		req.Cursor = strconv.FormatInt(toid.New(int32(q.LedgerMin), 0, 0).ToInt64(), 10)
	} else {
		req.Order = horizonclient.OrderDesc
		req.Cursor = strconv.FormatInt(toid.New(int32(q.LedgerMax)+1, 0, 0).ToInt64(), 10)
	}

	var out []ledger.Transaction
	for {
		var page hProtocol.TransactionsPage
		err := g.do(ctx, "account_transactions", func() error {
			var err error
			page, err = g.client.Transactions(req)
			return err
		})
		if ledger.IsNotFound(err) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		records := page.Embedded.Records
		for _, rec := range records {
			tx, err := transactionFromHorizon(rec)
			if err != nil {
				return nil, err
			}
			if tx.Ledger < q.LedgerMin || tx.Ledger > q.LedgerMax {
				return out, nil
			}
			out = append(out, tx)
			if q.Limit > 0 && len(out) == q.Limit {
				return out, nil
			}
		}

		if len(records) < pageSize {
			return out, nil
		}
		req.Cursor = records[len(records)-1].PagingToken()
	}
}

func (g *Gateway) TransactionByHash(ctx context.Context, hash string) (*ledger.Transaction, error) {
	var rec hProtocol.Transaction
	err := g.do(ctx, "transaction_by_hash", func() error {
		var err error
		rec, err = g.client.TransactionDetail(hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	tx, err := transactionFromHorizon(rec)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Submit hands the envelope to Horizon's asynchronous endpoint. Resending an
// identical envelope is harmless: the network reports it as a duplicate.
func (g *Gateway) Submit(ctx context.Context, envelopeXDR string) (*ledger.SubmitResult, error) {
	var resp hProtocol.AsyncTransactionSubmissionResponse
	err := g.do(ctx, "submit", func() error {
		var err error
		resp, err = g.client.AsyncSubmitTransactionXDR(envelopeXDR)
		return err
	})
	if err != nil {
		if res, ok := submitResultFromError(err); ok {
			return res, nil
		}
		return nil, err
	}

	switch resp.TxStatus {
	case txStatusPending:
		return &ledger.SubmitResult{Hash: resp.Hash, Status: ledger.SubmitPending}, nil
	case txStatusDuplicate:
		return &ledger.SubmitResult{Hash: resp.Hash, Status: ledger.SubmitDuplicate}, nil
	case txStatusTryAgainLater:
		return &ledger.SubmitResult{Hash: resp.Hash, Status: ledger.SubmitTryAgainLater}, nil
	case txStatusError:
		return rejectedResult(resp.Hash, resp.ErrorResultXDR), nil
	default:
		return nil, ledger.NewError(ledger.KindTransient, "submit", fmt.Errorf("unexpected submission status %q", resp.TxStatus))
	}
}

// do runs a Horizon call with retries, classifying its error.
func (g *Gateway) do(ctx context.Context, op string, call func() error) error {
	return ledger.Retry(ctx, g.retry, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := call(); err != nil {
			return classify(op, err)
		}
		return nil
	})
}

func classify(op string, err error) error {
	if horizonclient.IsNotFoundError(err) {
		return ledger.NewError(ledger.KindNotFound, op, err)
	}

	herr := horizonclient.GetError(err)
	if herr == nil {
		// No problem document: the request never got a response.
		return ledger.NewError(ledger.KindTransient, op, err)
	}

	status := herrStatus(herr)
	switch {
	case status == http.StatusNotFound:
		return ledger.NewError(ledger.KindNotFound, op, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return ledger.NewError(ledger.KindTransient, op, err)
	}

	lerr := ledger.NewError(ledger.KindRejected, op, err)
	if codes, cerr := herr.ResultCodes(); cerr == nil && codes != nil {
		lerr.Code = codes.TransactionCode
	}
	return lerr
}

func herrStatus(herr *horizonclient.Error) int {
	if herr.Problem.Status != 0 {
		return herr.Problem.Status
	}
	if herr.Response != nil {
		return herr.Response.StatusCode
	}
	return 0
}

// submitResultFromError recovers a submission status that Horizon reported
// through a non-2xx response.
func submitResultFromError(err error) (*ledger.SubmitResult, bool) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		return nil, false
	}
	herr := horizonclient.GetError(lerr.Err)
	if herr == nil {
		return nil, false
	}

	switch herrStatus(herr) {
	case http.StatusConflict:
		return &ledger.SubmitResult{Status: ledger.SubmitDuplicate}, true
	case http.StatusServiceUnavailable:
		return &ledger.SubmitResult{Status: ledger.SubmitTryAgainLater}, true
	case http.StatusBadRequest:
		for _, key := range []string{"error_result_xdr", "result_xdr"} {
			if resultXDR, ok := herr.Problem.Extras[key].(string); ok && resultXDR != "" {
				return rejectedResult("", resultXDR), true
			}
		}
		code := lerr.Code
		if code == "" {
			code = CodeMalformed
		}
		return &ledger.SubmitResult{Status: ledger.SubmitRejected, ResultCode: code, ResultMessage: ResultMessage(code)}, true
	}
	return nil, false
}

func rejectedResult(hash, resultXDR string) *ledger.SubmitResult {
	code, err := ResultCodeFromXDR(resultXDR)
	if err != nil {
		log.Warn().Err(err).Str("tx_hash", hash).Msg("failed to decode submission error result")
		code = CodeMalformed
	}
	return &ledger.SubmitResult{
		Hash:          hash,
		Status:        ledger.SubmitRejected,
		ResultCode:    code,
		ResultMessage: ResultMessage(code),
	}
}

func transactionFromHorizon(rec hProtocol.Transaction) (ledger.Transaction, error) {
	pt, err := strconv.ParseInt(rec.PagingToken(), 10, 64)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("parse paging token %q: %w", rec.PagingToken(), err)
	}
	id := toid.Parse(pt)

	code := CodeSuccess
	if rec.ResultXdr != "" {
		if code, err = ResultCodeFromXDR(rec.ResultXdr); err != nil {
			return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", rec.Hash, err)
		}
	} else if !rec.Successful {
		code = CodeFailed
	}

	return ledger.Transaction{
		Hash:          rec.Hash,
		Ledger:        uint32(rec.Ledger),
		Index:         id.TransactionOrder,
		PagingToken:   rec.PagingToken(),
		SourceAccount: rec.Account,
		Successful:    rec.Successful,
		ResultCode:    code,
		EnvelopeXDR:   rec.EnvelopeXdr,
		FeeCharged:    rec.FeeCharged,
		ClosedAt:      rec.LedgerCloseTime,
	}, nil
}
