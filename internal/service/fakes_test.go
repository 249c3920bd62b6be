package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
	"github.com/stellar-payment-gateway/internal/stellar"
)

// fakeGateway is an in-memory ledger peer. Accepted submissions are included
// in the next ledger when include is set.
type fakeGateway struct {
	mu        sync.Mutex
	signer    *stellar.Signer
	status    ledger.ServerStatus
	statusErr error
	accounts  map[string]*model.AccountInfo
	history   map[string][]ledger.Transaction
	byHash    map[string]ledger.Transaction

	// submit decides the peer's answer to the n-th submission (starting at 1).
	submit func(n int, hash string) (*ledger.SubmitResult, error)

	include       bool
	includeFailed bool // include accepted submissions as failed transactions

	submitted []string
	calls     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		signer:   stellar.NewSigner(network.TestNetworkPassphrase),
		status:   ledger.ServerStatus{CompleteLedgerMin: 10, CompleteLedgerMax: 500},
		accounts: make(map[string]*model.AccountInfo),
		history:  make(map[string][]ledger.Transaction),
		byHash:   make(map[string]ledger.Transaction),
	}
}

func notFound(op string) error {
	return ledger.NewError(ledger.KindNotFound, op, errors.New("resource missing"))
}

func (g *fakeGateway) addAccount(account string, seq int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[account] = &model.AccountInfo{Account: account, Sequence: seq, MinimumBalance: "1.0000000"}
}

func (g *fakeGateway) setSequence(account string, seq int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[account].Sequence = seq
}

// addTransaction records tx in the history of every given account.
func (g *fakeGateway) addTransaction(tx ledger.Transaction, accounts ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byHash[tx.Hash] = tx
	for _, a := range accounts {
		h := append(g.history[a], tx)
		sort.Slice(h, func(i, j int) bool { return h[i].Before(h[j]) })
		g.history[a] = h
	}
}

func (g *fakeGateway) submissions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.submitted...)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) ServerStatus(context.Context) (*ledger.ServerStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	status := g.status
	return &status, nil
}

func (g *fakeGateway) AccountInfo(_ context.Context, account string) (*model.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	info, ok := g.accounts[account]
	if !ok {
		return nil, notFound("account_info")
	}
	c := *info
	c.Balances = append([]model.Balance(nil), info.Balances...)
	return &c, nil
}

func (g *fakeGateway) AccountTransactions(_ context.Context, q ledger.AccountTxQuery) ([]ledger.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++

	var out []ledger.Transaction
	for _, tx := range g.history[q.Account] {
		if tx.Ledger >= q.LedgerMin && tx.Ledger <= q.LedgerMax {
			out = append(out, tx)
		}
	}
	if !q.Forward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (g *fakeGateway) TransactionByHash(_ context.Context, hash string) (*ledger.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	tx, ok := g.byHash[hash]
	if !ok {
		return nil, notFound("transaction_by_hash")
	}
	return &tx, nil
}

func (g *fakeGateway) Submit(_ context.Context, envelopeXDR string) (*ledger.SubmitResult, error) {
	hash, err := g.signer.HashEnvelope(envelopeXDR)
	if err != nil {
		return nil, ledger.NewError(ledger.KindRejected, "submit", err)
	}

	g.mu.Lock()
	g.calls++
	g.submitted = append(g.submitted, hash)
	n := len(g.submitted)
	submit := g.submit
	g.mu.Unlock()

	res := &ledger.SubmitResult{Hash: hash, Status: ledger.SubmitPending}
	if submit != nil {
		r, err := submit(n, hash)
		if err != nil {
			return nil, err
		}
		res = r
		res.Hash = hash
	}

	if res.Status.Accepted() {
		g.mu.Lock()
		if g.include || g.includeFailed {
			g.status.CompleteLedgerMax++
			tx := ledger.Transaction{
				Hash:        hash,
				Ledger:      g.status.CompleteLedgerMax,
				Index:       1,
				Successful:  !g.includeFailed,
				ResultCode:  stellar.CodeSuccess,
				EnvelopeXDR: envelopeXDR,
				ClosedAt:    time.Now().UTC(),
			}
			if g.includeFailed {
				tx.ResultCode = stellar.CodeFailed
			}
			g.byHash[hash] = tx
		}
		g.mu.Unlock()
	}
	return res, nil
}

var _ ledger.Gateway = (*fakeGateway)(nil)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Submission
}

func (p *recordingPublisher) PublishFinalized(_ context.Context, sub *model.Submission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, sub)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []*model.Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Submission(nil), p.events...)
}

func randomKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	return kp
}

func hashOf(n int) string {
	return fmt.Sprintf("%064x", n)
}

// envelopeXDR builds an unsigned envelope for test history.
func envelopeXDR(t *testing.T, source string, ops ...txnbuild.Operation) string {
	t.Helper()
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: source, Sequence: 1},
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
		Operations:           ops,
	})
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	encoded, err := tx.Base64()
	if err != nil {
		t.Fatalf("encode transaction: %v", err)
	}
	return encoded
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected service error %q, got %v", code, err)
	}
	if svcErr.Code != code {
		t.Fatalf("expected error code %q, got %q (%s)", code, svcErr.Code, svcErr.Message)
	}
}
