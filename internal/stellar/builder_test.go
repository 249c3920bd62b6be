package stellar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/network"

	"github.com/stellar-payment-gateway/internal/model"
)

func randomKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}
	return kp
}

func testBuilder() *Builder {
	return NewBuilder(NewSigner(network.TestNetworkPassphrase))
}

func TestBuildPaymentRoundTrip(t *testing.T) {
	source := randomKeypair(t)
	dest := randomKeypair(t).Address()
	issuer := randomKeypair(t).Address()
	expires := time.Now().Add(2 * time.Minute)

	canonical := &model.Transaction{
		Type: model.TypePayment,
		Payment: &model.Payment{
			SourceAccount:      source.Address(),
			DestinationAccount: dest,
			DestinationAmount:  model.Amount{Value: "10.5000000", Currency: "USD", Issuer: issuer},
			SourceAmount:       &model.Amount{Value: "11", Currency: model.NativeCurrency},
		},
		Memo: &model.Memo{Type: model.MemoID, Value: "12345"},
	}

	env, err := testBuilder().Build(BuildParams{
		Source:      &model.AccountInfo{Account: source.Address(), Sequence: 100},
		Transaction: canonical,
		Secret:      source.Seed(),
		BaseFee:     200,
		ExpiresAt:   expires,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if env.Sequence != 101 {
		t.Fatalf("expected incremented sequence 101, got %d", env.Sequence)
	}
	if env.ExpiresAt.Unix() != expires.Unix() {
		t.Fatalf("unexpected expiry: %s", env.ExpiresAt)
	}
	if len(env.Hash) != 64 {
		t.Fatalf("unexpected hash %q", env.Hash)
	}

	hash, err := NewSigner(network.TestNetworkPassphrase).HashEnvelope(env.XDR)
	if err != nil {
		t.Fatalf("hash envelope: %v", err)
	}
	if hash != env.Hash {
		t.Fatalf("hash mismatch: %s != %s", hash, env.Hash)
	}

	decoded, err := DecodeEnvelope(env.XDR)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SourceAccount != source.Address() {
		t.Fatalf("unexpected source: %s", decoded.SourceAccount)
	}
	if decoded.Transaction.Type != model.TypePayment {
		t.Fatalf("unexpected type: %s", decoded.Transaction.Type)
	}
	p := decoded.Transaction.Payment
	if p.DestinationAccount != dest || p.DestinationAmount.Currency != "USD" || p.DestinationAmount.Issuer != issuer {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if p.SourceAmount == nil || p.SourceAmount.Currency != model.NativeCurrency || p.SourceAmount.Value != "11.0000000" {
		t.Fatalf("unexpected source amount: %+v", p.SourceAmount)
	}
	if decoded.Transaction.Memo == nil || decoded.Transaction.Memo.Value != "12345" {
		t.Fatalf("unexpected memo: %+v", decoded.Transaction.Memo)
	}
	if got := decoded.Operations; len(got) != 1 || got[0] != "PATH_PAYMENT_STRICT_RECEIVE" {
		t.Fatalf("unexpected operations: %v", got)
	}

	if Direction(source.Address(), decoded) != model.DirectionOutgoing {
		t.Fatal("expected outgoing for source")
	}
	if Direction(dest, decoded) != model.DirectionIncoming {
		t.Fatal("expected incoming for destination")
	}
	if Direction(issuer, decoded) != model.DirectionPassthrough {
		t.Fatal("expected passthrough for issuer")
	}
}

func TestBuildSettingsRoundTrip(t *testing.T) {
	source := randomKeypair(t)
	domain := "example.com"
	yes, no := true, false
	weight := uint8(2)

	env, err := testBuilder().Build(BuildParams{
		Source: &model.AccountInfo{Account: source.Address(), Sequence: 7},
		Transaction: &model.Transaction{
			Type: model.TypeSettings,
			Settings: &model.Settings{
				Account:                source.Address(),
				HomeDomain:             &domain,
				RequireAuthorization:   &yes,
				RevocableAuthorization: &no,
				MasterWeight:           &weight,
			},
		},
		Secret:    source.Seed(),
		BaseFee:   100,
		ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	decoded, err := DecodeEnvelope(env.XDR)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := decoded.Transaction.Settings
	if s == nil || s.HomeDomain == nil || *s.HomeDomain != domain {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if s.RequireAuthorization == nil || !*s.RequireAuthorization {
		t.Fatal("expected require_authorization set")
	}
	if s.RevocableAuthorization == nil || *s.RevocableAuthorization {
		t.Fatal("expected revocable_authorization cleared")
	}
	if s.ImmutableAuthorization != nil {
		t.Fatal("expected immutable_authorization untouched")
	}
	if s.MasterWeight == nil || *s.MasterWeight != 2 {
		t.Fatalf("unexpected master weight: %v", s.MasterWeight)
	}
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	source := randomKeypair(t)
	other := randomKeypair(t)
	issuer := randomKeypair(t).Address()

	payment := func(mutate func(p *model.Payment)) *model.Transaction {
		p := &model.Payment{
			SourceAccount:      source.Address(),
			DestinationAccount: other.Address(),
			DestinationAmount:  model.Amount{Value: "1", Currency: model.NativeCurrency},
		}
		if mutate != nil {
			mutate(p)
		}
		return &model.Transaction{Type: model.TypePayment, Payment: p}
	}

	tests := []struct {
		name    string
		tx      *model.Transaction
		secret  string
		wantErr string
	}{
		{
			name:    "wrong secret",
			tx:      payment(nil),
			secret:  other.Seed(),
			wantErr: "does not belong",
		},
		{
			name:    "malformed secret",
			tx:      payment(nil),
			secret:  "SNOTASECRET",
			wantErr: "invalid secret",
		},
		{
			name:    "zero amount",
			tx:      payment(func(p *model.Payment) { p.DestinationAmount.Value = "0" }),
			secret:  source.Seed(),
			wantErr: "must be positive",
		},
		{
			name:    "credit without issuer",
			tx:      payment(func(p *model.Payment) { p.DestinationAmount.Currency = "USD" }),
			secret:  source.Seed(),
			wantErr: "invalid issuer",
		},
		{
			name:    "path payment without source amount",
			tx:      payment(func(p *model.Payment) { p.Paths = []model.Asset{{Currency: "USD", Issuer: issuer}} }),
			secret:  source.Seed(),
			wantErr: "source_amount is required",
		},
		{
			name: "long text memo",
			tx: func() *model.Transaction {
				tx := payment(nil)
				tx.Memo = &model.Memo{Type: model.MemoText, Value: strings.Repeat("x", 29)}
				return tx
			}(),
			secret:  source.Seed(),
			wantErr: "at most 28 bytes",
		},
		{
			name:    "empty settings",
			tx:      &model.Transaction{Type: model.TypeSettings, Settings: &model.Settings{Account: source.Address()}},
			secret:  source.Seed(),
			wantErr: "settings change is empty",
		},
		{
			name:    "native trustline",
			tx:      &model.Transaction{Type: model.TypeTrustline, Trustline: &model.Trustline{Currency: model.NativeCurrency}},
			secret:  source.Seed(),
			wantErr: "non-native currency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testBuilder().Build(BuildParams{
				Source:      &model.AccountInfo{Account: source.Address(), Sequence: 1},
				Transaction: tt.tx,
				Secret:      tt.secret,
				BaseFee:     100,
				ExpiresAt:   time.Now().Add(time.Minute),
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidTransaction) {
				t.Fatalf("expected ErrInvalidTransaction, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("unexpected error %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestResultCodeFromXDRRejectsGarbage(t *testing.T) {
	if _, err := ResultCodeFromXDR("not-base64"); err == nil {
		t.Fatal("expected decode error")
	}
	if !Resubmittable(CodeBadSeq) || !Resubmittable(CodeInsufficientFee) || Resubmittable(CodeBadAuth) {
		t.Fatal("unexpected resubmittable classification")
	}
}
