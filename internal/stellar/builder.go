package stellar

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/amount"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/stellar-payment-gateway/internal/model"
)

// maxTrustlineLimit is the largest representable trustline limit.
const maxTrustlineLimit = "922337203685.4775807"

const maxTextMemoBytes = 28

// ErrInvalidTransaction wraps every error caused by the canonical input.
var ErrInvalidTransaction = errors.New("invalid transaction")

// Envelope is a signed transaction together with the parameters it was built with.
type Envelope struct {
	SignedEnvelope
	BaseFee   int64
	Sequence  int64
	ExpiresAt time.Time
}

// BuildParams describes one build of a canonical transaction.
type BuildParams struct {
	Source      *model.AccountInfo
	Transaction *model.Transaction
	Secret      string
	BaseFee     int64
	ExpiresAt   time.Time
}

// Builder turns canonical transactions into signed envelopes.
type Builder struct {
	signer *Signer
}

func NewBuilder(signer *Signer) *Builder {
	return &Builder{signer: signer}
}

// Build assembles and signs an envelope. The source account's current
// sequence number is incremented; the envelope expires at p.ExpiresAt.
func (b *Builder) Build(p BuildParams) (*Envelope, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("%w: source account is required", ErrInvalidTransaction)
	}
	ops, err := Operations(p.Transaction)
	if err != nil {
		return nil, err
	}
	memo, err := buildMemo(p.Transaction.Memo)
	if err != nil {
		return nil, err
	}

	source := txnbuild.SimpleAccount{AccountID: p.Source.Account, Sequence: p.Source.Sequence}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		BaseFee:              p.BaseFee,
		Memo:                 memo,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimebounds(0, p.ExpiresAt.Unix())},
		Operations:           ops,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	signed, err := b.signer.Sign(tx, p.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	return &Envelope{
		SignedEnvelope: *signed,
		BaseFee:        p.BaseFee,
		Sequence:       source.Sequence,
		ExpiresAt:      time.Unix(p.ExpiresAt.Unix(), 0).UTC(),
	}, nil
}

// Validate checks a canonical transaction without building it.
func Validate(tx *model.Transaction) error {
	if _, err := Operations(tx); err != nil {
		return err
	}
	_, err := buildMemo(tx.Memo)
	return err
}

// Operations converts a canonical transaction body into network operations.
func Operations(tx *model.Transaction) ([]txnbuild.Operation, error) {
	if tx == nil {
		return nil, invalidf("transaction body is required")
	}

	switch tx.Type {
	case model.TypePayment:
		if tx.Payment == nil {
			return nil, invalidf("payment body is required")
		}
		op, err := paymentOperation(tx.Payment)
		if err != nil {
			return nil, err
		}
		return []txnbuild.Operation{op}, nil
	case model.TypeTrustline:
		if tx.Trustline == nil {
			return nil, invalidf("trustline body is required")
		}
		op, err := trustlineOperation(tx.Trustline)
		if err != nil {
			return nil, err
		}
		return []txnbuild.Operation{op}, nil
	case model.TypeSettings:
		if tx.Settings == nil {
			return nil, invalidf("settings body is required")
		}
		op, err := settingsOperation(tx.Settings)
		if err != nil {
			return nil, err
		}
		return []txnbuild.Operation{op}, nil
	default:
		return nil, invalidf("unsupported transaction type %q", tx.Type)
	}
}

func paymentOperation(p *model.Payment) (txnbuild.Operation, error) {
	if _, err := keypair.ParseAddress(p.DestinationAccount); err != nil {
		return nil, invalidf("invalid destination account %q", p.DestinationAccount)
	}
	destAsset, err := assetOf(p.DestinationAmount.Currency, p.DestinationAmount.Issuer)
	if err != nil {
		return nil, err
	}
	if err := positiveAmount(p.DestinationAmount.Value); err != nil {
		return nil, err
	}

	if !p.IsPathPayment() {
		return &txnbuild.Payment{
			Destination: p.DestinationAccount,
			Amount:      p.DestinationAmount.Value,
			Asset:       destAsset,
		}, nil
	}

	if p.SourceAmount == nil {
		return nil, invalidf("source_amount is required for path payments")
	}
	sendAsset, err := assetOf(p.SourceAmount.Currency, p.SourceAmount.Issuer)
	if err != nil {
		return nil, err
	}
	if err := positiveAmount(p.SourceAmount.Value); err != nil {
		return nil, err
	}

	path := make([]txnbuild.Asset, 0, len(p.Paths))
	for _, hop := range p.Paths {
		a, err := assetOf(hop.Currency, hop.Issuer)
		if err != nil {
			return nil, err
		}
		path = append(path, a)
	}

	return &txnbuild.PathPaymentStrictReceive{
		SendAsset:   sendAsset,
		SendMax:     p.SourceAmount.Value,
		Destination: p.DestinationAccount,
		DestAsset:   destAsset,
		DestAmount:  p.DestinationAmount.Value,
		Path:        path,
	}, nil
}

func trustlineOperation(t *model.Trustline) (txnbuild.Operation, error) {
	if t.Currency == model.NativeCurrency || t.Counterparty == "" {
		return nil, invalidf("trustlines require a non-native currency and counterparty")
	}
	asset, err := assetOf(t.Currency, t.Counterparty)
	if err != nil {
		return nil, err
	}
	line, err := asset.(txnbuild.CreditAsset).ToChangeTrustAsset()
	if err != nil {
		return nil, invalidf("invalid trustline asset: %v", err)
	}

	limit := t.Limit
	if limit == "" {
		limit = maxTrustlineLimit
	}
	if _, err := amount.ParseInt64(limit); err != nil {
		return nil, invalidf("invalid trustline limit %q", limit)
	}

	return &txnbuild.ChangeTrust{Line: line, Limit: limit}, nil
}

func settingsOperation(s *model.Settings) (txnbuild.Operation, error) {
	op := &txnbuild.SetOptions{HomeDomain: s.HomeDomain}
	if s.HomeDomain != nil && len(*s.HomeDomain) > 32 {
		return nil, invalidf("home_domain must be at most 32 characters")
	}

	flags := []struct {
		value *bool
		flag  txnbuild.AccountFlag
	}{
		{s.RequireAuthorization, txnbuild.AuthRequired},
		{s.RevocableAuthorization, txnbuild.AuthRevocable},
		{s.ImmutableAuthorization, txnbuild.AuthImmutable},
		{s.ClawbackEnabled, txnbuild.AuthClawbackEnabled},
	}
	for _, f := range flags {
		if f.value == nil {
			continue
		}
		if *f.value {
			op.SetFlags = append(op.SetFlags, f.flag)
		} else {
			op.ClearFlags = append(op.ClearFlags, f.flag)
		}
	}

	op.MasterWeight = threshold(s.MasterWeight)
	if s.Thresholds != nil {
		op.LowThreshold = threshold(s.Thresholds.Low)
		op.MediumThreshold = threshold(s.Thresholds.Medium)
		op.HighThreshold = threshold(s.Thresholds.High)
	}

	if op.HomeDomain == nil && len(op.SetFlags) == 0 && len(op.ClearFlags) == 0 &&
		op.MasterWeight == nil && op.LowThreshold == nil && op.MediumThreshold == nil && op.HighThreshold == nil {
		return nil, invalidf("settings change is empty")
	}
	return op, nil
}

func threshold(v *uint8) *txnbuild.Threshold {
	if v == nil {
		return nil
	}
	t := txnbuild.Threshold(*v)
	return &t
}

func buildMemo(m *model.Memo) (txnbuild.Memo, error) {
	if m == nil {
		return nil, nil
	}
	switch m.Type {
	case model.MemoText:
		if len(m.Value) > maxTextMemoBytes {
			return nil, invalidf("text memo must be at most %d bytes", maxTextMemoBytes)
		}
		return txnbuild.MemoText(m.Value), nil
	case model.MemoID:
		id, err := strconv.ParseUint(m.Value, 10, 64)
		if err != nil {
			return nil, invalidf("id memo must be an unsigned 64-bit integer")
		}
		return txnbuild.MemoID(id), nil
	case model.MemoHash, model.MemoReturn:
		raw, err := hex.DecodeString(m.Value)
		if err != nil || len(raw) != 32 {
			return nil, invalidf("%s memo must be 32 hex-encoded bytes", m.Type)
		}
		var h [32]byte
		copy(h[:], raw)
		if m.Type == model.MemoHash {
			return txnbuild.MemoHash(h), nil
		}
		return txnbuild.MemoReturn(h), nil
	default:
		return nil, invalidf("unsupported memo type %q", m.Type)
	}
}

func assetOf(currency, issuer string) (txnbuild.Asset, error) {
	if currency == model.NativeCurrency && issuer == "" {
		return txnbuild.NativeAsset{}, nil
	}
	if currency == "" || len(currency) > 12 {
		return nil, invalidf("invalid currency %q", currency)
	}
	if _, err := keypair.ParseAddress(issuer); err != nil {
		return nil, invalidf("invalid issuer %q for currency %s", issuer, currency)
	}
	return txnbuild.CreditAsset{Code: currency, Issuer: issuer}, nil
}

func positiveAmount(v string) error {
	n, err := amount.ParseInt64(v)
	if err != nil {
		return invalidf("invalid amount %q", v)
	}
	if n <= 0 {
		return invalidf("amount must be positive, got %q", v)
	}
	return nil
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransaction, fmt.Sprintf(format, args...))
}
