package stellar

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/stellar-payment-gateway/internal/ledger"
	"github.com/stellar-payment-gateway/internal/model"
)

// Decoded is the canonical view of a network envelope.
type Decoded struct {
	SourceAccount string
	Transaction   *model.Transaction
	Operations    []string
	// Accounts whose balances receive value from the transaction.
	Recipients []string
}

// DecodeEnvelope converts a base64 envelope into its canonical shape. The
// canonical body describes the first operation; fee bumps are unwrapped.
func DecodeEnvelope(envelopeXDR string) (*Decoded, error) {
	genericTx, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return nil, fmt.Errorf("parse transaction XDR: %w", err)
	}

	var tx *txnbuild.Transaction
	if fb, ok := genericTx.FeeBump(); ok {
		tx = fb.InnerTransaction()
	} else if tx, ok = genericTx.Transaction(); !ok {
		return nil, fmt.Errorf("unsupported envelope type")
	}

	source := tx.SourceAccount().AccountID
	ops := tx.Operations()

	d := &Decoded{
		SourceAccount: source,
		Operations:    OperationNames(ops),
		Transaction:   &model.Transaction{Type: model.TypeOther, Memo: memoOf(tx.Memo())},
	}

	for i, op := range ops {
		if to, ok := valueRecipient(op); ok {
			d.Recipients = append(d.Recipients, to)
		}
		if i == 0 {
			d.Transaction.Type = transactionTypeOf(op)
			canonicalBody(d.Transaction, op, source)
		}
	}

	return d, nil
}

func canonicalBody(t *model.Transaction, op txnbuild.Operation, txSource string) {
	src := operationSource(op, txSource)

	switch o := op.(type) {
	case *txnbuild.Payment:
		t.Payment = &model.Payment{
			SourceAccount:      src,
			DestinationAccount: o.Destination,
			DestinationAmount:  amountOf(o.Amount, o.Asset),
		}
	case *txnbuild.CreateAccount:
		t.Payment = &model.Payment{
			SourceAccount:      src,
			DestinationAccount: o.Destination,
			DestinationAmount:  model.Amount{Value: o.Amount, Currency: model.NativeCurrency},
		}
	case *txnbuild.PathPaymentStrictReceive:
		sendMax := amountOf(o.SendMax, o.SendAsset)
		t.Payment = &model.Payment{
			SourceAccount:      src,
			DestinationAccount: o.Destination,
			DestinationAmount:  amountOf(o.DestAmount, o.DestAsset),
			SourceAmount:       &sendMax,
			Paths:              pathOf(o.Path),
		}
	case *txnbuild.PathPaymentStrictSend:
		send := amountOf(o.SendAmount, o.SendAsset)
		t.Payment = &model.Payment{
			SourceAccount:      src,
			DestinationAccount: o.Destination,
			DestinationAmount:  amountOf(o.DestMin, o.DestAsset),
			SourceAmount:       &send,
			Paths:              pathOf(o.Path),
		}
	case *txnbuild.ChangeTrust:
		t.Trustline = &model.Trustline{
			Account:      src,
			Currency:     o.Line.GetCode(),
			Counterparty: o.Line.GetIssuer(),
			Limit:        o.Limit,
		}
	case *txnbuild.SetOptions:
		t.Settings = settingsOf(o, src)
	}
}

func settingsOf(o *txnbuild.SetOptions, account string) *model.Settings {
	s := &model.Settings{Account: account, HomeDomain: o.HomeDomain}

	flagValue := func(flag txnbuild.AccountFlag) *bool {
		for _, f := range o.SetFlags {
			if f == flag {
				v := true
				return &v
			}
		}
		for _, f := range o.ClearFlags {
			if f == flag {
				v := false
				return &v
			}
		}
		return nil
	}
	s.RequireAuthorization = flagValue(txnbuild.AuthRequired)
	s.RevocableAuthorization = flagValue(txnbuild.AuthRevocable)
	s.ImmutableAuthorization = flagValue(txnbuild.AuthImmutable)
	s.ClawbackEnabled = flagValue(txnbuild.AuthClawbackEnabled)

	s.MasterWeight = weight(o.MasterWeight)
	if o.LowThreshold != nil || o.MediumThreshold != nil || o.HighThreshold != nil {
		s.Thresholds = &model.Thresholds{
			Low:    weight(o.LowThreshold),
			Medium: weight(o.MediumThreshold),
			High:   weight(o.HighThreshold),
		}
	}
	return s
}

func weight(t *txnbuild.Threshold) *uint8 {
	if t == nil {
		return nil
	}
	v := uint8(*t)
	return &v
}

func amountOf(value string, asset txnbuild.Asset) model.Amount {
	if asset == nil || asset.IsNative() {
		return model.Amount{Value: value, Currency: model.NativeCurrency}
	}
	return model.Amount{Value: value, Currency: asset.GetCode(), Issuer: asset.GetIssuer()}
}

func pathOf(path []txnbuild.Asset) []model.Asset {
	if len(path) == 0 {
		return nil
	}
	out := make([]model.Asset, 0, len(path))
	for _, a := range path {
		am := amountOf("", a)
		out = append(out, model.Asset{Currency: am.Currency, Issuer: am.Issuer})
	}
	return out
}

func memoOf(m txnbuild.Memo) *model.Memo {
	switch v := m.(type) {
	case txnbuild.MemoText:
		return &model.Memo{Type: model.MemoText, Value: string(v)}
	case txnbuild.MemoID:
		return &model.Memo{Type: model.MemoID, Value: strconv.FormatUint(uint64(v), 10)}
	case txnbuild.MemoHash:
		return &model.Memo{Type: model.MemoHash, Value: hex.EncodeToString(v[:])}
	case txnbuild.MemoReturn:
		return &model.Memo{Type: model.MemoReturn, Value: hex.EncodeToString(v[:])}
	default:
		return nil
	}
}

// Direction classifies a transaction relative to account: outgoing when the
// account is the transaction source, incoming when it receives value, and
// passthrough otherwise.
func Direction(account string, d *Decoded) model.Direction {
	if d.SourceAccount == account {
		return model.DirectionOutgoing
	}
	for _, r := range d.Recipients {
		if r == account {
			return model.DirectionIncoming
		}
	}
	return model.DirectionPassthrough
}

// Successful is the single predicate deciding whether a ledger transaction
// counts as validated.
func Successful(tx ledger.Transaction) bool {
	return tx.Successful
}

// Record converts a ledger transaction into its canonical record.
func Record(tx ledger.Transaction) (*model.TransactionRecord, error) {
	rec := &model.TransactionRecord{
		Hash:           tx.Hash,
		LedgerSequence: tx.Ledger,
		SourceAccount:  tx.SourceAccount,
		ResultCode:     tx.ResultCode,
		FeeCharged:     tx.FeeCharged,
		ClosedAt:       tx.ClosedAt,
		State:          model.StateFailed,
		Type:           model.TypeOther,
	}
	if Successful(tx) {
		rec.State = model.StateValidated
	}

	if tx.EnvelopeXDR == "" {
		return rec, nil
	}
	d, err := DecodeEnvelope(tx.EnvelopeXDR)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", tx.Hash, err)
	}
	rec.Type = d.Transaction.Type
	rec.Transaction = d.Transaction
	return rec, nil
}
