package stellar

import (
	"github.com/stellar/go-stellar-sdk/txnbuild"
	"github.com/stellar/go-stellar-sdk/xdr"

	"github.com/stellar-payment-gateway/internal/model"
)

// operationTypeNames maps XDR operation types to human-readable names.
var operationTypeNames = map[xdr.OperationType]string{
	xdr.OperationTypeCreateAccount:                 "CREATE_ACCOUNT",
	xdr.OperationTypePayment:                       "PAYMENT",
	xdr.OperationTypePathPaymentStrictReceive:      "PATH_PAYMENT_STRICT_RECEIVE",
	xdr.OperationTypePathPaymentStrictSend:         "PATH_PAYMENT_STRICT_SEND",
	xdr.OperationTypeChangeTrust:                   "CHANGE_TRUST",
	xdr.OperationTypeManageSellOffer:               "MANAGE_SELL_OFFER",
	xdr.OperationTypeManageBuyOffer:                "MANAGE_BUY_OFFER",
	xdr.OperationTypeSetOptions:                    "SET_OPTIONS",
	xdr.OperationTypeManageData:                    "MANAGE_DATA",
	xdr.OperationTypeAccountMerge:                  "ACCOUNT_MERGE",
	xdr.OperationTypeCreateClaimableBalance:        "CREATE_CLAIMABLE_BALANCE",
	xdr.OperationTypeClaimClaimableBalance:         "CLAIM_CLAIMABLE_BALANCE",
	xdr.OperationTypeBeginSponsoringFutureReserves: "BEGIN_SPONSORING_FUTURE_RESERVES",
	xdr.OperationTypeEndSponsoringFutureReserves:   "END_SPONSORING_FUTURE_RESERVES",
	xdr.OperationTypeClawback:                      "CLAWBACK",
}

// OperationTypeName returns the string name for an XDR operation type.
func OperationTypeName(opType xdr.OperationType) (string, bool) {
	name, ok := operationTypeNames[opType]
	return name, ok
}

// OperationNames returns the names of the given operations, in order.
// Operations without a known name are reported as "OTHER".
func OperationNames(ops []txnbuild.Operation) []string {
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		name := "OTHER"
		if xop, err := op.BuildXDR(); err == nil {
			if n, ok := OperationTypeName(xop.Body.Type); ok {
				name = n
			}
		}
		names = append(names, name)
	}
	return names
}

// transactionTypeOf classifies an operation into a canonical transaction type.
func transactionTypeOf(op txnbuild.Operation) model.TransactionType {
	switch op.(type) {
	case *txnbuild.Payment, *txnbuild.PathPaymentStrictReceive, *txnbuild.PathPaymentStrictSend, *txnbuild.CreateAccount:
		return model.TypePayment
	case *txnbuild.ChangeTrust:
		return model.TypeTrustline
	case *txnbuild.SetOptions:
		return model.TypeSettings
	default:
		return model.TypeOther
	}
}

// valueRecipient returns the account receiving value from an operation, if any.
func valueRecipient(op txnbuild.Operation) (string, bool) {
	switch o := op.(type) {
	case *txnbuild.Payment:
		return o.Destination, true
	case *txnbuild.PathPaymentStrictSend:
		return o.Destination, true
	case *txnbuild.PathPaymentStrictReceive:
		return o.Destination, true
	case *txnbuild.CreateAccount:
		return o.Destination, true
	case *txnbuild.AccountMerge:
		return o.Destination, true
	default:
		return "", false
	}
}

// operationSource returns the effective source account of an operation.
func operationSource(op txnbuild.Operation, txSource string) string {
	if src := op.GetSourceAccount(); src != "" {
		return src
	}
	return txSource
}

// SupportedTransactionTypes returns the canonical types accepted for submission.
func SupportedTransactionTypes() []string {
	return []string{
		string(model.TypePayment),
		string(model.TypeTrustline),
		string(model.TypeSettings),
	}
}
