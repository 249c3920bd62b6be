package stellar

import (
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/xdr"
)

const (
	CodeSuccess         = "tx_success"
	CodeFailed          = "tx_failed"
	CodeTooEarly        = "tx_too_early"
	CodeTooLate         = "tx_too_late"
	CodeBadSeq          = "tx_bad_seq"
	CodeBadAuth         = "tx_bad_auth"
	CodeInsufficientFee = "tx_insufficient_fee"
	CodeNoAccount       = "tx_no_source_account"
	CodeMalformed       = "tx_malformed"
)

var resultCodeNames = map[xdr.TransactionResultCode]string{
	xdr.TransactionResultCodeTxFeeBumpInnerSuccess: "tx_fee_bump_inner_success",
	xdr.TransactionResultCodeTxSuccess:             CodeSuccess,
	xdr.TransactionResultCodeTxFailed:              CodeFailed,
	xdr.TransactionResultCodeTxTooEarly:            CodeTooEarly,
	xdr.TransactionResultCodeTxTooLate:             CodeTooLate,
	xdr.TransactionResultCodeTxMissingOperation:    "tx_missing_operation",
	xdr.TransactionResultCodeTxBadSeq:              CodeBadSeq,
	xdr.TransactionResultCodeTxBadAuth:             CodeBadAuth,
	xdr.TransactionResultCodeTxInsufficientBalance: "tx_insufficient_balance",
	xdr.TransactionResultCodeTxNoAccount:           CodeNoAccount,
	xdr.TransactionResultCodeTxInsufficientFee:     CodeInsufficientFee,
	xdr.TransactionResultCodeTxBadAuthExtra:        "tx_bad_auth_extra",
	xdr.TransactionResultCodeTxInternalError:       "tx_internal_error",
	xdr.TransactionResultCodeTxNotSupported:        "tx_not_supported",
	xdr.TransactionResultCodeTxFeeBumpInnerFailed:  "tx_fee_bump_inner_failed",
	xdr.TransactionResultCodeTxBadSponsorship:      "tx_bad_sponsorship",
	xdr.TransactionResultCodeTxBadMinSeqAgeOrGap:   "tx_bad_minseq_age_or_gap",
	xdr.TransactionResultCodeTxMalformed:           CodeMalformed,
}

var resultMessages = map[string]string{
	CodeSuccess:                "The transaction succeeded",
	CodeFailed:                 "One of the operations failed",
	CodeTooEarly:               "The ledger close time was before the transaction's minimum time",
	CodeTooLate:                "The transaction expired before it was included in a ledger",
	"tx_missing_operation":     "No operation was specified",
	CodeBadSeq:                 "The sequence number does not match the source account",
	CodeBadAuth:                "Too few valid signatures or wrong network",
	"tx_insufficient_balance":  "The fee would bring the account below the minimum reserve",
	CodeNoAccount:              "The source account does not exist",
	CodeInsufficientFee:        "The fee is too small",
	"tx_bad_auth_extra":        "Unused signatures attached to the transaction",
	"tx_internal_error":        "An unknown error occurred on the network",
	"tx_not_supported":         "The transaction type is not supported",
	"tx_fee_bump_inner_failed": "The inner transaction of the fee bump failed",
	"tx_bad_sponsorship":       "Sponsorship is not confirmed",
	"tx_bad_minseq_age_or_gap": "Minimum sequence age or gap precondition not met",
	CodeMalformed:              "The transaction is malformed",
}

// ResultCodeName returns the network's name for a transaction result code.
func ResultCodeName(code xdr.TransactionResultCode) string {
	if name, ok := resultCodeNames[code]; ok {
		return name
	}
	return strings.ToLower(code.String())
}

// ResultCodeFromXDR decodes a base64 TransactionResult and returns its code name.
func ResultCodeFromXDR(resultXDR string) (string, error) {
	var result xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &result); err != nil {
		return "", fmt.Errorf("decode transaction result: %w", err)
	}
	return ResultCodeName(result.Result.Code), nil
}

// ResultMessage returns a human readable description of a result code.
func ResultMessage(code string) string {
	if msg, ok := resultMessages[code]; ok {
		return msg
	}
	return "The network rejected the transaction (" + code + ")"
}

// Resubmittable reports whether a rejection can be fixed by rebuilding the
// envelope with a fresh sequence number or a higher fee.
func Resubmittable(code string) bool {
	return code == CodeBadSeq || code == CodeInsufficientFee
}
