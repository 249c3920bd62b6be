package service

import (
	"errors"
	"fmt"
)

// Error is a domain error returned by service methods.
// Handlers map these to appropriate HTTP responses.
type Error struct {
	Kind    ErrorKind
	Code    string // machine-readable error code (e.g., "invalid_transaction", "incomplete_history")
	Message string // human-readable message
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorKind classifies domain errors for HTTP status mapping.
type ErrorKind int

const (
	ErrBadRequest  ErrorKind = iota // 400
	ErrNotFound                     // 404
	ErrForbidden                    // 403
	ErrInternal                     // 500
	ErrUnavailable                  // 503
	ErrBadGateway                   // 502
	ErrConflict                     // 409
)

// Stable error codes exposed to clients.
const (
	CodeDuplicateSubmission = "duplicate_submission"
	CodeInvalidTransaction  = "invalid_transaction"
	CodeNetworkUnavailable  = "network_unavailable"
	CodeTransactionNotFound = "transaction_not_found"
	CodeIncompleteHistory   = "incomplete_history"
	CodeAccountNotFound     = "account_not_found"
	CodeSubmissionNotFound  = "submission_not_found"
)

func NewBadRequest(code, message string) *Error {
	return &Error{Kind: ErrBadRequest, Code: code, Message: message}
}

func NewNotFound(code, message string) *Error {
	return &Error{Kind: ErrNotFound, Code: code, Message: message}
}

func NewInternal(code, message string) *Error {
	return &Error{Kind: ErrInternal, Code: code, Message: message}
}

func NewUnavailable(code, message string) *Error {
	return &Error{Kind: ErrUnavailable, Code: code, Message: message}
}

func NewBadGateway(code, message string) *Error {
	return &Error{Kind: ErrBadGateway, Code: code, Message: message}
}

func NewConflict(code, message string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Message: message}
}

// NewDuplicateSubmission reports a request whose identity is already claimed
// by a record that has not failed.
func NewDuplicateSubmission(message string) *Error {
	return NewConflict(CodeDuplicateSubmission, message)
}

func NewInvalidTransaction(message string) *Error {
	return NewBadRequest(CodeInvalidTransaction, message)
}

func NewNetworkUnavailable(message string) *Error {
	return NewUnavailable(CodeNetworkUnavailable, message)
}

func NewTransactionNotFound(message string) *Error {
	return NewNotFound(CodeTransactionNotFound, message)
}

// NewIncompleteHistory reports that the peer lacks the ledgers needed to
// answer. The request can be retried once history has been backfilled.
func NewIncompleteHistory(message string) *Error {
	return NewUnavailable(CodeIncompleteHistory, message)
}

// HasCode reports whether err is a service error with the given code.
func HasCode(err error, code string) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Code == code
}
