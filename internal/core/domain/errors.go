// Package domain contains the core business entities for the payment service.
package domain

import "errors"

// Domain errors - classify every failure the two payment flows can hit.
var (
	// ErrValidation is returned when required instruction or response fields are missing.
	ErrValidation = errors.New("validation error")

	// ErrCommunication is returned when the gateway call fails at the transport level.
	ErrCommunication = errors.New("gateway communication error")

	// ErrInvalidData is returned when the gateway rejects or mangles the exchanged data.
	ErrInvalidData = errors.New("invalid gateway data")

	// ErrFinancial is returned when the bank declines or filters the payment.
	// This is an expected business outcome, not a system fault.
	ErrFinancial = errors.New("payment rejected")

	// ErrStorage is returned when the persistence collaborator fails.
	ErrStorage = errors.New("storage error")

	// ErrAlreadyFinalized is returned when a terminal transaction is transitioned again.
	ErrAlreadyFinalized = errors.New("transaction already finalized")

	// ErrTransactionNotFound is returned when a postback references an unknown transaction.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// PaymentError wraps errors with additional context. The raw gateway
// response and the missing-field list travel with the error so nothing the
// gateway said is lost on the way to the caller.
type PaymentError struct {
	Err           error
	Message       string
	Code          string
	TransactionID string
	Response      Fields
	Missing       []string
}

func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError.
func NewPaymentError(err error, message, code string) *PaymentError {
	return &PaymentError{Err: err, Message: message, Code: code}
}
