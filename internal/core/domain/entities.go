// Package domain contains the core business entities for the payment service.
// This is the innermost layer - no external dependencies.
package domain

// TransactionState is the lifecycle state of a financial transaction.
type TransactionState string

const (
	TransactionStateNew     TransactionState = "new"
	TransactionStateSuccess TransactionState = "success"
	TransactionStateFailed  TransactionState = "failed"
)

// Terminal reports whether the transaction may never be re-transitioned.
func (s TransactionState) Terminal() bool {
	return s == TransactionStateSuccess || s == TransactionStateFailed
}

// PaymentState is the lifecycle state of a payment.
type PaymentState string

const (
	PaymentStateNew       PaymentState = "new"
	PaymentStateDeposited PaymentState = "deposited"
	PaymentStateFailed    PaymentState = "failed"
)

// InstructionState is the lifecycle state of a payment instruction.
type InstructionState string

const (
	InstructionStateValid  InstructionState = "valid"
	InstructionStateClosed InstructionState = "closed"
)

// Response and reason codes recorded on a finished transaction.
const (
	ResponseCodeSuccess = "success"
	ReasonCodeSuccess   = "success"
	ReasonCodeInvalid   = "invalid"
)

// Fields is a flat key/value mapping exchanged with the gateway, both for
// outbound request parameters and decoded responses. The gateway speaks
// URL-encoded text, so values stay strings until interpreted.
type Fields map[string]string

// Clone returns an independent copy so that validation steps can return new
// values instead of mutating shared state.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Transaction is one attempt to move money for an instruction.
// Amounts are integer minor units (cents) end to end.
type Transaction struct {
	ID              string            `json:"id"`
	RequestedAmount int64             `json:"requested_amount"`
	ProcessedAmount int64             `json:"processed_amount"`
	ReferenceNumber string            `json:"reference_number"` // gateway-assigned order id
	State           TransactionState  `json:"state"`
	ResponseCode    string            `json:"response_code"`
	ReasonCode      string            `json:"reason_code"`
	ExtendedData    map[string]string `json:"extended_data"`

	Payment *Payment `json:"payment"`
}

// Extended reads a key from the transaction's extended attribute bag.
func (t *Transaction) Extended(key string) string {
	if t.ExtendedData == nil {
		return ""
	}
	return t.ExtendedData[key]
}

// Instruction returns the payment instruction the transaction belongs to.
func (t *Transaction) Instruction() *Instruction {
	if t.Payment == nil {
		return nil
	}
	return t.Payment.Instruction
}

// Payment groups one or more transactions under an instruction.
type Payment struct {
	ID              string       `json:"id"`
	State           PaymentState `json:"state"`
	ApprovedAmount  int64        `json:"approved_amount"`
	DepositedAmount int64        `json:"deposited_amount"`

	Instruction *Instruction `json:"instruction"`
}

// Instruction describes the payment's overall terms (currency, totals)
// spanning possibly multiple transactions.
type Instruction struct {
	ID              string           `json:"id"`
	Currency        string           `json:"currency"`
	State           InstructionState `json:"state"`
	ApprovedAmount  int64            `json:"approved_amount"`
	DepositedAmount int64            `json:"deposited_amount"`
}

// FormRedirect tells the caller to send the user to the gateway's hosted
// payment form. The transaction stays open until the postback arrives.
type FormRedirect struct {
	URL string `json:"redirect_url"`
}

// OutcomeEvent is published after a transaction reaches a terminal state.
type OutcomeEvent struct {
	Event           string `json:"event"`
	TransactionID   string `json:"transaction_id"`
	ReferenceNumber string `json:"reference_number"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}
