// Package service implements the core business logic: the hosted-form
// payment flow and the transaction outcome state machine.
package service

import (
	"context"
	"fmt"
	"log"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/imenem/paynet-payments/internal/core/ports"
)

// Outcome event names published after terminal transitions.
const (
	EventPaymentApproved = "payment.approved"
	EventPaymentDeclined = "payment.declined"
)

// Transitions drives a transaction to its terminal state. Each transition
// writes the transaction, its payment and its instruction atomically through
// the store; a transaction already in a terminal state is rejected by the
// store's concurrency check, never silently reapplied.
type Transitions struct {
	store  ports.Store
	events ports.EventPublisher
}

// NewTransitions creates the state machine. The event publisher may be nil;
// outcome events are best-effort either way.
func NewTransitions(store ports.Store, events ports.EventPublisher) *Transitions {
	return &Transitions{store: store, events: events}
}

// Fail records a failed payment: the gateway reference and status code on
// the transaction, the failed payment state and the closed instruction, all
// in one persisted unit. The cause comes back enriched with the transaction
// id so the caller can propagate it.
func (t *Transitions) Fail(ctx context.Context, tx *domain.Transaction, orderID, statusCode string, cause error) error {
	payment := tx.Payment
	instruction := tx.Instruction()

	tx.ReferenceNumber = orderID
	tx.State = domain.TransactionStateFailed
	tx.ReasonCode = domain.ReasonCodeInvalid
	tx.ResponseCode = statusCode

	payment.State = domain.PaymentStateFailed
	instruction.State = domain.InstructionStateClosed

	if err := t.store.SaveOutcome(ctx, tx, payment, instruction); err != nil {
		return fmt.Errorf("recording failed outcome for transaction %s: %w", tx.ID, err)
	}

	log.Printf("Transaction %s failed: status %s, gateway order %s", tx.ID, statusCode, orderID)
	t.publish(ctx, tx, EventPaymentDeclined)

	if perr, ok := cause.(*domain.PaymentError); ok {
		perr.TransactionID = tx.ID
	}
	return cause
}

// Success records a deposited payment. The requested amount is copied
// exactly into the processed, approved and deposited amounts; deposits are
// all-or-nothing against the requested amount.
func (t *Transitions) Success(ctx context.Context, tx *domain.Transaction, orderID string) error {
	payment := tx.Payment
	instruction := tx.Instruction()
	amount := tx.RequestedAmount

	tx.ReferenceNumber = orderID
	tx.ProcessedAmount = amount
	payment.ApprovedAmount = amount
	payment.DepositedAmount = amount
	instruction.ApprovedAmount = amount
	instruction.DepositedAmount = amount

	tx.State = domain.TransactionStateSuccess
	tx.ResponseCode = domain.ResponseCodeSuccess
	tx.ReasonCode = domain.ReasonCodeSuccess

	payment.State = domain.PaymentStateDeposited
	instruction.State = domain.InstructionStateClosed

	if err := t.store.SaveOutcome(ctx, tx, payment, instruction); err != nil {
		return fmt.Errorf("recording successful outcome for transaction %s: %w", tx.ID, err)
	}

	log.Printf("Transaction %s succeeded: gateway order %s, amount %d", tx.ID, orderID, amount)
	t.publish(ctx, tx, EventPaymentApproved)

	return nil
}

// publish announces the outcome. A broker failure is logged and swallowed;
// the recorded outcome stays authoritative.
func (t *Transitions) publish(ctx context.Context, tx *domain.Transaction, event string) {
	if t.events == nil {
		return
	}

	outcome := domain.OutcomeEvent{
		Event:           event,
		TransactionID:   tx.ID,
		ReferenceNumber: tx.ReferenceNumber,
		Status:          tx.ResponseCode,
		Amount:          tx.RequestedAmount,
		Currency:        tx.Instruction().Currency,
	}

	if err := t.events.PublishOutcome(ctx, outcome); err != nil {
		log.Printf("Failed to publish %s for transaction %s: %v", event, tx.ID, err)
	}
}
