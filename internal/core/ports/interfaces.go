// Package ports defines the interfaces (ports) for the payment service.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/imenem/paynet-payments/internal/core/domain"
)

// Gateway performs one signed API call against the payment gateway and
// returns the decoded, normalized response fields.
type Gateway interface {
	Request(ctx context.Context, method string, params domain.Fields) (domain.Fields, error)
}

// Store persists the transaction aggregate. SaveOutcome writes the
// transaction, payment and instruction in one unit - all three or none -
// and must reject a transition of an already-terminal transaction with
// domain.ErrAlreadyFinalized instead of silently reapplying it.
type Store interface {
	// SaveTransaction persists a single transaction, e.g. before dispatch
	// so the callback URL can reference its id.
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error

	// SaveOutcome atomically persists a terminal state transition.
	SaveOutcome(ctx context.Context, tx *domain.Transaction, payment *domain.Payment, instruction *domain.Instruction) error

	// FindTransaction loads a transaction with its payment and instruction.
	FindTransaction(ctx context.Context, id string) (*domain.Transaction, error)
}

// CallbackURLBuilder generates the absolute URL the gateway posts the
// payment outcome back to.
type CallbackURLBuilder interface {
	CallbackURL(transactionID string) string
}

// EventPublisher announces terminal payment outcomes to the rest of the
// pipeline. Publishing is best-effort; a broker failure never rolls back a
// recorded outcome.
type EventPublisher interface {
	PublishOutcome(ctx context.Context, event domain.OutcomeEvent) error
}

// PaymentMethod is the capability a payment method plugin exposes: start a
// payment and process the gateway's asynchronous outcome notification.
type PaymentMethod interface {
	// InitiateForm builds and dispatches the signed form request and
	// returns where to redirect the user.
	InitiateForm(ctx context.Context, tx *domain.Transaction) (*domain.FormRedirect, error)

	// ProcessPostback drives the transaction to a terminal state from the
	// raw postback fields.
	ProcessPostback(ctx context.Context, tx *domain.Transaction, raw domain.Fields) error
}
