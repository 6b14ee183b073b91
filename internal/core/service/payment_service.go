package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/imenem/paynet-payments/internal/core/ports"
	"github.com/imenem/paynet-payments/internal/paynet"
)

// PaymentService implements the hosted-form payment method: it initiates
// the form request and processes the gateway's asynchronous postback.
type PaymentService struct {
	gateway     ports.Gateway
	store       ports.Store
	urls        ports.CallbackURLBuilder
	signer      *paynet.Signer
	transitions *Transitions
}

// NewPaymentService creates the payment service with its collaborators.
func NewPaymentService(
	gateway ports.Gateway,
	store ports.Store,
	urls ports.CallbackURLBuilder,
	signer *paynet.Signer,
	transitions *Transitions,
) *PaymentService {
	return &PaymentService{
		gateway:     gateway,
		store:       store,
		urls:        urls,
		signer:      signer,
		transitions: transitions,
	}
}

// InitiateForm starts a form payment:
// 1. Validates the instruction's required extended fields before any network call
// 2. Builds and signs the request parameters, persisting the transaction first
//    so the callback URL references a durable id
// 3. Dispatches the sale-form request
// 4. Classifies the response, failing the transaction on a final bad status
// On success the transaction stays open; the caller must redirect the user
// to the returned hosted-form URL and wait for the postback.
func (s *PaymentService) InitiateForm(ctx context.Context, tx *domain.Transaction) (*domain.FormRedirect, error) {
	if err := checkInstruction(tx); err != nil {
		return nil, err
	}

	params, err := s.prepareParams(ctx, tx)
	if err != nil {
		return nil, err
	}

	// A failure here leaves the transaction untouched: nothing was started
	// on the gateway side, so the caller may retry the initiation.
	response, err := s.gateway.Request(ctx, paynet.MethodSaleForm, params)
	if err != nil {
		return nil, err
	}

	response = paynet.DefaultFormStatus(response)

	response, err = paynet.CheckStatus(response)
	if err != nil {
		return nil, s.transitions.Fail(ctx, tx,
			response[paynet.FieldPaynetOrderID], response[paynet.FieldStatus], err)
	}

	log.Printf("Form request accepted for transaction %s, awaiting postback", tx.ID)

	return &domain.FormRedirect{URL: response[paynet.FieldRedirectURL]}, nil
}

// ProcessPostback drives the transaction to a terminal state from the raw
// postback fields the gateway delivered to the callback URL.
func (s *PaymentService) ProcessPostback(ctx context.Context, tx *domain.Transaction, raw domain.Fields) error {
	response, missing := paynet.CheckRequiredFields(raw)
	if len(missing) > 0 {
		perr := domain.NewPaymentError(domain.ErrValidation,
			"required response fields missing: "+strings.Join(missing, ", "),
			"MISSING_RESPONSE_FIELDS")
		perr.Missing = missing
		perr.Response = response

		orderID := response[paynet.FieldOrderID]
		if orderID == "" {
			orderID = "0"
		}
		return s.transitions.Fail(ctx, tx, orderID, response[paynet.FieldStatus], perr)
	}

	response = paynet.MergeDefaults(response)

	if !s.signer.VerifyResponse(response) {
		perr := domain.NewPaymentError(domain.ErrInvalidData,
			"response signature mismatch", "BAD_SIGNATURE")
		perr.Response = response
		return s.transitions.Fail(ctx, tx,
			response[paynet.FieldOrderID], string(domain.StatusError), perr)
	}

	response, err := paynet.CheckStatus(response)
	if err != nil {
		return s.transitions.Fail(ctx, tx,
			response[paynet.FieldOrderID], response[paynet.FieldStatus], err)
	}

	return s.transitions.Success(ctx, tx, response[paynet.FieldOrderID])
}

// checkInstruction hard-fails when the instruction misses required extended
// fields. This guards the local boundary; the postback field check guards
// the remote one and deliberately uses a different policy.
func checkInstruction(tx *domain.Transaction) error {
	var missing []string
	for _, field := range paynet.RequiredInstructionFields {
		if tx.Extended(field) == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		perr := domain.NewPaymentError(domain.ErrValidation,
			"required instruction fields missing: "+strings.Join(missing, ", "),
			"MISSING_INSTRUCTION_FIELDS")
		perr.Missing = missing
		perr.TransactionID = tx.ID
		return perr
	}
	return nil
}

// prepareParams fills the parameter specification from the transaction's
// extended data, computes amount and currency, persists the transaction to
// obtain the callback target and signs the result.
func (s *PaymentService) prepareParams(ctx context.Context, tx *domain.Transaction) (domain.Fields, error) {
	params := paynet.ParamSpec()
	for key := range params {
		if value := tx.Extended(key); value != "" {
			params[key] = value
		}
	}

	params["amount"] = paynet.MajorUnits(tx.RequestedAmount)
	params["currency"] = tx.Instruction().Currency

	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("persisting transaction %s before dispatch: %w", tx.ID, err)
	}

	params["redirect_url"] = s.urls.CallbackURL(tx.ID)

	signed, err := s.signer.SignParams(params)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrInvalidData,
			err.Error(), "SIGNING_ERROR")
	}
	return signed, nil
}
