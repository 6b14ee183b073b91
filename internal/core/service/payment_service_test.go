package service_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/imenem/paynet-payments/internal/core/service"
	"github.com/imenem/paynet-payments/internal/paynet"
)

const (
	testEndpointID  = "291"
	testMerchantKey = "s3cr3t"
)

// postbackControl signs a postback the way the gateway does.
func postbackControl(status, orderID, merchantOrder string) string {
	sum := sha1.Sum([]byte(status + orderID + merchantOrder + testMerchantKey))
	return hex.EncodeToString(sum[:])
}

type fakeGateway struct {
	requestFn  func(ctx context.Context, method string, params domain.Fields) (domain.Fields, error)
	calls      int
	lastMethod string
	lastParams domain.Fields
}

func (g *fakeGateway) Request(ctx context.Context, method string, params domain.Fields) (domain.Fields, error) {
	g.calls++
	g.lastMethod = method
	g.lastParams = params
	if g.requestFn != nil {
		return g.requestFn(ctx, method, params)
	}
	return domain.Fields{}, nil
}

// fakeStore emulates the persistence port, including the terminal-state
// compare-and-swap a real store performs.
type fakeStore struct {
	saved      []*domain.Transaction
	outcomes   int
	state      domain.TransactionState
	saveErr    error
	outcomeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: domain.TransactionStateNew}
}

func (s *fakeStore) SaveTransaction(_ context.Context, tx *domain.Transaction) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, tx)
	return nil
}

func (s *fakeStore) SaveOutcome(_ context.Context, tx *domain.Transaction, _ *domain.Payment, _ *domain.Instruction) error {
	if s.outcomeErr != nil {
		return s.outcomeErr
	}
	if s.state.Terminal() {
		return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyFinalized, tx.ID)
	}
	s.state = tx.State
	s.outcomes++
	return nil
}

func (s *fakeStore) FindTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
}

type fakeURLs struct{}

func (fakeURLs) CallbackURL(transactionID string) string {
	return "https://shop.example/payment/return/" + transactionID
}

type fakePublisher struct {
	events []domain.OutcomeEvent
}

func (p *fakePublisher) PublishOutcome(_ context.Context, event domain.OutcomeEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newTestService() (*service.PaymentService, *fakeGateway, *fakeStore, *fakePublisher) {
	gateway := &fakeGateway{}
	store := newFakeStore()
	publisher := &fakePublisher{}
	signer := paynet.NewSigner(testEndpointID, testMerchantKey)
	transitions := service.NewTransitions(store, publisher)
	svc := service.NewPaymentService(gateway, store, fakeURLs{}, signer, transitions)
	return svc, gateway, store, publisher
}

func newTestTransaction(amount int64, currency string) *domain.Transaction {
	instruction := &domain.Instruction{
		ID:       "instr-1",
		Currency: currency,
		State:    domain.InstructionStateValid,
	}
	payment := &domain.Payment{
		ID:          "payment-1",
		State:       domain.PaymentStateNew,
		Instruction: instruction,
	}
	return &domain.Transaction{
		ID:              "tx-1",
		RequestedAmount: amount,
		State:           domain.TransactionStateNew,
		ExtendedData: map[string]string{
			"client_orderid": "order-1",
			"order_desc":     "Test order",
			"ipaddress":      "203.0.113.7",
			"success_url":    "https://shop.example/thanks",
			"failed_url":     "https://shop.example/sorry",
			"email":          "payer@example.org",
		},
		Payment: payment,
	}
}

func TestInitiateFormReturnsRedirect(t *testing.T) {
	svc, gateway, store, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	gateway.requestFn = func(_ context.Context, _ string, _ domain.Fields) (domain.Fields, error) {
		// transaction must be durable before the gateway sees the callback URL
		if len(store.saved) != 1 {
			t.Error("expected transaction persisted before dispatch")
		}
		return domain.Fields{"redirect-url": "https://gw.example/form/abc"}, nil
	}

	redirect, err := svc.InitiateForm(context.Background(), tx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if redirect.URL != "https://gw.example/form/abc" {
		t.Fatalf("unexpected redirect URL: %q", redirect.URL)
	}

	if gateway.lastMethod != "sale-form" {
		t.Fatalf("expected sale-form method, got %q", gateway.lastMethod)
	}

	params := gateway.lastParams
	if params["amount"] != "50.00" {
		t.Fatalf("expected amount 50.00, got %q", params["amount"])
	}
	if params["currency"] != "USD" {
		t.Fatalf("expected currency USD, got %q", params["currency"])
	}
	if params["redirect_url"] != "https://shop.example/payment/return/tx-1" {
		t.Fatalf("unexpected callback URL: %q", params["redirect_url"])
	}
	if params["control"] == "" {
		t.Fatal("expected signed parameters")
	}
	if params["country"] != "RU" {
		t.Fatalf("expected spec default for country, got %q", params["country"])
	}

	// the transaction stays open until the postback arrives
	if tx.State != domain.TransactionStateNew {
		t.Fatalf("expected transaction to stay open, got state %q", tx.State)
	}
	if store.outcomes != 0 {
		t.Fatal("no terminal outcome may be recorded on initiation success")
	}
}

func TestInitiateFormMissingInstructionFields(t *testing.T) {
	svc, gateway, store, _ := newTestService()
	tx := newTestTransaction(5000, "USD")
	delete(tx.ExtendedData, "order_desc")
	delete(tx.ExtendedData, "ipaddress")

	_, err := svc.InitiateForm(context.Background(), tx)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got: %v", err)
	}

	var perr *domain.PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *domain.PaymentError, got %T", err)
	}
	if !reflect.DeepEqual(perr.Missing, []string{"order_desc", "ipaddress"}) {
		t.Fatalf("expected missing field names, got %v", perr.Missing)
	}

	if gateway.calls != 0 {
		t.Fatal("no network call may happen with an invalid instruction")
	}
	if len(store.saved) != 0 {
		t.Fatal("nothing may be persisted with an invalid instruction")
	}
}

func TestInitiateFormGatewayOutageLeavesTransactionUntouched(t *testing.T) {
	svc, gateway, store, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	gateway.requestFn = func(_ context.Context, _ string, _ domain.Fields) (domain.Fields, error) {
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			"gateway returned status 503 with 0 body bytes", "GATEWAY_UNAVAILABLE")
	}

	_, err := svc.InitiateForm(context.Background(), tx)
	if !errors.Is(err, domain.ErrCommunication) {
		t.Fatalf("expected communication error, got: %v", err)
	}

	if tx.State != domain.TransactionStateNew {
		t.Fatalf("transaction must stay in its pre-call state, got %q", tx.State)
	}
	if store.outcomes != 0 {
		t.Fatal("a failed call must not record an outcome")
	}
}

func TestInitiateFormDeclinedFailsTransaction(t *testing.T) {
	svc, gateway, store, publisher := newTestService()
	tx := newTestTransaction(5000, "USD")

	gateway.requestFn = func(_ context.Context, _ string, _ domain.Fields) (domain.Fields, error) {
		return domain.Fields{
			"status":          "declined",
			"paynet-order-id": "555",
			"error_message":   "suspected_fraud",
		}, nil
	}

	_, err := svc.InitiateForm(context.Background(), tx)
	if !errors.Is(err, domain.ErrFinancial) {
		t.Fatalf("expected financial error, got: %v", err)
	}

	if tx.State != domain.TransactionStateFailed {
		t.Fatalf("expected failed transaction, got %q", tx.State)
	}
	if tx.ReferenceNumber != "555" {
		t.Fatalf("expected gateway order id recorded, got %q", tx.ReferenceNumber)
	}
	if tx.ResponseCode != "declined" {
		t.Fatalf("expected declined response code, got %q", tx.ResponseCode)
	}
	if store.outcomes != 1 {
		t.Fatalf("expected one recorded outcome, got %d", store.outcomes)
	}
	if len(publisher.events) != 1 || publisher.events[0].Event != service.EventPaymentDeclined {
		t.Fatalf("expected declined event, got %v", publisher.events)
	}
}

func TestProcessPostbackApproved(t *testing.T) {
	svc, _, store, publisher := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":         "approved",
		"orderid":        "789",
		"merchant_order": "123",
		"control":        postbackControl("approved", "789", "123"),
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if tx.State != domain.TransactionStateSuccess {
		t.Fatalf("expected success state, got %q", tx.State)
	}
	if tx.ResponseCode != domain.ResponseCodeSuccess || tx.ReasonCode != domain.ReasonCodeSuccess {
		t.Fatalf("expected success codes, got %q/%q", tx.ResponseCode, tx.ReasonCode)
	}
	if tx.ReferenceNumber != "789" {
		t.Fatalf("expected reference number 789, got %q", tx.ReferenceNumber)
	}

	// exact amount round-trip across the aggregate
	if tx.ProcessedAmount != 5000 {
		t.Fatalf("expected processed amount 5000, got %d", tx.ProcessedAmount)
	}
	if tx.Payment.ApprovedAmount != 5000 || tx.Payment.DepositedAmount != 5000 {
		t.Fatal("expected payment amounts mirrored exactly")
	}
	if tx.Instruction().ApprovedAmount != 5000 || tx.Instruction().DepositedAmount != 5000 {
		t.Fatal("expected instruction amounts mirrored exactly")
	}
	if tx.Payment.State != domain.PaymentStateDeposited {
		t.Fatalf("expected deposited payment, got %q", tx.Payment.State)
	}
	if tx.Instruction().State != domain.InstructionStateClosed {
		t.Fatalf("expected closed instruction, got %q", tx.Instruction().State)
	}

	if store.outcomes != 1 {
		t.Fatalf("expected one recorded outcome, got %d", store.outcomes)
	}
	if len(publisher.events) != 1 || publisher.events[0].Event != service.EventPaymentApproved {
		t.Fatalf("expected approved event, got %v", publisher.events)
	}
	if publisher.events[0].Amount != 5000 || publisher.events[0].Currency != "USD" {
		t.Fatalf("unexpected event payload: %+v", publisher.events[0])
	}
}

func TestProcessPostbackDeclined(t *testing.T) {
	svc, _, _, publisher := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":         "declined",
		"orderid":        "789",
		"merchant_order": "123",
		"error_message":  "insufficient_funds",
		"control":        postbackControl("declined", "789", "123"),
	})
	if !errors.Is(err, domain.ErrFinancial) {
		t.Fatalf("expected financial error, got: %v", err)
	}

	if tx.State != domain.TransactionStateFailed {
		t.Fatalf("expected failed transaction, got %q", tx.State)
	}
	if tx.ResponseCode != "declined" {
		t.Fatalf("expected declined response code, got %q", tx.ResponseCode)
	}
	if tx.ReasonCode != domain.ReasonCodeInvalid {
		t.Fatalf("expected invalid reason code, got %q", tx.ReasonCode)
	}
	if len(publisher.events) != 1 || publisher.events[0].Event != service.EventPaymentDeclined {
		t.Fatalf("expected declined event, got %v", publisher.events)
	}
}

func TestProcessPostbackMissingRequiredFields(t *testing.T) {
	svc, _, _, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":  "approved",
		"orderid": "789",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got: %v", err)
	}

	var perr *domain.PaymentError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *domain.PaymentError, got %T", err)
	}
	if !reflect.DeepEqual(perr.Missing, []string{"control", "merchant_order"}) {
		t.Fatalf("expected missing [control merchant_order], got %v", perr.Missing)
	}

	if tx.State != domain.TransactionStateFailed {
		t.Fatalf("expected failed transaction, got %q", tx.State)
	}
	// the supplied status is preserved as the response code
	if tx.ResponseCode != "approved" {
		t.Fatalf("expected supplied status preserved, got %q", tx.ResponseCode)
	}
	if tx.ReferenceNumber != "789" {
		t.Fatalf("expected supplied order id preserved, got %q", tx.ReferenceNumber)
	}
}

func TestProcessPostbackEmptyDefaultsOrderAndStatus(t *testing.T) {
	svc, _, _, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got: %v", err)
	}

	if tx.ReferenceNumber != "0" {
		t.Fatalf("expected order id defaulted to 0, got %q", tx.ReferenceNumber)
	}
	if tx.ResponseCode != "error" {
		t.Fatalf("expected status defaulted to error, got %q", tx.ResponseCode)
	}
}

func TestProcessPostbackBadSignature(t *testing.T) {
	svc, _, _, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":         "approved",
		"orderid":        "789",
		"merchant_order": "123",
		"control":        "forged",
	})
	if !errors.Is(err, domain.ErrInvalidData) {
		t.Fatalf("expected invalid-data error, got: %v", err)
	}

	if tx.State != domain.TransactionStateFailed {
		t.Fatalf("expected failed transaction, got %q", tx.State)
	}
	if tx.ResponseCode != "error" {
		t.Fatalf("expected error response code, got %q", tx.ResponseCode)
	}
}

func TestProcessPostbackUnknownStatusNeverSucceeds(t *testing.T) {
	svc, _, _, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":         "paid_probably",
		"orderid":        "789",
		"merchant_order": "123",
		"control":        postbackControl("paid_probably", "789", "123"),
	})
	if !errors.Is(err, domain.ErrInvalidData) {
		t.Fatalf("expected invalid-data error, got: %v", err)
	}

	if tx.State != domain.TransactionStateFailed {
		t.Fatalf("expected failed transaction, got %q", tx.State)
	}
	if tx.ResponseCode != "error" {
		t.Fatalf("expected coerced error status, got %q", tx.ResponseCode)
	}
}

func TestProcessPostbackDuplicateRejected(t *testing.T) {
	svc, _, store, _ := newTestService()
	tx := newTestTransaction(5000, "USD")

	raw := domain.Fields{
		"status":         "approved",
		"orderid":        "789",
		"merchant_order": "123",
		"control":        postbackControl("approved", "789", "123"),
	}

	if err := svc.ProcessPostback(context.Background(), tx, raw); err != nil {
		t.Fatalf("first postback: expected no error, got: %v", err)
	}

	err := svc.ProcessPostback(context.Background(), tx, raw)
	if !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("expected already-finalized rejection, got: %v", err)
	}
	if store.outcomes != 1 {
		t.Fatalf("expected exactly one recorded outcome, got %d", store.outcomes)
	}
}

func TestProcessPostbackAmountRoundTrip(t *testing.T) {
	svc, _, _, _ := newTestService()
	tx := newTestTransaction(1000, "USD")

	err := svc.ProcessPostback(context.Background(), tx, domain.Fields{
		"status":         "approved",
		"orderid":        "42",
		"merchant_order": "7",
		"control":        postbackControl("approved", "42", "7"),
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for name, amount := range map[string]int64{
		"processed": tx.ProcessedAmount,
		"approved":  tx.Payment.ApprovedAmount,
		"deposited": tx.Instruction().DepositedAmount,
	} {
		if amount != 1000 {
			t.Fatalf("expected %s amount 1000, got %d", name, amount)
		}
	}
}
