// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/imenem/paynet-payments/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_checkouts_total",
		Help: "Checkout initiations by outcome.",
	}, []string{"outcome"})

	postbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_postbacks_total",
		Help: "Gateway postbacks by outcome.",
	}, []string{"outcome"})
)

// Handler contains the HTTP handlers for the payment API.
type Handler struct {
	method ports.PaymentMethod
	store  ports.Store
}

// NewHandler creates a new API handler.
func NewHandler(method ports.PaymentMethod, store ports.Store) *Handler {
	return &Handler{method: method, store: store}
}

// CheckoutRequest represents the JSON body for the checkout endpoint.
// Amount is in integer minor units (cents).
type CheckoutRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Currency      string `json:"currency" binding:"required"`
	ClientOrderID string `json:"client_orderid" binding:"required"`
	OrderDesc     string `json:"order_desc" binding:"required"`
	IPAddress     string `json:"ipaddress" binding:"required"`
	SuccessURL    string `json:"success_url" binding:"required"`
	FailedURL     string `json:"failed_url" binding:"required"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Phone         string `json:"phone"`
}

// CheckoutResponse represents the response from the checkout endpoint.
type CheckoutResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Missing []string `json:"missing_fields,omitempty"`
}

// CreateCheckout handles POST /api/v1/payments/checkout.
// Builds the transaction aggregate and initiates the hosted-form flow; the
// response carries the URL the user must be redirected to.
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	tx := newTransaction(req)

	redirect, err := h.method.InitiateForm(c.Request.Context(), tx)
	if err != nil {
		checkoutsTotal.WithLabelValues("error").Inc()
		handleServiceError(c, err)
		return
	}

	checkoutsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, CheckoutResponse{
		Success:       true,
		TransactionID: tx.ID,
		RedirectURL:   redirect.URL,
	})
}

// HandlePostback handles POST /payment/return/:transaction_id.
// The gateway posts the payment outcome here; after processing, the user is
// redirected to the success or failure page stored with the transaction.
func (h *Handler) HandlePostback(c *gin.Context) {
	id := c.Param("transaction_id")

	tx, err := h.store.FindTransaction(c.Request.Context(), id)
	if err != nil {
		postbacksTotal.WithLabelValues("unknown_transaction").Inc()
		if errors.Is(err, domain.ErrTransactionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Success: false,
				Error:   "transaction not found",
				Code:    "TRANSACTION_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Success: false,
			Error:   "failed to load transaction",
			Code:    "STORAGE_ERROR",
		})
		return
	}

	if err := h.method.ProcessPostback(c.Request.Context(), tx, postbackFields(c)); err != nil {
		postbacksTotal.WithLabelValues("failed").Inc()
		log.Printf("Postback processing failed for transaction %s: %v", tx.ID, err)
		c.Redirect(http.StatusFound, tx.Extended("failed_url"))
		return
	}

	postbacksTotal.WithLabelValues("ok").Inc()
	c.Redirect(http.StatusFound, tx.Extended("success_url"))
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "paynet-payments",
	})
}

// newTransaction builds the transaction aggregate for a checkout request.
func newTransaction(req CheckoutRequest) *domain.Transaction {
	instruction := &domain.Instruction{
		ID:       uuid.NewString(),
		Currency: req.Currency,
		State:    domain.InstructionStateValid,
	}
	payment := &domain.Payment{
		ID:          uuid.NewString(),
		State:       domain.PaymentStateNew,
		Instruction: instruction,
	}

	extended := map[string]string{
		"client_orderid": req.ClientOrderID,
		"order_desc":     req.OrderDesc,
		"ipaddress":      req.IPAddress,
		"success_url":    req.SuccessURL,
		"failed_url":     req.FailedURL,
	}
	for key, value := range map[string]string{
		"email":      req.Email,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"phone":      req.Phone,
	} {
		if value != "" {
			extended[key] = value
		}
	}

	return &domain.Transaction{
		ID:              uuid.NewString(),
		RequestedAmount: req.Amount,
		State:           domain.TransactionStateNew,
		ExtendedData:    extended,
		Payment:         payment,
	}
}

// postbackFields flattens the request's form and query values into the
// key/value mapping the core consumes.
func postbackFields(c *gin.Context) domain.Fields {
	if err := c.Request.ParseForm(); err != nil {
		log.Printf("Postback form parsing error: %v", err)
	}

	fields := make(domain.Fields, len(c.Request.Form))
	for key := range c.Request.Form {
		fields[key] = c.Request.Form.Get(key)
	}
	return fields
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrFinancial):
		statusCode = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrCommunication), errors.Is(err, domain.ErrInvalidData):
		statusCode = http.StatusBadGateway
	case errors.Is(err, domain.ErrAlreadyFinalized):
		statusCode = http.StatusConflict
	}

	var perr *domain.PaymentError
	if errors.As(err, &perr) {
		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   perr.Message,
			Code:    perr.Code,
			Missing: perr.Missing,
		})
		return
	}

	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}
