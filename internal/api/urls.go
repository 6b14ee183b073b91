package api

import (
	"fmt"
	"strings"
)

// URLBuilder builds the absolute callback URLs the gateway posts payment
// outcomes to. It implements ports.CallbackURLBuilder.
type URLBuilder struct {
	baseURL string
}

// NewURLBuilder creates a builder rooted at the service's public base URL.
func NewURLBuilder(baseURL string) *URLBuilder {
	return &URLBuilder{baseURL: strings.TrimRight(baseURL, "/")}
}

// CallbackURL returns the postback target for one transaction. The path
// must match the route registered in SetupRouter.
func (b *URLBuilder) CallbackURL(transactionID string) string {
	return fmt.Sprintf("%s/payment/return/%s", b.baseURL, transactionID)
}
