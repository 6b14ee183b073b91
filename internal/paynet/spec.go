// Package paynet implements the Paynet hosted-form gateway protocol:
// parameter specifications, request signing, the HTTP client and response
// validation. The gateway exchanges URL-encoded key/value text, signed with
// a sha1 control field over a fixed field order.
package paynet

import "github.com/imenem/paynet-payments/internal/core/domain"

// MethodSaleForm requests the hosted payment form. It is the only API
// method the form flow uses.
const MethodSaleForm = "sale-form"

// Well-known field names of the wire protocol.
const (
	FieldStatus        = "status"
	FieldControl       = "control"
	FieldOrderID       = "orderid"
	FieldMerchantOrder = "merchant_order"
	FieldRedirectURL   = "redirect-url"
	FieldPaynetOrderID = "paynet-order-id"
	FieldErrorMessage  = "error-message"
	FieldType          = "type"

	// legacyErrorMessage is the underscore spelling some gateway endpoints
	// use instead of FieldErrorMessage.
	legacyErrorMessage = "error_message"
)

// RequiredInstructionFields are the extended-data keys a transaction must
// carry before a form request may be dispatched.
var RequiredInstructionFields = []string{
	"client_orderid",
	"order_desc",
	"ipaddress",
	"success_url",
	"failed_url",
}

// ParamSpec returns the outbound request parameter specification: every
// known field with its default value. Several fields are mandatory for the
// gateway but meaningless for form payments; those carry the placeholder
// values the gateway accepts.
func ParamSpec() domain.Fields {
	return domain.Fields{
		// required
		"client_orderid": "",
		"order_desc":     "",
		"amount":         "",
		"currency":       "",
		"ipaddress":      "",
		"redirect_url":   "",
		"control":        "",

		// optional
		"first_name": "",
		"last_name":  "",
		"ssn":        "",
		"birthday":   "",
		"cell_phone": "",
		"state":      "",
		"site_url":   "",

		// required, placeholder defaults
		"address1": "Not specified",
		"city":     "Not specified",
		"zip_code": "000000",
		"country":  "RU",
		"phone":    "Not specified",
		"email":    "email@example.org",
	}
}

// ResponseSpec returns the postback response specification: field name to
// requiredness. Only the asynchronous postback flow checks it; the form
// response is governed by its status alone.
func ResponseSpec() map[string]bool {
	return map[string]bool{
		// required
		"merchant_order": true,
		"orderid":        true,
		"status":         true,
		"control":        true,

		// optional
		"client_orderid":        false,
		"descriptor":            false,
		"gate-partial-reversal": false,
		"error_message":         false,
	}
}
