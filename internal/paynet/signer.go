package paynet

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Signer computes and verifies the control signatures exchanged with the
// gateway. The outbound and inbound signatures intentionally use different
// field sets; that asymmetry follows the gateway's two signing conventions.
type Signer struct {
	endpointID  string
	merchantKey string
}

// NewSigner creates a signer for the given payment endpoint.
func NewSigner(endpointID, merchantKey string) *Signer {
	return &Signer{endpointID: endpointID, merchantKey: merchantKey}
}

// SignParams signs the outbound request parameters. The control field is
// sha1 over endpoint id, client order id, the amount in minor units, the
// email and the merchant key. A caller-supplied control is never
// overwritten, so signing twice yields the same parameters.
func (s *Signer) SignParams(params domain.Fields) (domain.Fields, error) {
	if params[FieldControl] != "" {
		return params, nil
	}

	minor, err := minorUnits(params["amount"])
	if err != nil {
		return nil, fmt.Errorf("signing request parameters: %w", err)
	}

	signed := params.Clone()
	signed[FieldControl] = sha1Hex(
		s.endpointID +
			params["client_orderid"] +
			minor +
			params["email"] +
			s.merchantKey)

	return signed, nil
}

// VerifyResponse checks the postback signature: sha1 over status, order id,
// merchant order and the merchant key. Comparison is constant-time since
// this guards a security boundary.
func (s *Signer) VerifyResponse(response domain.Fields) bool {
	expected := sha1Hex(
		response[FieldStatus] +
			response[FieldOrderID] +
			response[FieldMerchantOrder] +
			s.merchantKey)

	return hmac.Equal([]byte(response[FieldControl]), []byte(expected))
}

func sha1Hex(base string) string {
	sum := sha1.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// minorUnits converts a major-unit decimal amount ("10.00") to its exact
// minor-unit integer representation ("1000"). Decimal arithmetic keeps the
// multiplication free of floating-point drift.
func minorUnits(amount string) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	minor := d.Mul(decimal.NewFromInt(100))
	if !minor.IsInteger() {
		return "", fmt.Errorf("amount %q is not representable in minor units", amount)
	}

	return strconv.FormatInt(minor.IntPart(), 10), nil
}

// MajorUnits formats an integer minor-unit amount as the major-unit decimal
// string the gateway expects, e.g. 1000 -> "10.00".
func MajorUnits(minor int64) string {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).StringFixed(2)
}
