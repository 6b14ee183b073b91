package paynet

import (
	"sort"
	"strings"

	"github.com/imenem/paynet-payments/internal/core/domain"
)

// CheckStatus classifies a normalized gateway response by its status field.
// Approved and processing responses pass through unchanged. Declined and
// filtered are bank-level decisions and fail with a financial error. Error
// and every value outside the known vocabulary are coerced to the error
// status and fail with an invalid-data error; an unknown status is never a
// success.
func CheckStatus(response domain.Fields) (domain.Fields, error) {
	response = NormalizeErrorKey(response)

	status, _ := domain.ParseStatus(response[FieldStatus])
	switch status {
	case domain.StatusApproved, domain.StatusProcessing:
		return response, nil

	case domain.StatusDeclined, domain.StatusFiltered:
		perr := domain.NewPaymentError(domain.ErrFinancial,
			response[FieldErrorMessage], "PAYMENT_"+strings.ToUpper(string(status)))
		perr.Response = response
		return response, perr

	default:
		coerced := response.Clone()
		coerced[FieldStatus] = string(domain.StatusError)

		perr := domain.NewPaymentError(domain.ErrInvalidData,
			coerced[FieldErrorMessage], "GATEWAY_ERROR_STATUS")
		perr.Response = coerced
		return coerced, perr
	}
}

// CheckRequiredFields reports which required postback fields are empty or
// absent, sorted for deterministic output. The returned response has its
// status defaulted to error when the gateway omitted it, so downstream
// logic always has a status to branch on.
func CheckRequiredFields(response domain.Fields) (domain.Fields, []string) {
	var missing []string
	for key, required := range ResponseSpec() {
		if required && response[key] == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)

	if response[FieldStatus] == "" {
		response = response.Clone()
		response[FieldStatus] = string(domain.StatusError)
	}

	return response, missing
}

// DefaultFormStatus fills in the status the gateway sometimes omits on
// non-final form responses; absence means the payment is still processing.
func DefaultFormStatus(response domain.Fields) domain.Fields {
	if _, ok := response[FieldStatus]; ok {
		return response
	}

	defaulted := response.Clone()
	defaulted[FieldStatus] = string(domain.StatusProcessing)
	return defaulted
}

// MergeDefaults overlays the response on the response specification so
// every known key exists afterwards, present or not.
func MergeDefaults(response domain.Fields) domain.Fields {
	merged := make(domain.Fields, len(response)+len(ResponseSpec()))
	for key := range ResponseSpec() {
		merged[key] = ""
	}
	for key, value := range response {
		merged[key] = value
	}
	return merged
}
