package paynet

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imenem/paynet-payments/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paynet_gateway_requests_total",
		Help: "Gateway API calls by method and outcome.",
	}, []string{"method", "outcome"})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "paynet_gateway_request_duration_seconds",
		Help: "Gateway API call latency.",
	}, []string{"method"})
)

// Client performs signed HTTP calls against the Paynet gateway and decodes
// its form-encoded responses. It implements ports.Gateway.
type Client struct {
	endpointID string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway client. The debug flag selects the sandbox
// gateway instead of the production one.
func NewClient(endpointID, sandboxGateway, productionGateway string, debug bool) *Client {
	base := productionGateway
	if debug {
		base = sandboxGateway
	}

	return &Client{
		endpointID: endpointID,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Request executes one API call: POST {gateway}/{method}/{endpoint_id} with
// URL-encoded params. Transport failures, non-200 statuses and empty bodies
// surface as communication errors; a validation-error response surfaces as
// invalid data carrying every decoded field.
func (c *Client) Request(ctx context.Context, method string, params domain.Fields) (domain.Fields, error) {
	requestURL := fmt.Sprintf("%s/%s/%s", c.baseURL, method, c.endpointID)

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			"failed to create request", "REQUEST_ERROR")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	timer := prometheus.NewTimer(gatewayRequestDuration.WithLabelValues(method))
	resp, err := c.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		gatewayRequestsTotal.WithLabelValues(method, "transport_error").Inc()
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			"request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		gatewayRequestsTotal.WithLabelValues(method, "transport_error").Inc()
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			"reading response body: "+err.Error(), "HTTP_ERROR")
	}

	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		gatewayRequestsTotal.WithLabelValues(method, "bad_status").Inc()
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			fmt.Sprintf("gateway returned status %d with %d body bytes", resp.StatusCode, len(body)),
			"GATEWAY_UNAVAILABLE")
	}

	data, err := DecodeResponse(string(body))
	if err != nil {
		gatewayRequestsTotal.WithLabelValues(method, "bad_body").Inc()
		return nil, domain.NewPaymentError(domain.ErrCommunication,
			"undecodable response body: "+err.Error(), "DECODE_ERROR")
	}

	if data[FieldType] == "validation-error" {
		gatewayRequestsTotal.WithLabelValues(method, "validation_error").Inc()
		perr := domain.NewPaymentError(domain.ErrInvalidData,
			data[FieldErrorMessage], "GATEWAY_VALIDATION_ERROR")
		perr.Response = data
		return nil, perr
	}

	gatewayRequestsTotal.WithLabelValues(method, "ok").Inc()
	return data, nil
}

// DecodeResponse parses the gateway's URL-encoded response text. The
// gateway wraps long responses, so embedded newlines are stripped before
// parsing, and the legacy error key is aliased afterwards.
func DecodeResponse(body string) (domain.Fields, error) {
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(body)

	values, err := url.ParseQuery(clean)
	if err != nil {
		return nil, err
	}

	data := make(domain.Fields, len(values))
	for key := range values {
		data[key] = values.Get(key)
	}

	return NormalizeErrorKey(data), nil
}

// NormalizeErrorKey aliases the legacy underscore-styled error key to the
// canonical hyphenated one. Different gateway endpoints disagree on the
// spelling, so the alias must run before any validation reads the message.
func NormalizeErrorKey(response domain.Fields) domain.Fields {
	message, ok := response[legacyErrorMessage]
	if !ok {
		return response
	}

	normalized := response.Clone()
	normalized[FieldErrorMessage] = message
	return normalized
}
