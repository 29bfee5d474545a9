package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	id "verigate/pkg/domain"
)

const (
	maxResponseBytes = 4 << 20
	headerAPIKey     = "X-API-Key"
)

// HTTPProvider posts the caller's JSON payload to one upstream endpoint and
// passes the JSON answer through.
type HTTPProvider struct {
	id        string
	vtype     id.VerificationType
	endpoint  string
	healthURL string
	apiKey    string
	client    *http.Client
	clock     func() time.Time
}

type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) {
		p.apiKey = key
	}
}

// WithHealthURL enables Health; without it Health always succeeds.
func WithHealthURL(url string) HTTPOption {
	return func(p *HTTPProvider) {
		p.healthURL = url
	}
}

func WithClock(clock func() time.Time) HTTPOption {
	return func(p *HTTPProvider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewHTTPProvider creates a provider for t that calls endpoint. The default
// client is traced with otelhttp and bounded by timeout.
func NewHTTPProvider(providerID string, t id.VerificationType, endpoint string, timeout time.Duration, opts ...HTTPOption) (*HTTPProvider, error) {
	if providerID == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if t == "" {
		return nil, fmt.Errorf("verification type is required")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	p := &HTTPProvider{
		id:       providerID,
		vtype:    t,
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) ID() string                { return p.id }
func (p *HTTPProvider) Type() id.VerificationType { return p.vtype }

func (p *HTTPProvider) Verify(ctx context.Context, payload json.RawMessage) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError(ErrorInternal, p.id, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set(headerAPIKey, p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, p.transportError(err)
	}
	if category, failed := categoryForStatus(resp.StatusCode); failed {
		return nil, NewProviderError(category, p.id, upstreamMessage(body, resp.StatusCode), nil)
	}
	if !json.Valid(body) {
		return nil, NewProviderError(ErrorBadData, p.id, "provider returned malformed JSON", nil)
	}

	return &Result{
		ProviderID: p.id,
		Type:       p.vtype,
		Data:       json.RawMessage(body),
		CheckedAt:  p.clock().UTC(),
	}, nil
}

func (p *HTTPProvider) Health(ctx context.Context) error {
	if p.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, p.id, "build health request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return p.transportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return NewProviderError(ErrorProviderOutage, p.id, fmt.Sprintf("health check returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (p *HTTPProvider) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return NewProviderError(ErrorTimeout, p.id, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError(ErrorInternal, p.id, "request canceled", err)
	}
	return NewProviderError(ErrorProviderOutage, p.id, "provider unreachable", err)
}

// categoryForStatus classifies a non-2xx upstream status.
func categoryForStatus(status int) (ErrorCategory, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusNotFound:
		return ErrorNotFound, true
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorBadData, true
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorAuthentication, true
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited, true
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrorTimeout, true
	default:
		return ErrorProviderOutage, true
	}
}

// upstreamMessage picks a "message" field out of an error body when there is
// one.
func upstreamMessage(body []byte, status int) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	return fmt.Sprintf("provider returned status %d", status)
}
