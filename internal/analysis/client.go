// Package analysis talks to the Lurantis analysis API. Every call is a single request:
// no retries, no caching.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ligun0805/lurantis-go/internal/errors"
	"github.com/ligun0805/lurantis-go/internal/logger"
	"github.com/ligun0805/lurantis-go/internal/telemetry"
)

const DefaultTimeout = 60 * time.Second

// APIError is a non-2xx response. Detail is the server's "detail" field when present.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string { return e.Detail }

// IsCreditExhausted reports whether err means the user has to buy credits or a subscription.
func IsCreditExhausted(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusPaymentRequired || strings.Contains(strings.ToLower(apiErr.Detail), "credit")
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithTracer(t oteltrace.Tracer) Option { return func(c *Client) { c.tracer = t } }

type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	tracer  oteltrace.Tracer
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log)
	if c.tracer == nil {
		c.tracer = telemetry.GetTracer()
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Analyze(ctx context.Context, req Request) (*BasicResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("content is required")
	}
	var out BasicResult
	if err := c.do(ctx, http.MethodPost, string(EndpointAnalyze), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeEnhanced(ctx context.Context, req EnhancedRequest) (*EnhancedResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("content is required")
	}
	var out EnhancedResult
	if err := c.do(ctx, http.MethodPost, string(EndpointAnalyzeEnhanced), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AnalyzeWallet(ctx context.Context, req WalletRequest) (*WalletResult, error) {
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if req.WalletAddress == "" {
		return nil, errors.New("wallet address is required")
	}
	var out WalletResult
	if err := c.do(ctx, http.MethodPost, string(EndpointAnalyzeWallet), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit posts body to endpoint and decodes whichever result shape comes back.
func (c *Client) Submit(ctx context.Context, endpoint Endpoint, body any) (*Result, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, string(endpoint), body, &raw); err != nil {
		return nil, err
	}
	return DecodeResult(raw)
}

func (c *Client) Credits(ctx context.Context, address string) (*CreditBalance, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("address is required")
	}
	var out CreditBalance
	if err := c.do(ctx, http.MethodGet, "/credits/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Patterns(ctx context.Context) (*Patterns, error) {
	var out Patterns
	if err := c.do(ctx, http.MethodGet, "/patterns", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, "analysis_request")
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	defer span.End()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("Calling analysis API", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.log.Error("Analysis request failed", "path", path, "error", err)
		return errors.WrapNetwork(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapNetwork(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Detail: errorDetail(resp.StatusCode, rb)}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Detail)
		c.log.Warn("Analysis API error", "path", path, "status", resp.StatusCode, "detail", apiErr.Detail)
		return apiErr
	}

	if err := json.Unmarshal(rb, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	c.log.Debug("Analysis API response", "path", path, "status", resp.StatusCode, "bytes", len(rb))
	return nil
}

// errorDetail mirrors the web client: a non-JSON body is "Unknown error", a JSON body without
// detail falls back to the status line.
func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "Unknown error"
	}
	fallback := fmt.Sprintf("HTTP error! status: %d", status)
	if len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}
	// validation errors carry a list
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Detail); err != nil {
		return fallback
	}
	return buf.String()
}
