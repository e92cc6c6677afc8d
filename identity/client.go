package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the Identity Toolkit API root.
	DefaultBaseURL = "https://identitytoolkit.googleapis.com"
	// DefaultSecureTokenURL is the Secure Token API root.
	DefaultSecureTokenURL = "https://securetoken.googleapis.com"
	// DefaultVersion is the Identity Toolkit API version.
	DefaultVersion = "v1"

	tracerName      = "github.com/ternsecure/ternsecure/identity"
	maxResponseBody = 1 << 20
)

// Config configures a Client. Zero fields take the defaults above; Timeout defaults
// to 10s per call.
type Config struct {
	BaseURL        string
	SecureTokenURL string
	Version        string
	TenantID       string
	Timeout        time.Duration
	Retry          RetryPolicy
	HTTPClient     *http.Client
	Tracer         trace.Tracer
}

// Client calls the identity provider REST APIs. It is safe for concurrent use.
type Client struct {
	baseURL        string
	secureTokenURL string
	version        string
	tenantID       string
	timeout        time.Duration
	retry          RetryPolicy
	http           *http.Client
	tracer         trace.Tracer
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		secureTokenURL: strings.TrimRight(cfg.SecureTokenURL, "/"),
		version:        cfg.Version,
		tenantID:       cfg.TenantID,
		timeout:        cfg.Timeout,
		retry:          cfg.Retry,
		http:           cfg.HTTPClient,
		tracer:         cfg.Tracer,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.secureTokenURL == "" {
		c.secureTokenURL = DefaultSecureTokenURL
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry = DefaultRetryPolicy()
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

func requireAPIKey(apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return ErrInvalidAPIKey
	}
	return nil
}

func (c *Client) toolkitURL(resource, apiKey string) string {
	return fmt.Sprintf("%s/%s/%s?key=%s", c.baseURL, c.version, resource, url.QueryEscape(apiKey))
}

func (c *Client) tokenURL(apiKey string) string {
	return fmt.Sprintf("%s/v1/token?key=%s", c.secureTokenURL, url.QueryEscape(apiKey))
}

// call POSTs req as JSON to endpoint and decodes a 2xx body into Resp. Non-2xx
// responses become *ProviderError; network failures wrap ErrTransport.
func call[Req any, Resp any](ctx context.Context, c *Client, op, endpoint string, req Req) (*Resp, error) {
	ctx, span := c.tracer.Start(ctx, "identity."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := c.roundTrip(ctx, op, endpoint, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.status))

	if resp.status < 200 || resp.status > 299 {
		code, detail := errorDetail(resp.body, resp.status)
		pe := &ProviderError{Op: op, Status: resp.status, Code: code, Detail: detail}
		span.SetStatus(codes.Error, pe.Code)
		return nil, pe
	}

	out := new(Resp)
	if len(bytes.TrimSpace(resp.body)) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s: %w: %v", op, ErrDecode, err)
		}
	}
	return out, nil
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) roundTrip(ctx context.Context, op, endpoint string, payload any) (*rawResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt < c.retry.MaxAttempts && retryable(ctx, err) {
				if sleepErr := sleep(ctx, c.retry.Backoff*time.Duration(attempt)); sleepErr == nil {
					continue
				}
			}
			return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w: read body: %v", op, ErrTransport, err)
		}
		return &rawResponse{status: resp.StatusCode, body: data}, nil
	}
}
