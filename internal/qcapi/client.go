// Package qcapi is the QuantConnect REST v2 client: the concrete Invoker
// behind the orchestrator. One Invoke is at most one logical platform
// call; retries are the caller's concern.
package qcapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/time/rate"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/logging"
)

// DefaultBaseURL is the production QuantConnect API root.
const DefaultBaseURL = "https://www.quantconnect.com/api/v2"

// DefaultMaxBodyBytes caps response bodies; backtest result payloads are
// large but bounded.
const DefaultMaxBodyBytes int64 = 32 << 20

// Config holds credentials and transport tuning.
type Config struct {
	UserID       string        `yaml:"user_id" mapstructure:"user_id"`
	Token        string        `yaml:"token" mapstructure:"token"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// RateLimit is the sustained request rate in requests per second;
	// zero disables client-side limiting. A burst less than 1 is coerced
	// to 1 when a limit is set.
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int           `yaml:"rate_burst" mapstructure:"rate_burst"`
	Breaker   BreakerConfig `yaml:"-" mapstructure:"-"`
}

// APIError is a platform-reported failure: an HTTP error status or a
// success:false envelope.
type APIError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("%s rejected: %s", e.Endpoint, e.Detail)
}

// ResponseTooLargeError reports a body that blew past MaxBodyBytes.
// Backtest result and chart payloads are the usual offenders.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsResponseTooLarge reports whether the error indicates a response limit violation.
func IsResponseTooLarge(err error) bool {
	var limitErr ResponseTooLargeError
	return errors.As(err, &limitErr)
}

// readAllWithLimit reads at most limit bytes, failing rather than
// truncating when the body is larger. A limit <= 0 reads everything.
func readAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}

// Client calls the QuantConnect REST API.
type Client struct {
	config   Config
	registry *catalog.Registry
	http     *http.Client
	breaker  *breaker
	limiter  *rate.Limiter
	logger   logging.Logger
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

// WithClock overrides the timestamp source used for request signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New constructs a Client resolving endpoints through the registry.
func New(config Config, registry *catalog.Registry, logger logging.Logger, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	c := &Client{
		config:   config,
		registry: registry,
		http:     &http.Client{Timeout: config.Timeout},
		breaker:  newBreaker(config.Breaker),
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke posts the argument set to the operation's endpoint and returns
// the decoded payload.
func (c *Client) Invoke(ctx context.Context, operation string, args map[string]any) (map[string]any, error) {
	op, ok := c.registry.Lookup(operation)
	if !ok {
		return nil, fmt.Errorf("unknown operation: %s", operation)
	}
	if err := c.breaker.allow(); err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := c.post(ctx, op.Endpoint, args)
	c.breaker.mark(err)
	return payload, err
}

func (c *Client) post(ctx context.Context, endpoint string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readAllWithLimit(resp.Body, c.config.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("POST %s -> %d (%d bytes, %s)", endpoint, resp.StatusCode, len(data), time.Since(started).Round(time.Millisecond))

	payload := decodeBody(data)
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(payload, string(data)),
		}
	}
	if payload == nil {
		return nil, fmt.Errorf("undecodable response from %s", endpoint)
	}
	if success, ok := payload["success"].(bool); ok && !success {
		return nil, &APIError{Endpoint: endpoint, Detail: errorDetail(payload, "")}
	}
	return payload, nil
}

// sign applies the platform's timestamped authentication: basic auth of
// userId against sha256(token + ":" + timestamp), timestamp echoed in its
// own header.
func (c *Client) sign(req *http.Request) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	sum := sha256.Sum256([]byte(c.config.Token + ":" + timestamp))
	req.SetBasicAuth(c.config.UserID, hex.EncodeToString(sum[:]))
	req.Header.Set("Timestamp", timestamp)
}

// decodeBody parses the response JSON, repairing near-JSON bodies before
// giving up.
func decodeBody(data []byte) map[string]any {
	if len(data) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload
	}
	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil
	}
	return payload
}

// errorDetail mirrors how the platform reports failures: an errors list,
// a message, or nothing useful.
func errorDetail(payload map[string]any, fallback string) string {
	if payload != nil {
		if list, ok := payload["errors"].([]any); ok && len(list) > 0 {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, "; ")
		}
		for _, key := range []string{"message", "error", "details"} {
			if detail, ok := payload[key].(string); ok && detail != "" {
				return detail
			}
		}
	}
	if fallback != "" {
		if len(fallback) > 512 {
			fallback = fallback[:512]
		}
		return fallback
	}
	return "request failed"
}
