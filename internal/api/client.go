// internal/api/client.go
// Package api is the baseline client for the backends a suite exercises.
// Construction is gated by the pre-flight circuit breaker; every request is
// traceable through an X-Request-ID correlation header.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/preflight"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderProjectContext = "X-Project-Context"

	// maxEvidenceBody caps how much of a failed response body is logged.
	maxEvidenceBody = 8 << 10
)

// Gate is the pre-flight check run once when a client is built.
type Gate interface {
	Gate(ctx context.Context, endpoint string) preflight.HealthCheckResult
}

// Client talks to one configured backend project.
type Client struct {
	project    config.ProjectConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	sla        time.Duration
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for the named project. A project without a base
// URI is a *config.ConfigError. When gate is non-nil the backend is probed
// before the client exists; a tripped breaker aborts the process.
func NewClient(ctx context.Context, cfg config.APIConfig, project string, gate Gate, logger *zap.Logger, opts ...Option) (*Client, error) {
	p, err := cfg.Project(project)
	if err != nil {
		return nil, err
	}

	if gate != nil {
		if res := gate.Gate(ctx, p.HealthURL()); !res.Healthy() {
			return nil, res.Err
		}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		project:    p,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		sla:        cfg.SLA,
		logger:     logger.Named("api").With(zap.String("project", p.Name)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("API client ready.", zap.String("base_uri", p.BaseURI), zap.Duration("sla", c.sla))
	return c, nil
}

// Project returns the project configuration the client was built from.
func (c *Client) Project() config.ProjectConfig { return c.project }

// Endpoint resolves a configured endpoint path by key.
func (c *Client) Endpoint(key string) (string, error) {
	return c.project.Endpoint(key)
}

// Request describes one call. Body, when set, is encoded as JSON.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	Path      string
	Status    int
	Header    http.Header
	Body      []byte
	Elapsed   time.Duration
	RequestID string
}

// JSON extracts a value from the body with a gjson path.
func (r *Response) JSON(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Get issues a GET against path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Do sends req. Transport failures are returned as errors; HTTP error
// statuses are not, use Check for those.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target, err := c.url(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s: %w", req.Path, err)
		}
		body = bytes.NewReader(buf)
		c.LogPayload(req.Method+" "+req.Path, req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", req.Path, err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	httpReq.Header.Set(HeaderProjectContext, c.project.Name)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Request failed.", zap.String("path", req.Path), zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.Path, err)
	}

	// Prefer the id the server echoes back, if any.
	if echoed := resp.Header.Get(HeaderRequestID); echoed != "" {
		requestID = echoed
	}

	c.logger.Debug("Response received.",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
		zap.String("request_id", requestID))

	return &Response{
		Path:      req.Path,
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      data,
		Elapsed:   elapsed,
		RequestID: requestID,
	}, nil
}

// Check applies the baseline expectations to resp. Any status of 400 or more
// is logged with its correlation id and body; 5xx is a *ServerError. A
// response slower than the SLA is an *SLAError.
func (c *Client) Check(resp *Response) error {
	if resp.Status >= http.StatusBadRequest {
		c.logger.Error("API failure.",
			zap.String("path", resp.Path),
			zap.Int("status", resp.Status),
			zap.String("request_id", resp.RequestID),
			zap.String("body", evidence(resp.Body)))
		if resp.Status >= http.StatusInternalServerError {
			return &ServerError{Path: resp.Path, Status: resp.Status, RequestID: resp.RequestID}
		}
	}
	if c.sla > 0 && resp.Elapsed > c.sla {
		c.logger.Warn("Response exceeded SLA.", zap.String("path", resp.Path), zap.Duration("elapsed", resp.Elapsed), zap.Duration("sla", c.sla))
		return &SLAError{Path: resp.Path, Elapsed: resp.Elapsed, SLA: c.sla}
	}
	return nil
}

// LogPayload writes an indented rendering of payload at debug level.
func (c *Client) LogPayload(description string, payload interface{}) {
	if ce := c.logger.Check(zap.DebugLevel, "Payload."); ce != nil {
		pretty, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			c.logger.Error("Payload could not be serialized.", zap.String("description", description), zap.Error(err))
			return
		}
		ce.Write(zap.String("description", description), zap.String("payload", string(pretty)))
	}
}

func (c *Client) url(path string, query url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.project.BaseURI, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base uri %q: %w", c.project.BaseURI, err)
	}
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	u := base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// evidence renders a body for logs: indented when it is JSON, truncated when large.
func evidence(body []byte) string {
	if len(body) > maxEvidenceBody {
		body = body[:maxEvidenceBody]
	}
	if gjson.ValidBytes(body) {
		var v interface{}
		if err := json.Unmarshal(body, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				return string(pretty)
			}
		}
	}
	return string(body)
}
