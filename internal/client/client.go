// Package client is the request gateway to the ATM banking API. It attaches
// the session's access credential to every call and, when the backend answers
// 401, refreshes the credential once and retries the call once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"atm-client/internal/session"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const maxResponseBytes = 16 << 20

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Store
	refresh singleflight.Group
	log     *log.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

func NewClient(baseURL string, store *session.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("API URL must be http or https, got %q", baseURL)
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		session: store,
		log:     log.NewWithOptions(os.Stderr, log.Options{Prefix: "gateway"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session exposes the credential store the client authenticates with.
func (c *Client) Session() *session.Store { return c.session }

type request struct {
	method    string
	endpoint  string
	body      []byte
	accept    string
	header    http.Header
	anonymous bool
	// refusesWith401 marks endpoints that answer 401 for a wrong PIN. A 401
	// that survives a successful refresh is then a refusal, not an expired
	// session.
	refusesWith401 bool
}

type response struct {
	status int
	body   []byte
}

// Call performs one logical request: body is JSON-encoded when non-nil and
// a 2xx JSON response is decoded into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method, endpoint string, body, out any) error {
	r, err := newRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	return c.callJSON(ctx, r, out)
}

func newRequest(method, endpoint string, body any) (*request, error) {
	r := &request{method: method, endpoint: endpoint, accept: "application/json", header: http.Header{}}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		r.body = payload
	}
	return r, nil
}

func (c *Client) callJSON(ctx context.Context, r *request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	if err := checkEnvelope(resp); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, r.method, r.endpoint, err)
	}
	return nil
}

// checkEnvelope turns {"success": false, "message": ...} into an APIError even
// when the status code says otherwise.
func checkEnvelope(resp *response) error {
	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var env struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return &APIError{Status: resp.status, Code: env.Code, Message: msg}
	}
	return nil
}

// send runs the request and, on a 401, at most one refresh followed by at
// most one retry. It never retries on any other outcome.
func (c *Client) send(ctx context.Context, r *request) (*response, error) {
	if r.header.Get("X-Request-ID") == "" {
		r.header.Set("X-Request-ID", uuid.NewString())
	}

	access := ""
	if !r.anonymous {
		access = c.session.Access()
	}
	resp, err := c.do(ctx, r, access)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusUnauthorized {
		return resp, statusError(resp)
	}

	original := newAPIError(resp.status, resp.body)
	if r.anonymous {
		return nil, original
	}
	if access == "" {
		return nil, &AuthError{Reason: "not signed in", Err: original}
	}

	next, err := c.renewAccess(ctx, access)
	if err != nil {
		c.log.Warn("session could not be renewed", "endpoint", r.endpoint, "err", err)
		c.expire()
		return nil, &AuthError{Reason: "credential refresh failed", Err: original}
	}

	resp, err = c.do(ctx, r, next)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized && r.refusesWith401 {
		return nil, newAPIError(resp.status, resp.body)
	}
	if resp.status == http.StatusUnauthorized {
		c.log.Warn("request rejected after refresh", "endpoint", r.endpoint)
		c.expire()
		return nil, &AuthError{Reason: "rejected after refresh", Err: newAPIError(resp.status, resp.body)}
	}
	return resp, statusError(resp)
}

func statusError(resp *response) error {
	if resp.status >= 200 && resp.status < 300 {
		return nil
	}
	return newAPIError(resp.status, resp.body)
}

func (c *Client) do(ctx context.Context, r *request, access string) (*response, error) {
	target := c.baseURL + r.endpoint

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", r.endpoint, err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", r.accept)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: r.method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Op: r.method, URL: target, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.log.Debug("api call", "method", r.method, "endpoint", r.endpoint, "status", resp.StatusCode,
		"request_id", r.header.Get("X-Request-ID"), "took", time.Since(start))
	return &response{status: resp.StatusCode, body: data}, nil
}

// renewAccess returns an access credential to retry with. If another call
// already replaced the credential that was rejected, that replacement is
// used as is. Otherwise concurrent callers share a single refresh.
func (c *Client) renewAccess(ctx context.Context, rejected string) (string, error) {
	creds := c.session.Credentials()
	if creds.Access != "" && creds.Access != rejected {
		return creds.Access, nil
	}
	if creds.Refresh == "" {
		return "", errNoRefreshCredential
	}

	v, err, shared := c.refresh.Do(creds.Refresh, func() (any, error) {
		return c.refreshUnlessReplaced(context.WithoutCancel(ctx), rejected, creds.Refresh)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.log.Debug("joined in-flight refresh")
	}
	return v.(string), nil
}

// refreshUnlessReplaced runs inside the single-flight group. A refresh that
// finished between the caller's snapshot and joining the group has already
// rotated the refresh credential, so its access credential is reused.
func (c *Client) refreshUnlessReplaced(ctx context.Context, rejected, refreshToken string) (string, error) {
	if current := c.session.Access(); current != "" && current != rejected {
		return current, nil
	}
	return c.refreshCredentials(ctx, refreshToken)
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message"`
}

func (c *Client) refreshCredentials(ctx context.Context, refreshToken string) (string, error) {
	r := &request{
		method:   http.MethodPost,
		endpoint: "/auth/refresh",
		accept:   "application/json",
		header:   http.Header{"X-Request-Id": {uuid.NewString()}},
	}
	resp, err := c.do(ctx, r, refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}
	if err := statusError(resp); err != nil {
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}

	var out refreshResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("%w: refresh: %v", ErrMalformedResponse, err)
	}
	if !out.Success || out.Token == "" {
		return "", fmt.Errorf("failed to refresh session: %s", out.Message)
	}

	nextRefresh := out.RefreshToken
	if nextRefresh == "" {
		nextRefresh = refreshToken
	}
	if err := c.session.SetCredentials(out.Token, nextRefresh); err != nil {
		c.log.Warn("refreshed credentials were not persisted", "err", err)
	}
	c.log.Info("access credential refreshed")
	return out.Token, nil
}

func (c *Client) expire() {
	if err := c.session.Clear(); err != nil {
		c.log.Warn("failed to clear session", "err", err)
	}
}
