package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/credex/core"
	"github.com/layer-3/credex/ports"
	"github.com/sirupsen/logrus"
)

// SuccessCode is the envelope code the identity service returns on success
const SuccessCode = 80000000

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxBodyBytes  = 1 << 20
	loginPathSuffix      = "login"
	principalFieldSuffix = "Did"
)

var logger = logrus.WithField("component", "authclient")

// HTTPDoer is the subset of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Envelope is the response shape of the login endpoint
type Envelope struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg,omitempty"`
	Data EnvelopeData `json:"data"`
}

// EnvelopeData carries the minted token
type EnvelopeData struct {
	Token string `json:"token"`
}

// Client implements ports.TokenFetcher over HTTP
type Client struct {
	doer           HTTPDoer
	defaultHeaders map[string]string
	maxBodyBytes   int64
}

// Option configures a Client
type Option func(*Client)

// WithHeader adds a header sent with every login call
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithMaxBodyBytes caps how much of the response body is read
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// NewClient creates a token exchange client. A nil doer gets an
// *http.Client with a 30 second timeout.
func NewClient(doer HTTPDoer, opts ...Option) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultTimeout}
	}

	c := &Client{
		doer:           doer,
		defaultHeaders: map[string]string{},
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchToken performs one login call. It never retries and never panics;
// every failure is returned as an error wrapping core.ErrAuth.
func (c *Client) FetchToken(ctx context.Context, req ports.TokenRequest) (string, error) {
	token, err := c.fetch(ctx, req)
	if err != nil {
		logger.Warnf("token exchange for %s %s failed: %v", req.Role, req.PrincipalDID, err)
		return "", err
	}
	return token, nil
}

func (c *Client) fetch(ctx context.Context, req ports.TokenRequest) (string, error) {
	if !req.Role.CanLogin() {
		return "", fmt.Errorf("role %q cannot log in: %w", req.Role, core.ErrAuth)
	}

	body, err := json.Marshal(map[string]string{
		string(req.Role) + principalFieldSuffix: req.PrincipalDID,
		"authToken":                             req.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode login body: %v: %w", err, core.ErrAuth)
	}

	url := strings.TrimRight(req.Endpoint, "/") + "/" + string(req.Role) + "/" + loginPathSuffix
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %v: %w", err, core.ErrAuth)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("accept", "*/*")
	for key, value := range c.defaultHeaders {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("login call failed: %v: %w", err, core.ErrAuth)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %v: %w", err, core.ErrAuth)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return "", fmt.Errorf("login response exceeds %d bytes: %w", c.maxBodyBytes, core.ErrAuth)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("login call failed with status %d: %w", resp.StatusCode, core.ErrAuth)
	}

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("malformed login response: %v: %w", err, core.ErrAuth)
	}

	if envelope.Code != SuccessCode || envelope.Data.Token == "" {
		msg := envelope.Msg
		if msg == "" {
			msg = "Unknown error"
		}
		return "", fmt.Errorf("login rejected with code %d (%s): %w", envelope.Code, msg, core.ErrAuth)
	}

	return envelope.Data.Token, nil
}

var _ ports.TokenFetcher = (*Client)(nil)
