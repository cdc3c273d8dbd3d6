// Package intel talks to the Sigil cloud API: authentication, threat
// fingerprint lookups, and community signature distribution. Every
// failure here degrades to an offline scan; nothing in this package
// may abort the caller.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client is the Sigil cloud API client. It is safe for concurrent
// use; the token may be swapped while requests are in flight.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// ClientConfig holds the client configuration.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration // HTTP client timeout (default: 30s)
	HTTPClient *http.Client  // Optional custom HTTP client
}

// NewClient creates a new cloud API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is an error response from the cloud API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error (status %d): %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// LoginRequest is the credential payload for /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the token grant returned by /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user,omitempty"`
}

// User identifies the authenticated account.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Plan  string `json:"plan,omitempty"`
}

// ThreatMatch is a positive hit from the threat-lookup endpoint.
type ThreatMatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
}

// Signature is one remotely distributed detection rule.
type Signature struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Weight      int    `json:"weight"`
}

// Login authenticates with email and password and sets the token for
// future requests.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := LoginRequest{Email: email, Password: password}

	var resp LoginResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken != "" {
		c.SetToken(resp.AccessToken)
	}
	return &resp, nil
}

// LookupThreat queries the threat endpoint for a directory
// fingerprint. A nil match with nil error means the fingerprint is
// unknown to the cloud.
func (c *Client) LookupThreat(ctx context.Context, hash string) (*ThreatMatch, error) {
	var match ThreatMatch
	err := c.doRequest(ctx, http.MethodGet, "/v1/threat/"+hash, nil, &match)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if match.Name == "" {
		return nil, nil
	}
	return &match, nil
}

// ThreatReport is the community submission payload for /v1/report.
type ThreatReport struct {
	Hash        string `json:"hash"`
	ThreatType  string `json:"threat_type"`
	Description string `json:"description"`
}

// ThreatReportReceipt acknowledges a community threat submission.
type ThreatReportReceipt struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// SubmitThreat reports a malicious fingerprint to the community feed.
func (c *Client) SubmitThreat(ctx context.Context, rep ThreatReport) (*ThreatReportReceipt, error) {
	var receipt ThreatReportReceipt
	if err := c.doRequest(ctx, http.MethodPost, "/v1/report", rep, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FetchSignatures downloads the community signature set.
func (c *Client) FetchSignatures(ctx context.Context) ([]Signature, error) {
	var resp struct {
		Signatures []Signature `json:"signatures"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/signatures", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Signatures, nil
}

// doRequest performs an HTTP request with proper error handling.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
