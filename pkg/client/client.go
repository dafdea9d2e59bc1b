package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arakoodev/cliscale/pkg/signer"
	"github.com/arakoodev/cliscale/pkg/types"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the Session Controller's address, e.g. "http://controller:8080".
	BaseURL string

	// APIKey is sent as a bearer token on every request that requires
	// admission. Leave empty for read-only calls like JWKS.
	APIKey string

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client is a thin wrapper over the Session Controller's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a Client from config, defaulting HTTPClient when unset.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{baseURL: baseURL, apiKey: config.APIKey, httpClient: httpClient}, nil
}

// apiError mirrors the JSON error body the controller writes via
// pkg/httpapi's writeError.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("client: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// CreateSession submits a new session request to POST /api/sessions.
func (c *Client) CreateSession(ctx context.Context, req *types.CreateSessionRequest) (*types.CreateSessionResponse, error) {
	var resp types.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession fetches GET /api/sessions/{id}.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*types.SessionSummary, error) {
	var resp types.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JWKS fetches the controller's published key set from
// /.well-known/jwks.json.
func (c *Client) JWKS(ctx context.Context) (*signer.JWKSDocument, error) {
	var doc signer.JWKSDocument
	if err := c.do(ctx, http.MethodGet, "/.well-known/jwks.json", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
