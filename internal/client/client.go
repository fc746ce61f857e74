// Package client is a Go SDK for the stamp verification server.
package client

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/smartstamp/internal/credential"
	"github.com/atinyakov/smartstamp/internal/fingerprint"
)

const (
	apiVerify    = "/api/v1/verify"
	apiPublicKey = "/api/v1/public-key"
)

// Client calls the verification API on behalf of one API client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a Client for the server at baseURL. httpClient may be nil.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// VerifyResponse is the decoded body of a successful verification.
type VerifyResponse struct {
	Status   string  `json:"status"`
	StampID  string  `json:"stamp_id"`
	JWTToken string  `json:"jwt_token"`
	MSE      float64 `json:"mse"`
	MaxError float64 `json:"max_error"`
	Message  string  `json:"message"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	// Status is the "status" field of a JSON error body, if any.
	Status  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Verify submits five touch points and returns the server's verdict.
// Rejections come back as *APIError.
func (c *Client) Verify(ctx context.Context, points []fingerprint.Point) (*VerifyResponse, error) {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	b, err := json.Marshal(map[string]any{"points": pairs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiVerify, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var out VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// PublicKey fetches the server's token verification key.
func (c *Client) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPublicKey, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch public key failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return credential.ParsePublicKeyPEM(data)
}

// readAPIError builds an APIError from a JSON error body or, failing that,
// from the raw text body.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Status = body.Status
		apiErr.Message = body.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
