// Package issuer talks to the remote credential issuer: the token pair
// exchange and the access credential refresh.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

const (
	// TokenPath exchanges username and password for a credential pair.
	TokenPath = "/api/token/"
	// RefreshPath exchanges a refresh credential for a new access credential.
	RefreshPath = "/api/token/refresh/"
)

// maxResponseBytes bounds how much of an issuer response is read.
const maxResponseBytes = 1 << 20

// Pair is the credential pair returned by a successful login exchange.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Client calls the issuer endpoints. It never attaches a bearer credential.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient creates a new issuer client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ObtainPair exchanges username and password for a credential pair.
// Any non-2xx status is reported as invalid credentials.
func (c *Client) ObtainPair(ctx context.Context, username, password string) (*Pair, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	status, data, err := c.post(ctx, TokenPath, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, domain.NewInvalidCredentialsError(status)
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, domain.NewInternalError("MALFORMED_TOKEN_RESPONSE", "Failed to decode token response", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, domain.NewInternalError("MALFORMED_TOKEN_RESPONSE", "Token response is missing a credential", nil)
	}

	return &pair, nil
}

// RefreshAccess exchanges a refresh credential for a new access credential.
// A non-2xx status means the refresh credential is no longer accepted.
func (c *Client) RefreshAccess(ctx context.Context, refresh string) (string, error) {
	body := map[string]string{"refresh": refresh}

	status, data, err := c.post(ctx, RefreshPath, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", domain.NewSessionExpiredError("REFRESH_REJECTED", "Refresh credential rejected", status)
	}

	var resp struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", domain.NewInternalError("MALFORMED_REFRESH_RESPONSE", "Failed to decode refresh response", err)
	}
	if resp.Access == "" {
		return "", domain.NewInternalError("MALFORMED_REFRESH_RESPONSE", "Refresh response is missing access", nil)
	}

	return resp.Access, nil
}

// post sends a JSON body and returns the status and raw response body.
func (c *Client) post(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, nil, domain.NewInternalError("ENCODE_FAILED", "Failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, domain.NewInternalError("REQUEST_BUILD_FAILED", "Failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, domain.NewTransientNetworkError("ISSUER_UNREACHABLE", fmt.Sprintf("POST %s failed", path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, domain.NewTransientNetworkError("ISSUER_READ_FAILED", "Failed to read issuer response", err)
	}

	return resp.StatusCode, data, nil
}
