package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/domain"
)

// APIError represents a non-2xx API response
type APIError struct {
	Message    string `json:"message"`
	Details    string `json:"details"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("API error (%d): %s - %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// JSON sends in as a JSON body (when non-nil) and decodes a 2xx response into
// out (when non-nil). Non-2xx responses return an *APIError alongside the
// status code.
func (g *Gateway) JSON(ctx context.Context, method, target string, in, out interface{}) (int, error) {
	opts := Options{Method: method}
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return 0, domain.NewInternalError("ENCODE_FAILED", "Failed to marshal request body", err)
		}
		opts.Body = bytes.NewReader(jsonData)
	}
	opts.Header = http.Header{"Accept": []string{"application/json"}}

	resp, err := g.Request(ctx, target, opts)
	if err != nil {
		return 0, err
	}

	return resp.StatusCode, handleResponse(resp, out)
}

// handleResponse processes the HTTP response and handles errors
// Note: This function automatically closes the response body
//
//nolint:bodyclose // Response body is closed by this function
func handleResponse(resp *http.Response, result interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewTransientNetworkError("RESPONSE_READ_FAILED", "Failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiError := &APIError{
			StatusCode: resp.StatusCode,
		}

		var errorResp map[string]interface{}
		if json.Unmarshal(body, &errorResp) == nil {
			for _, key := range []string{"detail", "error", "message"} {
				if msg, ok := errorResp[key].(string); ok {
					apiError.Message = msg
					break
				}
			}
			if details, ok := errorResp["details"].(string); ok {
				apiError.Details = details
			} else if code, ok := errorResp["code"].(string); ok {
				apiError.Details = code
			}
		}

		if apiError.Message == "" {
			apiError.Message = http.StatusText(resp.StatusCode)
		}

		return apiError
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return domain.NewInternalError("MALFORMED_RESPONSE", "Failed to unmarshal response", err)
		}
	}

	return nil
}
