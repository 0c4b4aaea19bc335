package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/halfpace/internal/app"
)

// ErrRemote marks a non-success answer from the server.
var ErrRemote = errors.New("server rejected the prediction")

const maxResponseBytes = 1 << 20

// HTTPClient calls a halfpace server.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type predictRequest struct {
	Description string `json:"description"`
	APIKey      string `json:"api_key,omitempty"`
}

// remoteError mirrors the server's error body.
type remoteError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Labels  []string `json:"labels,omitempty"`
}

func (e *remoteError) Error() string {
	if len(e.Labels) > 0 {
		return fmt.Sprintf("Brakuje danych: %s (%s)", strings.Join(e.Labels, ", "), e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Predict posts text to /predict and decodes the result.
func (c *HTTPClient) Predict(ctx context.Context, text, apiKey string) (service.Prediction, error) {
	var p service.Prediction

	body, err := json.Marshal(predictRequest{Description: text, APIKey: apiKey})
	if err != nil {
		return p, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return p, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return p, fmt.Errorf("failed to call %s: %w", c.baseURL, err)
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return p, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		re := &remoteError{}
		if jerr := json.Unmarshal(data, re); jerr != nil || re.Code == "" {
			re = &remoteError{Code: resp.Status, Message: strings.TrimSpace(string(data))}
		}
		return p, fmt.Errorf("%w: %w", ErrRemote, re)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return p, nil
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}
