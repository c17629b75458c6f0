package toolgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// backendRequest is the wire contract with remote tool backends
type backendRequest struct {
	ToolName  string                 `json:"toolName"`
	Arguments map[string]interface{} `json:"arguments"`
}

// HTTPBackend invokes remote tool procedures over HTTP. Each tool maps
// to POST {baseURL}/{toolName} with a JSON body and a JSON Result back.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend client
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Handler returns a tool Handler bound to the named remote procedure
func (b *HTTPBackend) Handler(toolName string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (Result, error) {
		body, err := json.Marshal(backendRequest{ToolName: toolName, Arguments: args})
		if err != nil {
			return Result{}, fmt.Errorf("failed to marshal tool request: %w", err)
		}

		url := fmt.Sprintf("%s/%s", b.baseURL, toolName)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return Result{}, fmt.Errorf("failed to build tool request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			return Result{}, fmt.Errorf("tool backend unreachable: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Result{}, fmt.Errorf("tool backend returned status %d", resp.StatusCode)
		}

		var result Result
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return Result{}, fmt.Errorf("failed to decode tool response: %w", err)
		}
		if result.Status == "" {
			return Result{}, fmt.Errorf("tool backend returned no status")
		}

		return result, nil
	}
}
