// Package deploy keeps deployed function instances aligned with the
// top-ranked region of each schedule. The deployment tooling itself is an
// external collaborator reached over a small REST contract; this package
// owns the redeploy decisions and the deployment-state bookkeeping.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Status is the remote service state reported by the deploy contract.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusDeploying Status = "DEPLOYING"
	StatusFailed    Status = "FAILED"
	StatusNotFound  Status = "NOT_FOUND"
)

// Request carries everything the deploy contract needs to build and roll
// out one function.
type Request struct {
	Name           string `json:"function_name"`
	Code           string `json:"code"`
	Region         string `json:"region"`
	Runtime        string `json:"runtime"`
	MemoryMB       int    `json:"memory_mb"`
	CPU            string `json:"cpu"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	EntryPoint     string `json:"entry_point"`
	Requirements   string `json:"requirements"`
}

// Result is the deploy contract's answer to a deployment request.
type Result struct {
	Success     bool   `json:"success"`
	FunctionURL string `json:"function_url"`
	Status      Status `json:"status"`
	ImageRef    string `json:"image_ref,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StatusResult reports the current state of a deployed function.
type StatusResult struct {
	Exists      bool   `json:"exists"`
	Status      Status `json:"status"`
	FunctionURL string `json:"function_url"`
	LastUpdated string `json:"last_updated"`
}

// InvokeResult is the outcome of a synchronous test invocation.
type InvokeResult struct {
	Success         bool            `json:"success"`
	StatusCode      int             `json:"status_code"`
	Response        json.RawMessage `json:"response"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
}

// Deployer is the external deploy contract.
type Deployer interface {
	DeployFunction(ctx context.Context, req Request) (Result, error)
	GetFunctionStatus(ctx context.Context, name, region string) (StatusResult, error)
	DeleteFunction(ctx context.Context, name, region string) error
	InvokeFunction(ctx context.Context, functionURL string, payload any) (InvokeResult, error)
}

// HTTPClient talks to the deployment server over its REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a deploy-contract client. Deploys build container
// images, so the timeout should be generous.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploy server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deploy server returned %d: %s", resp.StatusCode, detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// DeployFunction implements Deployer.
func (c *HTTPClient) DeployFunction(ctx context.Context, req Request) (Result, error) {
	c.logger.Info("deploying function", "function", req.Name, "region", req.Region)
	var result Result
	if err := c.do(ctx, http.MethodPost, "/functions", req, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// GetFunctionStatus implements Deployer.
func (c *HTTPClient) GetFunctionStatus(ctx context.Context, name, region string) (StatusResult, error) {
	path := fmt.Sprintf("/functions/%s/status?%s", url.PathEscape(name), url.Values{"region": {region}}.Encode())
	var result StatusResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return StatusResult{}, err
	}
	return result, nil
}

// DeleteFunction implements Deployer.
func (c *HTTPClient) DeleteFunction(ctx context.Context, name, region string) error {
	path := fmt.Sprintf("/functions/%s?%s", url.PathEscape(name), url.Values{"region": {region}}.Encode())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// InvokeFunction implements Deployer.
func (c *HTTPClient) InvokeFunction(ctx context.Context, functionURL string, payload any) (InvokeResult, error) {
	var result InvokeResult
	if err := c.do(ctx, http.MethodPost, "/invoke", map[string]any{
		"function_url": functionURL,
		"payload":      payload,
	}, &result); err != nil {
		return InvokeResult{}, err
	}
	return result, nil
}
