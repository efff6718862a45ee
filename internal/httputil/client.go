// Package httputil provides HTTP client and response utilities for
// service-to-service communication.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Header names used for contract-service authentication.
const (
	ServiceKeyHeader    = "X-Service-Key"
	ServiceSecretHeader = "X-Service-Secret"
)

// ServiceClient is an authenticated HTTP client for calls to downstream
// platform services. It attaches the configured service credentials to every
// request and retries transient failures a bounded number of times.
type ServiceClient struct {
	httpClient    *http.Client
	baseURL       string
	serviceKey    string
	serviceSecret string
	maxRetries    int
	retryBackoff  time.Duration
}

// ServiceClientConfig configures the service client.
type ServiceClientConfig struct {
	BaseURL       string
	ServiceKey    string
	ServiceSecret string
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// NewServiceClient creates a new authenticated service client.
func NewServiceClient(cfg ServiceClientConfig) *ServiceClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = 250 * time.Millisecond
	}

	return &ServiceClient{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey:    cfg.ServiceKey,
		serviceSecret: cfg.ServiceSecret,
		maxRetries:    maxRetries,
		retryBackoff:  backoff,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *ServiceClient) BaseURL() string { return c.baseURL }

// Do executes an HTTP request with service authentication and bounded retry
// on transient (5xx and 429) responses.
func (c *ServiceClient) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	return c.doWithRetry(ctx, method, path, body, 0)
}

func (c *ServiceClient) doWithRetry(ctx context.Context, method, path string, body interface{}, attempt int) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		req.Header.Set(ServiceKeyHeader, c.serviceKey)
	}
	if c.serviceSecret != "" {
		req.Header.Set(ServiceSecretHeader, c.serviceSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryBackoff<<attempt); waitErr != nil {
				return nil, waitErr
			}
			return c.doWithRetry(ctx, method, path, body, attempt+1)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests) && attempt < c.maxRetries {
		resp.Body.Close()
		if waitErr := sleepContext(ctx, c.retryBackoff<<attempt); waitErr != nil {
			return nil, waitErr
		}
		return c.doWithRetry(ctx, method, path, body, attempt+1)
	}

	return resp, nil
}

// Get performs a GET request.
func (c *ServiceClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *ServiceClient) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with JSON body.
func (c *ServiceClient) Put(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *ServiceClient) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// DecodeResponse decodes a JSON response into the target struct. Responses
// with a 4xx/5xx status are returned as errors carrying the body text.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if target == nil {
		_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20))
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
