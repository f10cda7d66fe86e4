// Package client provides an HTTP client for the respond dashboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/respond/pkg/anomaly"
	"github.com/HatiCode/respond/pkg/dataset"
	"github.com/HatiCode/respond/pkg/forecast"
)

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to the dashboard API.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the API at baseURL (e.g. "http://localhost:8000").
// A default timeout of 5 seconds is used for HTTP requests.
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 5*time.Second)
}

// NewWithTimeout creates a client with a custom request timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ModelInfo describes the model the server is serving.
type ModelInfo struct {
	Model     string    `json:"model"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unhealthy: %q", resp.Status)
	}
	return nil
}

// Metrics returns the last n monthly aggregates.
func (c *Client) Metrics(ctx context.Context, n int) ([]dataset.Monthly, error) {
	q := url.Values{}
	q.Set("n", strconv.Itoa(n))
	var resp struct {
		Data []dataset.Monthly `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/metrics", q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Forecast returns monthly lead forecasts. An empty end uses the server default;
// otherwise end is a month label such as "2025-12".
func (c *Client) Forecast(ctx context.Context, end string) ([]forecast.MonthForecast, error) {
	q := url.Values{}
	if end != "" {
		q.Set("end", end)
	}
	var resp struct {
		Forecast []forecast.MonthForecast `json:"forecast_monthly"`
	}
	if err := c.do(ctx, http.MethodGet, "/forecast", q, &resp); err != nil {
		return nil, err
	}
	return resp.Forecast, nil
}

// Anomalies returns the months whose metric lies more than k standard
// deviations from the mean.
func (c *Client) Anomalies(ctx context.Context, metric string, k float64) ([]anomaly.Record, error) {
	q := url.Values{}
	q.Set("metric", metric)
	q.Set("k", strconv.FormatFloat(k, 'f', -1, 64))
	var resp struct {
		Anomalies []anomaly.Record `json:"anomalies"`
	}
	if err := c.do(ctx, http.MethodGet, "/anomalies", q, &resp); err != nil {
		return nil, err
	}
	return resp.Anomalies, nil
}

// ReloadModel asks the server to reload its model artifact from disk.
func (c *Client) ReloadModel(ctx context.Context) (*ModelInfo, error) {
	var info ModelInfo
	if err := c.do(ctx, http.MethodPost, "/model/reload", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
