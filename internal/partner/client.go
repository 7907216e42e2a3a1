package partner

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

// DefaultTimeout bounds one partner API call.
const DefaultTimeout = 30 * time.Second

// API is the partner surface used by Uploader and Batcher. *Client
// implements it.
type API interface {
	UploadSurveys(ctx context.Context, records []SurveyRecord) error
	InsertVehicles(ctx context.Context, records []VehicleRecord) error
}

// APIError is a non-2xx answer from the partner API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("partner %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("partner %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client calls the partner survey API with a bearer token.
// Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a partner client. A nil httpClient gets a client with
// DefaultTimeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// UploadSurveys posts survey records to /survey/upload.
func (c *Client) UploadSurveys(ctx context.Context, records []SurveyRecord) error {
	return c.post(ctx, "/survey/upload", map[string]any{"surveys": records})
}

// InsertVehicles posts vehicle-of-interest records to
// /survey/insert/vehicles.
func (c *Client) InsertVehicles(ctx context.Context, records []VehicleRecord) error {
	return c.post(ctx, "/survey/insert/vehicles", map[string]any{"vehicles": records})
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("partner %s: marshal: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("partner %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("partner %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return nil
}
