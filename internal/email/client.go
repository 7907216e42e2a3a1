// Package email sends templated transactional email through the provider's
// transmissions API and executes the email queues.
package email

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
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 15 * time.Second

// Transmission is one templated message to one recipient.
type Transmission struct {
	TemplateID       string
	Recipient        string
	SubstitutionData map[string]any
	CampaignID       string
}

// ProviderErrorDetail is one entry of the provider's error list.
type ProviderErrorDetail struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// ProviderError is a non-2xx answer from the provider. The request reached
// the provider; whether that fails the task is decided by Policy.
type ProviderError struct {
	StatusCode int
	Errors     []ProviderErrorDetail
	Body       string
}

func (e *ProviderError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, 0, len(e.Errors))
		for _, d := range e.Errors {
			msgs = append(msgs, d.Message)
		}
		return fmt.Sprintf("email provider: status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("email provider: status %d", e.StatusCode)
}

// IsProviderError reports whether err carries a provider rejection.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// Client talks to the transmissions endpoint. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a provider client. A nil httpClient gets a client with
// DefaultTimeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type transmissionRequest struct {
	Content    transmissionContent `json:"content"`
	Recipients []recipient         `json:"recipients"`
	CampaignID string              `json:"campaign_id,omitempty"`
}

type transmissionContent struct {
	TemplateID string `json:"template_id"`
}

type recipient struct {
	Address          recipientAddress `json:"address"`
	SubstitutionData map[string]any   `json:"substitution_data,omitempty"`
}

type recipientAddress struct {
	Email string `json:"email"`
}

// Send posts one transmission. Transport failures are returned wrapped;
// provider rejections are returned as *ProviderError.
func (c *Client) Send(ctx context.Context, t Transmission) error {
	body, err := json.Marshal(transmissionRequest{
		Content: transmissionContent{TemplateID: t.TemplateID},
		Recipients: []recipient{{
			Address:          recipientAddress{Email: t.Recipient},
			SubstitutionData: t.SubstitutionData,
		}},
		CampaignID: t.CampaignID,
	})
	if err != nil {
		return fmt.Errorf("send %s: marshal: %w", t.TemplateID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send %s: build request: %w", t.TemplateID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", t.TemplateID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("send %s: read response: %w", t.TemplateID, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	pe := &ProviderError{StatusCode: resp.StatusCode, Body: string(raw)}
	var decoded struct {
		Errors []ProviderErrorDetail `json:"errors"`
	}
	if json.Unmarshal(raw, &decoded) == nil {
		pe.Errors = decoded.Errors
	}
	return pe
}
