package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/surveyops/internal/campaign"
	"github.com/roach88/surveyops/internal/queue"
)

// Payload is the body of every email queue task.
type Payload struct {
	Template         string         `json:"template"`
	Recipient        string         `json:"recipient"`
	SubstitutionData map[string]any `json:"substitutionData,omitempty"`
}

// Policy decides how provider rejections affect the task.
type Policy struct {
	// TreatProviderErrorAsFailure returns provider rejections to the queue
	// so they are retried. When false they are logged and the task is
	// consumed.
	TreatProviderErrorAsFailure bool
}

// Transmitter sends one transmission. *Client implements it.
type Transmitter interface {
	Send(ctx context.Context, t Transmission) error
}

// Sender executes the email queues.
type Sender struct {
	client Transmitter
	policy Policy
}

// NewSender creates the email executor.
func NewSender(client Transmitter, policy Policy) *Sender {
	return &Sender{client: client, policy: policy}
}

// Handle sends the email described by the task payload.
func (s *Sender) Handle(ctx context.Context, task queue.Task) error {
	name := queue.TaskName(ctx)

	var p Payload
	if err := task.Decode(&p); err != nil {
		return queue.Permanent(fmt.Errorf("send email: %w", err))
	}
	if p.Recipient == "" {
		slog.Warn("email skipped: no recipient", "task", name, "template", p.Template)
		return nil
	}
	if p.Template == "" {
		slog.Warn("email skipped: no template", "task", name, "recipient", p.Recipient)
		return nil
	}

	t := Transmission{
		TemplateID:       p.Template,
		Recipient:        p.Recipient,
		SubstitutionData: p.SubstitutionData,
		CampaignID:       CampaignID(p.SubstitutionData),
	}

	err := s.client.Send(ctx, t)
	if err == nil {
		slog.Info("email sent", "task", name, "template", t.TemplateID, "campaign", t.CampaignID)
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) && !s.policy.TreatProviderErrorAsFailure {
		slog.Error("email provider rejected transmission",
			"task", name,
			"template", t.TemplateID,
			"status", pe.StatusCode,
			"error", pe,
		)
		return nil
	}
	return fmt.Errorf("send email %s: %w", t.TemplateID, err)
}

// CampaignID derives the campaign id from substitutionData.event, or ""
// when the data does not describe an event.
func CampaignID(data map[string]any) string {
	ev, ok := data["event"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := ev["id"].(string)
	partner, _ := ev["partnerEventId"].(string)
	if id == "" && partner == "" {
		return ""
	}
	return campaign.ID(id, partner)
}
