package email

import (
	"time"

	"github.com/roach88/surveyops/internal/model"
)

// SubstitutionData builds the template variables for an event email:
// customData entries first, then "event" and "response", then extra.
func SubstitutionData(event model.Event, resp model.Response, custom, extra map[string]any) map[string]any {
	data := make(map[string]any, len(custom)+len(extra)+2)
	for k, v := range custom {
		data[k] = v
	}
	data["event"] = EventData(event)
	data["response"] = ResponseData(resp)
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// EventData is the "event" object templates see.
func EventData(e model.Event) map[string]any {
	out := map[string]any{
		"id":   e.ID,
		"name": e.Name,
	}
	if e.PartnerEventID != "" {
		out["partnerEventId"] = e.PartnerEventID
	}
	if e.StartDate != nil {
		out["startDate"] = e.StartDate.UTC().Format(time.RFC3339)
	}
	if e.EndDate != nil {
		out["endDate"] = e.EndDate.UTC().Format(time.RFC3339)
	}
	return out
}

// ResponseData is the "response" object templates see. Answers are
// flattened to strings.
func ResponseData(r model.Response) map[string]any {
	out := make(map[string]any, len(r.Answers)+1)
	for k, a := range r.Answers {
		if a.IsZero() || a.Kind() == model.AnswerOther {
			continue
		}
		out[k] = a.String()
	}
	out["id"] = r.ID
	return out
}
