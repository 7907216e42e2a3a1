package model

import "time"

// Question is one entry of an event's questionnaire schema.
type Question struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Event is the configuration for one occurrence of a survey activation.
type Event struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	BrandID        string `json:"brandId,omitempty"`
	PartnerEventID string `json:"partnerEventId,omitempty"`

	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	PreRegDate *time.Time `json:"preRegDate,omitempty"`

	// Timezone overrides the configured start/end zone defaults when set.
	Timezone string `json:"timezone,omitempty"`

	Questions []Question `json:"questions,omitempty"`

	ConfirmationEmail *ConfirmationEmail `json:"confirmationEmail,omitempty"`
	ReminderEmail     *ReminderEmail     `json:"reminderEmail,omitempty"`
	ThankYouEmail     *ThankYouEmail     `json:"thankYouEmail,omitempty"`
	AutoCheckOut      *AutoCheckOut      `json:"autoCheckOut,omitempty"`
	CheckOutEmail     *CheckOutEmail     `json:"checkOutEmail,omitempty"`

	// Results is owned by the aggregation pipeline. Nil until the first
	// tabulable response bootstraps it.
	Results *Results `json:"results,omitempty"`
}

// HasPartner reports whether responses for this event are exported to the
// brand's partner API.
func (e Event) HasPartner() bool {
	return e.BrandID != "" && e.PartnerEventID != ""
}

type ConfirmationEmail struct {
	Template   string         `json:"template"`
	CustomData map[string]any `json:"customData,omitempty"`
}

type ReminderEmail struct {
	Template   string         `json:"template"`
	DaysBefore *int           `json:"daysBefore,omitempty"`
	SendHour   *int           `json:"sendHour,omitempty"`
	CustomData map[string]any `json:"customData,omitempty"`
}

// ThankYouEmail fires once per response. SendNow and SendNowAfterDays are
// mutually exclusive with the default end-of-event timing.
type ThankYouEmail struct {
	Template         string         `json:"template"`
	SendNow          bool           `json:"sendNow,omitempty"`
	SendNowAfterDays *int           `json:"sendNowAfterDays,omitempty"`
	DaysAfter        *int           `json:"daysAfter,omitempty"`
	SendHour         *int           `json:"sendHour,omitempty"`
	CustomData       map[string]any `json:"customData,omitempty"`
}

type AutoCheckOut struct {
	MinutesAfter int    `json:"minutesAfter"`
	PostEventID  string `json:"postEventId,omitempty"`
}

type CheckOutEmail struct {
	Template string `json:"template"`
}
