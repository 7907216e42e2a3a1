package partner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/surveyops/internal/model"
)

// Answer keys mapped onto dedicated record fields. Every other answer goes
// into the custom-data blob.
const (
	KeyFirstName = "firstName"
	KeyLastName  = "lastName"
	KeyEmail     = "email"
	KeyPhone     = "phone"
	KeyAddress   = "address1"
	KeyCity      = "city"
	KeyState     = "state"
	KeyZip       = "zip"
	KeyOptIn     = "optIn"
	KeyVehicles  = "vehiclesOfInterest"
)

var standardKeys = map[string]bool{
	KeyFirstName: true,
	KeyLastName:  true,
	KeyEmail:     true,
	KeyPhone:     true,
	KeyAddress:   true,
	KeyCity:      true,
	KeyState:     true,
	KeyZip:       true,
	KeyOptIn:     true,
	KeyVehicles:  true,
}

// vehicleDomain separates vehicle record keys from any other hash.
const vehicleDomain = "surveyops/vehicle/v1"

// SurveyRecord is the partner's flat survey row.
type SurveyRecord struct {
	SurveyID    string `json:"surveyId"`
	EventID     string `json:"eventId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	OptIn       bool   `json:"optIn"`
	CompletedAt string `json:"completedAt"`
	CustomData  string `json:"customData"`
}

// VehicleRecord is one vehicle of interest for one survey.
type VehicleRecord struct {
	ID        string `json:"id"`
	SurveyID  string `json:"surveyId"`
	EventID   string `json:"eventId"`
	VehicleID string `json:"vehicleId"`
}

// MapResponse maps a response of a partner event to its survey record and
// vehicle fan-out.
func MapResponse(event model.Event, resp model.Response) (SurveyRecord, []VehicleRecord, error) {
	custom, err := customData(resp.Answers)
	if err != nil {
		return SurveyRecord{}, nil, fmt.Errorf("map response %s: %w", resp.ID, err)
	}

	rec := SurveyRecord{
		SurveyID:    resp.ID,
		EventID:     event.PartnerEventID,
		FirstName:   text(resp, KeyFirstName),
		LastName:    text(resp, KeyLastName),
		Email:       strings.ToLower(text(resp, KeyEmail)),
		Phone:       NormalizePhone(text(resp, KeyPhone)),
		Address:     text(resp, KeyAddress),
		City:        text(resp, KeyCity),
		State:       strings.ToUpper(text(resp, KeyState)),
		Zip:         NormalizeZip(text(resp, KeyZip)),
		OptIn:       truthy(text(resp, KeyOptIn)),
		CompletedAt: resp.CreatedAt.UTC().Format(time.RFC3339),
		CustomData:  custom,
	}

	var vehicles []VehicleRecord
	for _, v := range vehicleIDs(resp.Answer(KeyVehicles)) {
		vehicles = append(vehicles, VehicleRecord{
			ID:        VehicleKey(resp.ID, v),
			SurveyID:  resp.ID,
			EventID:   event.PartnerEventID,
			VehicleID: v,
		})
	}
	return rec, vehicles, nil
}

// VehicleKey is the deterministic record key for (response, vehicle).
func VehicleKey(responseID, vehicleID string) string {
	h := sha256.New()
	h.Write([]byte(vehicleDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(responseID))
	h.Write([]byte{0x00})
	h.Write([]byte(vehicleID))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePhone keeps digits only and drops a leading US country code.
func NormalizePhone(s string) string {
	d := digits(s)
	if len(d) == 11 && d[0] == '1' {
		return d[1:]
	}
	return d
}

// NormalizeZip returns the 5-digit ZIP. Shorter numeric values lost their
// leading zeros upstream and are padded back.
func NormalizeZip(s string) string {
	d := digits(s)
	switch {
	case d == "":
		return ""
	case len(d) >= 5:
		return d[:5]
	default:
		return strings.Repeat("0", 5-len(d)) + d
	}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func text(resp model.Response, key string) string {
	return clean(resp.Answer(key).String())
}

func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "on":
		return true
	}
	return false
}

func vehicleIDs(a model.Answer) []string {
	var raw []string
	switch a.Kind() {
	case model.AnswerList:
		raw = a.Values()
	case model.AnswerScalar:
		raw = []string{a.Value()}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = clean(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// customData serializes the non-standard answers as compact JSON with
// sorted keys and NFC strings.
func customData(answers map[string]model.Answer) (string, error) {
	blob := make(map[string]any)
	for k, a := range answers {
		if standardKeys[k] {
			continue
		}
		switch a.Kind() {
		case model.AnswerScalar:
			blob[k] = norm.NFC.String(a.Value())
		case model.AnswerList:
			vals := make([]string, len(a.Values()))
			for i, v := range a.Values() {
				vals[i] = norm.NFC.String(v)
			}
			blob[k] = vals
		case model.AnswerOther:
			blob[k] = json.RawMessage(a.Raw())
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blob); err != nil {
		return "", fmt.Errorf("encode custom data: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
