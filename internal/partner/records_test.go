package partner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
)

func decodeAnswers(t *testing.T, doc string) map[string]model.Answer {
	t.Helper()
	var answers map[string]model.Answer
	require.NoError(t, json.Unmarshal([]byte(doc), &answers))
	return answers
}

func TestMapResponse_Golden(t *testing.T) {
	event := model.Event{ID: "evt-1", BrandID: "brand-a", PartnerEventID: "88123"}

	first := model.Response{
		ID:        "resp-001",
		EventID:   "evt-1",
		CreatedAt: time.Date(2026, 6, 1, 10, 4, 5, 0, time.FixedZone("CDT", -5*3600)),
		Answers: decodeAnswers(t, `{
			"firstName": " Jose\u0301 ",
			"lastName": "Núñez",
			"email": "Jose@Example.COM",
			"phone": "+1 (555) 010-2030",
			"address1": "12 Elm St",
			"city": "Springfield",
			"state": "il",
			"zip": "62704-1234",
			"optIn": "Yes",
			"vehiclesOfInterest": ["bronco", "mustang", "bronco", null],
			"howHeard": "Radio",
			"interests": ["towing", "off-road"],
			"age": 42,
			"grid": {"r1":"c2"},
			"skipped": null
		}`),
	}
	second := model.Response{
		ID:        "resp-002",
		EventID:   "evt-1",
		CreatedAt: time.Date(2026, 6, 1, 16, 0, 0, 0, time.UTC),
		Answers: decodeAnswers(t, `{
			"firstName": "Ann",
			"email": "ann@example.com",
			"phone": "555.010.9999",
			"zip": 2134
		}`),
	}

	var out struct {
		Surveys  []SurveyRecord  `json:"surveys"`
		Vehicles []VehicleRecord `json:"vehicles"`
	}
	for _, r := range []model.Response{first, second} {
		rec, vs, err := MapResponse(event, r)
		require.NoError(t, err)
		out.Surveys = append(out.Surveys, rec)
		out.Vehicles = append(out.Vehicles, vs...)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "partner_records", data)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"(555) 010-2030", "5550102030"},
		{"+1 555 010 2030", "5550102030"},
		{"1-555-010-2030", "5550102030"},
		{"+44 20 7946 0958", "442079460958"},
		{"25550102030", "25550102030"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizeZip(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"62704", "62704"},
		{"62704-1234", "62704"},
		{"627041234", "62704"},
		{"2134", "02134"},
		{" 02134 ", "02134"},
		{"", ""},
		{"none", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeZip(tt.in))
		})
	}
}

func TestVehicleKey(t *testing.T) {
	k := VehicleKey("resp-001", "bronco")
	assert.Len(t, k, 64)
	assert.Equal(t, k, VehicleKey("resp-001", "bronco"))
	assert.NotEqual(t, k, VehicleKey("resp-002", "bronco"))
	assert.NotEqual(t, k, VehicleKey("resp-001", "mustang"))

	// The separator keeps shifted boundaries apart.
	assert.NotEqual(t, VehicleKey("ab", "c"), VehicleKey("a", "bc"))
}

func TestMapResponse_ScalarVehicle(t *testing.T) {
	event := model.Event{PartnerEventID: "1"}
	_, vs, err := MapResponse(event, model.Response{
		ID:      "r1",
		Answers: map[string]model.Answer{KeyVehicles: model.Scalar("ranger")},
	})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "ranger", vs[0].VehicleID)
	assert.Equal(t, VehicleKey("r1", "ranger"), vs[0].ID)
}

func TestCustomData_NoHTMLEscaping(t *testing.T) {
	blob, err := customData(map[string]model.Answer{
		"dealer": model.Scalar("Smith & Sons <North>"),
		"email":  model.Scalar("x@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"dealer":"Smith & Sons <North>"}`, blob)
}
