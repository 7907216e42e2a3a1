package partner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UploadSurveys(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody struct {
		Surveys []SurveyRecord `json:"surveys"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", srv.Client())
	err := c.UploadSurveys(context.Background(), []SurveyRecord{{SurveyID: "r1", EventID: "88"}})
	require.NoError(t, err)

	assert.Equal(t, "/survey/upload", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, gotBody.Surveys, 1)
	assert.Equal(t, "r1", gotBody.Surveys[0].SurveyID)
}

func TestClient_InsertVehicles(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Vehicles []VehicleRecord `json:"vehicles"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "tok", nil).InsertVehicles(context.Background(), []VehicleRecord{{ID: "k", VehicleID: "bronco"}})
	require.NoError(t, err)
	assert.Equal(t, "/survey/insert/vehicles", gotPath)
	require.Len(t, gotBody.Vehicles, 1)
	assert.Equal(t, "bronco", gotBody.Vehicles[0].VehicleID)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "old", nil).UploadSurveys(context.Background(), nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/survey/upload", apiErr.Endpoint)
	assert.Equal(t, "token expired", apiErr.Body)
}
