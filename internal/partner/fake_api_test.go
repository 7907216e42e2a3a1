package partner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/store"
)

type fakeAPI struct {
	mu           sync.Mutex
	surveyCalls  [][]SurveyRecord
	vehicleCalls [][]VehicleRecord
	surveyErr    error
	vehicleErr   error
}

func (f *fakeAPI) UploadSurveys(_ context.Context, records []SurveyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surveyCalls = append(f.surveyCalls, records)
	return f.surveyErr
}

func (f *fakeAPI) InsertVehicles(_ context.Context, records []VehicleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicleCalls = append(f.vehicleCalls, records)
	return f.vehicleErr
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "partner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
