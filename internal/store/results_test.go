package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveyops/internal/model"
)

func TestBootstrapResults_Guarded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.BootstrapResults(ctx, "evt-1", []string{"color", "models"}, []model.TallyKey{
		{Question: "color", Answer: "Blue"},
		{Question: "models", Answer: "Bronco"},
		{Question: "models", Answer: "F-150"},
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Second bootstrap loses the guard and writes nothing.
	inserted, err = s.BootstrapResults(ctx, "evt-1", []string{"changed"}, []model.TallyKey{
		{Question: "color", Answer: "Blue"},
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	r, err := s.ReadResults(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, []string{"color", "models"}, r.Questions)
	assert.Equal(t, 1, r.TotalCount)
	assert.Equal(t, 1, r.Count("color", "Blue"))
	assert.Equal(t, 1, r.Count("models", "F-150"))
}

func TestReadResults_Absent(t *testing.T) {
	s := openTestStore(t)

	r, err := s.ReadResults(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestIncrementResults_RequiresBootstrap(t *testing.T) {
	s := openTestStore(t)

	err := s.IncrementResults(context.Background(), "evt-1", []model.TallyKey{{Question: "q", Answer: "a"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementResults_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.BootstrapResults(ctx, "evt-1", []string{"color"}, []model.TallyKey{{Question: "color", Answer: "Blue"}})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answer := "Blue"
			if i%2 == 0 {
				answer = "Red"
			}
			errs <- s.IncrementResults(ctx, "evt-1", []model.TallyKey{{Question: "color", Answer: answer}})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	r, err := s.ReadResults(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, writers+1, r.TotalCount)
	assert.Equal(t, 11, r.Count("color", "Blue"))
	assert.Equal(t, 10, r.Count("color", "Red"))
	assert.Equal(t, r.TotalCount, r.QuestionTotal("color"))
}
