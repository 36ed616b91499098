package worker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/store"
)

const planJSON = `{
	"itinerary": [
		{"name": "Belém Tower", "description": "riverside tower", "day": 1, "time": "09:00", "lat": 38.6916, "lng": -9.216},
		{"name": "Jerónimos Monastery", "description": "gothic monastery", "day": 2, "time": "10:00", "lat": 38.6979, "lng": -9.2063},
		{"name": "Castelo de São Jorge", "description": "hilltop castle", "day": 3, "time": "09:30", "lat": 38.7139, "lng": -9.1335}
	],
	"day_tips": {"1": "Go early.", "2": "Book ahead.", "3": "Wear good shoes."}
}`

const tipsJSON = `{"city_tips": {"museums": ["Buy the Lisboa Card.", "Closed Mondays."]}}`

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string // prompt substring -> JSON output
	failOn  string            // prompt substring that fails
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (json.RawMessage, string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, prompt)
	g.mu.Unlock()

	if g.failOn != "" && strings.Contains(prompt, g.failOn) {
		return nil, "", errors.New("openai 500: upstream exploded")
	}
	for sub, out := range g.outputs {
		if strings.Contains(prompt, sub) {
			return json.RawMessage(out), "resp_" + sub, nil
		}
	}
	return nil, "", errors.New("no canned output for prompt")
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func newRunnerFixture(t *testing.T, gen *fakeGenerator) (*Runner, *store.MemoryStore, string) {
	t.Helper()
	st := store.NewMemoryStore()
	job := &model.Job{
		ID:            "j1",
		OwnerIdentity: "user-1",
		Input: model.ItineraryInput{
			City:     "Lisbon",
			Country:  "Portugal",
			NoDates:  true,
			StayDays: 3,
			TipFocus: []string{"museums"},
		},
	}
	require.NoError(t, st.Create(context.Background(), job))
	return NewRunner(st, gen, zap.NewNop()), st, job.ID
}

func TestRun_Success(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{
		"route planner":  planJSON,
		"travel advisor": tipsJSON,
	}}
	r, st, jobID := newRunnerFixture(t, gen)

	require.NoError(t, r.Run(context.Background(), jobID))

	job, err := st.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, job.Status)
	require.NotNil(t, job.Result)
	assert.Empty(t, job.Error)

	require.Len(t, job.Result.Itinerary, 3)
	for _, stop := range job.Result.Itinerary {
		assert.NotEmpty(t, stop.Name)
		assert.Contains(t, []int{1, 2, 3}, stop.Day)
	}
	assert.Equal(t, "Go early.", job.Result.DayTips["1"])
	assert.Equal(t, []string{"Buy the Lisboa Card.", "Closed Mondays."}, job.Result.CityTips["museums"])

	require.NotNil(t, job.Debug)
	assert.NotEmpty(t, job.Debug.PlanResponseID)
	assert.Equal(t, 2, gen.callCount())
}

func TestRun_SkipsCityTipsWithoutFocus(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{"route planner": planJSON}}
	st := store.NewMemoryStore()
	job := &model.Job{
		ID: "j2",
		Input: model.ItineraryInput{
			City: "Lisbon", Country: "Portugal", NoDates: true, StayDays: 3,
		},
	}
	require.NoError(t, st.Create(context.Background(), job))
	r := NewRunner(st, gen, zap.NewNop())

	require.NoError(t, r.Run(context.Background(), "j2"))

	got, err := st.Get(context.Background(), "j2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.Empty(t, got.Result.CityTips)
	assert.Equal(t, 1, gen.callCount(), "city tips call should be skipped")
}

func TestRun_GenerationFailureFailsWholeJob(t *testing.T) {
	gen := &fakeGenerator{
		outputs: map[string]string{"route planner": planJSON},
		failOn:  "travel advisor",
	}
	r, st, jobID := newRunnerFixture(t, gen)

	err := r.Run(context.Background(), jobID)
	require.Error(t, err)

	job, gerr := st.Get(context.Background(), jobID)
	require.NoError(t, gerr)
	assert.Equal(t, model.JobStatusError, job.Status)
	assert.Nil(t, job.Result, "no partial result is persisted")
	assert.NotEmpty(t, job.Error)
	assert.LessOrEqual(t, len(job.Error), model.MaxErrorLength)
}

func TestRun_UnparseableOutputFailsJob(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{
		"route planner":  `{"itinerary": "not an array"}`,
		"travel advisor": tipsJSON,
	}}
	r, st, jobID := newRunnerFixture(t, gen)

	require.Error(t, r.Run(context.Background(), jobID))

	job, err := st.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, job.Status)
}

func TestRun_MissingJob(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), &fakeGenerator{}, zap.NewNop())
	err := r.Run(context.Background(), "ghost")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRun_DuplicateDeliveryAfterDoneIsNoOp(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{
		"route planner":  planJSON,
		"travel advisor": tipsJSON,
	}}
	r, st, jobID := newRunnerFixture(t, gen)

	require.NoError(t, r.Run(context.Background(), jobID))
	first, err := st.Get(context.Background(), jobID)
	require.NoError(t, err)
	callsAfterFirst := gen.callCount()

	// Simulate at-least-once redelivery of the same task.
	require.NoError(t, r.Run(context.Background(), jobID))

	second, err := st.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, gen.callCount(), "no new generation calls")
	assert.Equal(t, first.Result, second.Result, "stored result unchanged")
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestRun_DuplicateDeliveryWhileRunningIsNoOp(t *testing.T) {
	gen := &fakeGenerator{outputs: map[string]string{
		"route planner":  planJSON,
		"travel advisor": tipsJSON,
	}}
	r, st, jobID := newRunnerFixture(t, gen)

	claimed, err := st.ClaimRunning(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, r.Run(context.Background(), jobID))
	assert.Equal(t, 0, gen.callCount())

	job, err := st.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)
}
