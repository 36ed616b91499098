package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/middleware"
	"github.com/mapvivid/cityroute/internal/service"
	"github.com/mapvivid/cityroute/internal/store"
	"github.com/mapvivid/cityroute/internal/worker"
)

const (
	testJWTSecret  = "test-secret"
	testTasksToken = "test-tasks-token"
	testPlanOutput = `{"itinerary": [{"name": "Belém Tower", "description": "tower", "day": 1, "time": "09:00", "lat": 38.69, "lng": -9.21}], "day_tips": {"1": "Go early."}}`
	testTipsOutput = `{"city_tips": {"museums": ["Buy the Lisboa Card."]}}`
)

// fakeEnqueuer records enqueued job ids instead of touching a queue.
type fakeEnqueuer struct {
	mu      sync.Mutex
	jobIDs  []string
	failErr error
}

func (f *fakeEnqueuer) EnqueueRunJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.jobIDs = append(f.jobIDs, jobID)
	return nil
}

// fakeGenerator serves canned JSON keyed on a prompt substring.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (json.RawMessage, string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if strings.Contains(prompt, "route planner") {
		return json.RawMessage(testPlanOutput), "resp_plan", nil
	}
	return json.RawMessage(testTipsOutput), "resp_tips", nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testApp struct {
	app      *fiber.App
	store    *store.MemoryStore
	enqueuer *fakeEnqueuer
	gen      *fakeGenerator
	auth     *middleware.AuthMiddleware
}

// setupApp builds a Fiber app wired like main.go, with the in-memory
// store and fakes in place of Redis, asynq and OpenAI.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	logger := zap.NewNop()
	st := store.NewMemoryStore()
	enq := &fakeEnqueuer{}
	gen := &fakeGenerator{}

	validate := validator.New()
	jobService := service.NewJobService(st, enq, logger)
	runner := worker.NewRunner(st, gen, logger)

	jobHandler := NewJobHandler(jobService, validate)
	taskHandler := NewTaskHandler(runner)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	tasksAuth := middleware.NewTasksAuthMiddleware(testTasksToken)

	app := fiber.New()

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	v1 := app.Group("/v1")
	v1.Post("/jobs", authMiddleware.Authenticate(), jobHandler.Create)
	v1.Get("/jobs/:jobId", jobHandler.Get)
	v1.Post("/tasks/runJob", tasksAuth.Authenticate(), taskHandler.RunJob)

	return &testApp{
		app:      app,
		store:    st,
		enqueuer: enq,
		gen:      gen,
		auth:     authMiddleware,
	}
}

func doRequest(ta *testApp, method, path, body string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return ta.app.Test(req, 5000)
}

func doAuthRequest(t *testing.T, ta *testApp, method, path, body string) (*http.Response, error) {
	t.Helper()
	token, err := ta.auth.GenerateToken("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return doRequest(ta, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func doTaskRequest(ta *testApp, jobID, token string) (*http.Response, error) {
	return doRequest(ta, http.MethodPost, "/v1/tasks/runJob",
		`{"jobId": "`+jobID+`"}`,
		map[string]string{middleware.TasksTokenHeader: token})
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("parse body %q: %v", data, err)
	}
	return out
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

func assertErrorCode(t *testing.T, body map[string]interface{}, want string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errObj["code"] != want {
		t.Fatalf("expected error code %s, got %v", want, errObj["code"])
	}
}
