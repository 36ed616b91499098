package handler

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/store"
	"github.com/mapvivid/cityroute/internal/worker"
	"github.com/mapvivid/cityroute/pkg/response"
)

// TaskHandler receives task deliveries on the internal worker endpoint.
// The shared-secret check runs in middleware before this handler.
type TaskHandler struct {
	runner *worker.Runner
}

func NewTaskHandler(runner *worker.Runner) *TaskHandler {
	return &TaskHandler{runner: runner}
}

// RunJob handles POST /v1/tasks/runJob. A non-2xx response makes the
// queue redeliver, so only genuine processing failures return one;
// unknown jobs and duplicate deliveries must not.
func (h *TaskHandler) RunJob(c *fiber.Ctx) error {
	var payload model.RunJobPayload
	if err := c.BodyParser(&payload); err != nil {
		return response.ValidationError(c, "Invalid task payload", nil)
	}

	jobID := strings.TrimSpace(payload.JobID)
	if jobID == "" {
		return response.ValidationError(c, "Missing jobId", nil)
	}

	if err := h.runner.Run(c.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"ok": true})
}
