package handler

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mapvivid/cityroute/internal/middleware"
	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/service"
	"github.com/mapvivid/cityroute/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /v1/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, service.ErrQueue):
			return response.QueueError(c, "Failed to enqueue job")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.OK(c, result)
}

// Get handles GET /v1/jobs/:jobId — the polling/restore read path.
// Holding the job id is the only credential required.
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

func formatValidationErrors(err error) []fiber.Map {
	var out []fiber.Map
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out = append(out, fiber.Map{
				"field": fe.Field(),
				"rule":  fe.Tag(),
			})
		}
	}
	return out
}
