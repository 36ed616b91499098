package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/planner"
	"github.com/mapvivid/cityroute/internal/queue"
	"github.com/mapvivid/cityroute/internal/store"
)

// Failure kinds stay distinct end to end: a queue failure after the job
// record was written must never be reported like an auth or validation
// failure.
var (
	ErrValidation = errors.New("invalid job input")
	ErrQueue      = errors.New("failed to enqueue job")
	ErrNotFound   = store.ErrNotFound
)

// JobService creates job records and hands them to the task queue.
type JobService struct {
	store    store.Store
	enqueuer queue.Enqueuer
	logger   *zap.Logger
}

func NewJobService(st store.Store, enq queue.Enqueuer, logger *zap.Logger) *JobService {
	return &JobService{
		store:    st,
		enqueuer: enq,
		logger:   logger,
	}
}

// CreateJob validates and normalizes the request, durably writes the
// queued job record, then enqueues the task. The write happens first so
// a delivered task can never dereference a missing job.
func (s *JobService) CreateJob(ctx context.Context, ownerIdentity string, req *model.CreateJobRequest) (*model.CreateJobResponse, error) {
	input, err := NormalizeInput(req)
	if err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:            uuid.New().String(),
		OwnerIdentity: ownerIdentity,
		Input:         *input,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, "create job record")
	}

	if err := s.enqueuer.EnqueueRunJob(ctx, job.ID); err != nil {
		s.logger.Error("enqueue failed after job write",
			zap.String("jobId", job.ID), zap.Error(err))
		return nil, errors.Mark(err, ErrQueue)
	}

	s.logger.Info("job created",
		zap.String("jobId", job.ID),
		zap.String("city", input.City),
		zap.Int("stayDays", input.StayDays))

	return &model.CreateJobResponse{JobID: job.ID}, nil
}

// GetJob returns the current snapshot for the polling/restore read path.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// NormalizeInput folds the request into the immutable job input: trims
// strings, resolves the stay-day count from explicit value or date range
// and clamps it into the supported range.
func NormalizeInput(req *model.CreateJobRequest) (*model.ItineraryInput, error) {
	city := strings.TrimSpace(req.City)
	country := strings.TrimSpace(req.Country)
	if city == "" || country == "" {
		return nil, errors.Mark(errors.New("missing city/country"), ErrValidation)
	}

	in := &model.ItineraryInput{
		City:          city,
		Country:       country,
		StartDate:     strings.TrimSpace(req.StartDate),
		EndDate:       strings.TrimSpace(req.EndDate),
		NoDates:       req.NoDates,
		Categories:    []string(req.Categories),
		Mobility:      []string(req.Mobility),
		CompanionType: strings.TrimSpace(req.CompanionType),
		TipFocus:      []string(req.TipFocus),
		Budget:        req.Budget,
		ExtraRequests: strings.TrimSpace(req.ExtraRequests),
		Email:         strings.TrimSpace(req.Email),
	}

	if p, err := strconv.Atoi(strings.TrimSpace(req.Pace)); err == nil {
		in.Pace = p
	}

	explicit := 0
	if d, err := strconv.Atoi(strings.TrimSpace(req.StayDays)); err == nil {
		explicit = d
	}

	switch {
	case in.NoDates:
		in.StayDays = model.MinStayDays
		if explicit > 0 {
			in.StayDays = planner.ClampStayDays(explicit)
		}
	case in.StartDate != "" && in.EndDate != "":
		days, err := daysInclusive(in.StartDate, in.EndDate)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid date range"), ErrValidation)
		}
		in.StayDays = planner.ClampStayDays(days)
	case explicit > 0:
		in.StayDays = planner.ClampStayDays(explicit)
	default:
		in.StayDays = model.MinStayDays
	}

	return in, nil
}

func daysInclusive(start, end string) (int, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return 0, err
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return 0, err
	}
	return int(e.Sub(s).Hours()/24) + 1, nil
}
