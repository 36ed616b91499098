package worker

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mapvivid/cityroute/internal/client"
	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/planner"
	"github.com/mapvivid/cityroute/internal/store"
)

// Runner executes one itinerary job: claims it, issues the generation
// calls and writes the terminal state.
type Runner struct {
	store     store.Store
	generator client.Generator
	logger    *zap.Logger
}

func NewRunner(st store.Store, gen client.Generator, logger *zap.Logger) *Runner {
	return &Runner{
		store:     st,
		generator: gen,
		logger:    logger,
	}
}

type planOutput struct {
	Itinerary []model.Stop      `json:"itinerary"`
	DayTips   map[string]string `json:"day_tips"`
}

type tipsOutput struct {
	CityTips map[string][]string `json:"city_tips"`
}

// Run processes the job with the given id. Delivery is at-least-once, so
// the queued→running claim doubles as the idempotency guard: when the
// job is already running or terminal the duplicate delivery is a no-op
// and Run returns nil so the queue stops redelivering.
//
// Any failure after the claim writes status=error onto the job before
// the error propagates, so a job is never left running indefinitely.
func (r *Runner) Run(ctx context.Context, jobID string) (err error) {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	claimed, err := r.store.ClaimRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		r.logger.Info("duplicate delivery ignored",
			zap.String("jobId", jobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("worker panic: %v", p)
		}
		if err != nil {
			r.failJob(jobID, err.Error())
		}
	}()

	result, debug, err := r.generate(ctx, &job.Input)
	if err != nil {
		return err
	}

	if err := r.store.Complete(ctx, jobID, result, debug); err != nil {
		return errors.Wrap(err, "persist result")
	}

	r.logger.Info("job done",
		zap.String("jobId", jobID),
		zap.Int("stops", len(result.Itinerary)))
	return nil
}

// generate issues the plan and city-tips calls concurrently and awaits
// both. A failure in either fails the job as a whole; no partial result
// is kept.
func (r *Runner) generate(ctx context.Context, in *model.ItineraryInput) (*model.ItineraryResult, *model.DebugInfo, error) {
	var (
		plan planOutput
		tips tipsOutput
		dbg  model.DebugInfo
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, id, err := r.generator.Generate(gctx, planner.BuildPlanPrompt(in))
		if err != nil {
			return errors.Wrap(err, "plan generation")
		}
		dbg.PlanResponseID = id
		if err := json.Unmarshal(raw, &plan); err != nil {
			return errors.Wrap(err, "decode plan output")
		}
		return nil
	})

	g.Go(func() error {
		// No tip focus selected means no city-tips content is wanted;
		// skip the call and keep an empty result.
		if len(in.TipFocus) == 0 {
			tips.CityTips = map[string][]string{}
			return nil
		}
		raw, id, err := r.generator.Generate(gctx, planner.BuildCityTipsPrompt(in))
		if err != nil {
			return errors.Wrap(err, "city tips generation")
		}
		dbg.TipsResponseID = id
		if err := json.Unmarshal(raw, &tips); err != nil {
			return errors.Wrap(err, "decode city tips output")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	result := &model.ItineraryResult{
		Itinerary: plan.Itinerary,
		DayTips:   plan.DayTips,
		CityTips:  tips.CityTips,
	}
	if result.Itinerary == nil {
		result.Itinerary = []model.Stop{}
	}
	if result.DayTips == nil {
		result.DayTips = map[string]string{}
	}
	if result.CityTips == nil {
		result.CityTips = map[string][]string{}
	}
	return result, &dbg, nil
}

// failJob writes the terminal error state so the job is not left
// running indefinitely. Uses a fresh context: the delivery context may
// already be cancelled when this runs.
func (r *Runner) failJob(jobID, msg string) {
	ctx := context.Background()
	if err := r.store.Fail(ctx, jobID, msg); err != nil {
		r.logger.Error("failed to mark job as failed",
			zap.String("jobId", jobID), zap.Error(err))
	}
}
