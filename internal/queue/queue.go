package queue

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"

	"github.com/mapvivid/cityroute/internal/model"
)

// TaskTypeRunJob identifies the itinerary job task on the queue.
const TaskTypeRunJob = "itinerary:run_job"

// Enqueuer hands a job id to the at-least-once delivery queue.
type Enqueuer interface {
	EnqueueRunJob(ctx context.Context, jobID string) error
}

// Client enqueues run-job tasks on asynq. Delivery is at-least-once:
// asynq redelivers with backoff until the dispatcher reports success.
type Client struct {
	asynqClient *asynq.Client
	queue       string
	maxRetry    int
}

func NewClient(asynqClient *asynq.Client, queue string, maxRetry int) *Client {
	return &Client{
		asynqClient: asynqClient,
		queue:       queue,
		maxRetry:    maxRetry,
	}
}

func (c *Client) EnqueueRunJob(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(model.RunJobPayload{JobID: jobID})
	if err != nil {
		return errors.Wrap(err, "marshal task payload")
	}

	task := asynq.NewTask(TaskTypeRunJob, payload)
	_, err = c.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
	)
	if err != nil {
		return errors.Wrap(err, "enqueue task")
	}
	return nil
}
