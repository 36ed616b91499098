package queue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/middleware"
)

// Dispatcher delivers task payloads to the worker endpoint over HTTP
// with the shared-secret header. Any non-2xx response is returned as an
// error so asynq retries the delivery with backoff — the worker endpoint
// sees at-least-once semantics and must tolerate duplicates.
type Dispatcher struct {
	httpClient *http.Client
	workerURL  string
	token      string
	logger     *zap.Logger
}

func NewDispatcher(workerURL, token string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{
			// Generation runs inside this request; give it room.
			Timeout: 10 * time.Minute,
		},
		workerURL: workerURL,
		token:     token,
		logger:    logger,
	}
}

// ProcessTask implements the asynq handler for TaskTypeRunJob.
func (d *Dispatcher) ProcessTask(ctx context.Context, t *asynq.Task) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.workerURL, bytes.NewReader(t.Payload()))
	if err != nil {
		return errors.Wrap(err, "create delivery request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TasksTokenHeader, d.token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "deliver task")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		d.logger.Warn("task delivery rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return errors.Newf("worker returned %d", resp.StatusCode)
	}
	return nil
}

// NewServeMux wires the dispatcher into an asynq mux.
func NewServeMux(d *Dispatcher) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRunJob, d.ProcessTask)
	return mux
}
