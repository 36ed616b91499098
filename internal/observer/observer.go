package observer

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/mapvivid/cityroute/internal/model"
	"github.com/mapvivid/cityroute/internal/store"
)

// Handler receives the observer's view of a job: coarse progress while
// the job is pending, then exactly one terminal callback.
type Handler interface {
	OnProgress(pct int, msg string)
	OnResult(result *model.ItineraryResult)
	OnError(msg string)
}

// Notifier is an optional outbound notification hook (e.g. an email on
// completion). It fires at most once per observer, even when the
// transport re-delivers the terminal snapshot.
type Notifier interface {
	NotifyDone(job *model.Job)
}

// Displayed progress is clamped so the bar neither sits at zero nor
// claims completion before the result renders.
const (
	progressQueued  = 10
	progressRunning = 55
	progressFloor   = 10
	progressCeil    = 92
)

// Observer follows a single job from a bare job id. It can be built for
// a freshly created job or from an id recovered out of a shared URL; in
// both cases it reproduces the same rendered output for as long as the
// job record exists.
type Observer struct {
	store    store.Store
	handler  Handler
	notifier Notifier
	logger   *zap.Logger

	mu       sync.Mutex
	finished bool
	cancel   func()
	done     chan struct{}
}

func New(st store.Store, h Handler, logger *zap.Logger) *Observer {
	return &Observer{
		store:   st,
		handler: h,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// WithNotifier attaches an at-most-once completion notifier.
func (o *Observer) WithNotifier(n Notifier) *Observer {
	o.notifier = n
	return o
}

// Watch subscribes to the job and dispatches snapshots until a terminal
// state arrives or Stop is called. It returns immediately; Done unblocks
// when the subscription has ended.
func (o *Observer) Watch(ctx context.Context, jobID string) error {
	snapshots, cancel, err := o.store.Subscribe(ctx, jobID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	go func() {
		defer close(o.done)
		defer cancel()
		for job := range snapshots {
			if o.dispatch(job) {
				return
			}
		}
	}()

	return nil
}

// Done unblocks once the observer has terminated.
func (o *Observer) Done() <-chan struct{} { return o.done }

// Stop cancels the subscription. Safe to call at any point; a detached
// observer has no effect on the pipeline.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// dispatch maps one snapshot onto the handler. Terminal snapshots are
// delivered exactly once: re-deliveries after the first are dropped, so
// rendering stays idempotent and side effects fire at most once. The
// return value reports whether the observer is finished.
func (o *Observer) dispatch(job *model.Job) bool {
	o.mu.Lock()
	if o.finished {
		o.mu.Unlock()
		return true
	}
	terminal := job.Status.IsTerminal()
	if terminal {
		o.finished = true
	}
	o.mu.Unlock()

	switch job.Status {
	case model.JobStatusQueued:
		o.handler.OnProgress(DisplayProgress(progressQueued), "Queued…")
	case model.JobStatusRunning:
		o.handler.OnProgress(DisplayProgress(progressRunning), "Working…")
	case model.JobStatusError:
		msg := job.Error
		if msg == "" {
			msg = "Failed to generate itinerary"
		}
		o.handler.OnError(msg)
	case model.JobStatusDone:
		result := job.Result
		if result == nil {
			// done without result violates the store invariant
			o.handler.OnError("job completed without result")
			return true
		}
		o.handler.OnResult(result)
		if o.notifier != nil {
			o.notifier.NotifyDone(job)
		}
	}

	return terminal
}

// DisplayProgress clamps a raw percentage into the displayed band.
func DisplayProgress(pct int) int {
	if pct < progressFloor {
		return progressFloor
	}
	if pct > progressCeil {
		return progressCeil
	}
	return pct
}

// ParseRestoreJobID recovers a job id from a shareable URL. The current
// parameter is job_id; plan_id is accepted for older links.
func ParseRestoreJobID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	if id := q.Get("job_id"); id != "" {
		return id
	}
	return q.Get("plan_id")
}
