package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/mapvivid/cityroute/internal/model"
)

// Sentinel errors shared by all Store implementations.
var (
	// ErrNotFound means no job record exists under the given id.
	ErrNotFound = errors.New("job not found")
	// ErrConflict means a conditional status transition found the job in
	// a state the transition does not start from.
	ErrConflict = errors.New("job status conflict")
	// ErrExists means Create was called with an id already in use.
	ErrExists = errors.New("job already exists")
)

// Store is the durable, key-addressed job store. Every successful write
// pushes the full updated snapshot to all subscribers of that job.
//
// Status transitions are conditional: ClaimRunning, Complete and Fail
// atomically verify the current status before writing, so the lifecycle
// queued → running → done|error can never revert or skip under
// concurrent writers.
type Store interface {
	// Create persists a new queued job, setting CreatedAt/UpdatedAt.
	Create(ctx context.Context, job *model.Job) error

	// Get returns the current snapshot for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// ClaimRunning atomically moves a queued job to running. It returns
	// (false, nil) when the job is already running or terminal, which is
	// the idempotency guard for duplicate task deliveries.
	ClaimRunning(ctx context.Context, id string) (bool, error)

	// Complete moves a running job to done with the given result.
	Complete(ctx context.Context, id string, result *model.ItineraryResult, debug *model.DebugInfo) error

	// Fail moves a running job to error. The message is truncated to
	// model.MaxErrorLength before it is stored.
	Fail(ctx context.Context, id string, msg string) error

	// Subscribe delivers the current snapshot immediately, then every
	// subsequent write, until cancel is called or ctx is done. The
	// channel is closed on cancellation. Intermediate states may be
	// skipped when writes outpace the reader; the latest state always
	// arrives.
	Subscribe(ctx context.Context, id string) (<-chan *model.Job, func(), error)

	Close() error
}

// Truncate bounds an error message to model.MaxErrorLength characters.
func Truncate(msg string) string {
	if len(msg) > model.MaxErrorLength {
		return msg[:model.MaxErrorLength]
	}
	return msg
}
