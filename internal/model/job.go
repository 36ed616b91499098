package model

import "time"

// JobStatus is the lifecycle state of an itinerary job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

var ValidJobStatuses = []JobStatus{
	JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusError,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransition reports whether a job may move from s to next.
// The lifecycle is strictly queued → running → done|error.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next == JobStatusDone || next == JobStatusError
	default:
		return false
	}
}

// MaxErrorLength bounds the human-readable error message stored on a job.
const MaxErrorLength = 1500

// Job is the durable record for one itinerary-generation request.
// The id doubles as the bearer capability for observing and restoring
// the result; OwnerIdentity is provenance only.
type Job struct {
	ID            string           `json:"id"`
	OwnerIdentity string           `json:"ownerIdentity"`
	Status        JobStatus        `json:"status"`
	Input         ItineraryInput   `json:"input"`
	Result        *ItineraryResult `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Debug         *DebugInfo       `json:"debug,omitempty"`
}

// DebugInfo carries correlation ids for the external generation calls.
// Diagnostic only, not part of the result contract.
type DebugInfo struct {
	PlanResponseID string `json:"planResponseId,omitempty"`
	TipsResponseID string `json:"tipsResponseId,omitempty"`
}

// RunJobPayload is the task envelope delivered to the worker endpoint.
type RunJobPayload struct {
	JobID string `json:"jobId"`
}
