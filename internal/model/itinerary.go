package model

import "time"

// Stay-day bounds applied during input normalization.
const (
	MinStayDays = 1
	MaxStayDays = 7
)

// Budget is the traveler's per-day budget.
type Budget struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// ItineraryInput is the normalized request a job is created from.
// Immutable after creation.
type ItineraryInput struct {
	City          string   `json:"city"`
	Country       string   `json:"country"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	NoDates       bool     `json:"no_dates,omitempty"`
	StayDays      int      `json:"stay_days"`
	Categories    []string `json:"categories,omitempty"`
	Mobility      []string `json:"mobility,omitempty"`
	CompanionType string   `json:"companion_type,omitempty"`
	TipFocus      []string `json:"tip_focus,omitempty"`
	Pace          int      `json:"pace,omitempty"`
	Budget        Budget   `json:"budget"`
	ExtraRequests string   `json:"extra_requests,omitempty"`
	Email         string   `json:"email,omitempty"`
}

// Stop is one itinerary entry: a named place on a given day.
type Stop struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Day         int     `json:"day"`
	Time        string  `json:"time"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// ItineraryResult is the combined output of the plan and city-tips
// generation calls. Present on a job iff status is done.
type ItineraryResult struct {
	Itinerary []Stop              `json:"itinerary"`
	DayTips   map[string]string   `json:"day_tips"`
	CityTips  map[string][]string `json:"city_tips"`
}

// CreateJobRequest is the body of POST /v1/jobs. Array fields also accept
// a single delimited string; normalization folds both into lists.
type CreateJobRequest struct {
	City          string      `json:"city" validate:"required"`
	Country       string      `json:"country" validate:"required"`
	StartDate     string      `json:"start_date"`
	EndDate       string      `json:"end_date"`
	NoDates       bool        `json:"no_dates"`
	StayDays      string      `json:"stay_days"`
	Categories    StringList  `json:"categories"`
	Mobility      StringList  `json:"mobility"`
	CompanionType string      `json:"companion_type"`
	TipFocus      StringList  `json:"tip_focus"`
	Pace          string      `json:"pace"`
	Budget        Budget      `json:"budget"`
	ExtraRequests string      `json:"extra_requests"`
	Email         string      `json:"email" validate:"omitempty,email"`
}

// CreateJobResponse is returned synchronously from POST /v1/jobs.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// JobSnapshot is the job record shape served to clients and pushed to
// subscribers. Same fields as Job; aliased for handler signatures.
type JobSnapshot = Job

// TouchedAt reports the later of the job's timestamps, useful for
// retention accounting.
func (j *Job) TouchedAt() time.Time {
	if j.UpdatedAt.After(j.CreatedAt) {
		return j.UpdatedAt
	}
	return j.CreatedAt
}
