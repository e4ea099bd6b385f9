package job

import "time"

// Status is a JobResult's terminal disposition.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ResultParameter is one key/value entry of a JobResult's parameter list.
type ResultParameter struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value"`
}

// Result is the outcome of a job: constructed fresh per job, accumulated
// during processing via the fluent With* methods, and emitted exactly once
// at the job's terminal transition.
type Result struct {
	JobID      uint64            `json:"job_id"`
	Status     Status            `json:"status"`
	Parameters []ResultParameter `json:"parameters"`
	Message    string            `json:"message,omitempty"`
	CreatedAt  time.Time         `json:"datetime"`
}

// NewResult starts a Result for jobID with status "unknown" and the current
// time as its creation timestamp.
func NewResult(jobID uint64) *Result {
	return &Result{
		JobID:      jobID,
		Status:     StatusUnknown,
		Parameters: []ResultParameter{},
		CreatedAt:  time.Now(),
	}
}

// WithStatus sets the result's status and returns the receiver for
// chaining.
func (r *Result) WithStatus(status Status) *Result {
	r.Status = status
	return r
}

// WithParameter appends a result parameter and returns the receiver for
// chaining.
func (r *Result) WithParameter(id string, value interface{}) *Result {
	r.Parameters = append(r.Parameters, ResultParameter{ID: id, Value: value})
	return r
}

// WithMessage sets the result's message (used for Error responses) and
// returns the receiver for chaining.
func (r *Result) WithMessage(message string) *Result {
	r.Message = message
	return r
}
