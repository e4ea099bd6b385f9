// Package queue implements the message exchange abstraction: the uniform
// interface for sending response messages and receiving order messages,
// backed either by an AMQP-style broker or by an in-process replay of
// files on disk.
package queue

import (
	"github.com/evalgo/mcai-worker-sdk/job"
	"github.com/evalgo/mcai-worker-sdk/worker"
)

// OrderKind discriminates the OrderMessage union.
type OrderKind int

const (
	InitProcess OrderKind = iota
	StartProcess
	StopProcess
	Status
	StopWorker
)

func (k OrderKind) String() string {
	switch k {
	case InitProcess:
		return "init_process"
	case StartProcess:
		return "start_process"
	case StopProcess:
		return "stop_process"
	case Status:
		return "status"
	case StopWorker:
		return "stop_worker"
	default:
		return "unknown"
	}
}

// Order is one OrderMessage variant. Job is nil for StopWorker.
type Order struct {
	Kind OrderKind
	Job  *job.Job
}

// ResponseKind discriminates the ResponseMessage union.
type ResponseKind int

const (
	Initialized ResponseKind = iota
	Started
	Completed
	Progression
	Error
	WorkerCreated
	WorkerInitialized
	WorkerStarted
)

func (k ResponseKind) String() string {
	switch k {
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	case Completed:
		return "completed"
	case Progression:
		return "progression"
	case Error:
		return "error"
	case WorkerCreated:
		return "worker_created"
	case WorkerInitialized:
		return "worker_initialized"
	case WorkerStarted:
		return "worker_started"
	default:
		return "unknown"
	}
}

// Response is one ResponseMessage variant. Exactly one payload field is set,
// matching Kind.
type Response struct {
	Kind          ResponseKind
	Result        *job.Result
	Progress      *job.Progression
	Err           *job.Error
	Configuration *worker.Configuration
}

// errorBody is the wire shape of an Error response: job.Result's JSON tags
// already match the Completed/Initialized/Started shape, and
// job.Progression's already match the Progression shape, so only the error
// variant needs its own wire struct.
type errorBody struct {
	JobID   *uint64 `json:"job_id,omitempty"`
	Status  string  `json:"status"`
	Message string  `json:"message"`
}

func newErrorBody(err *job.Error) errorBody {
	return errorBody{JobID: err.JobID, Status: "error", Message: err.Message}
}
