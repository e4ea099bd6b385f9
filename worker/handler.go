package worker

import "github.com/evalgo/mcai-worker-sdk/job"

// ProgressionSink is the narrow capability a running job uses to report
// progress. It is handed to Process rather than exposing the exchange's
// broker channel directly, keeping transport details out of handler code.
type ProgressionSink interface {
	// Publish emits a Progression response for jobID. percent is clamped to
	// [0,100] by the implementation.
	Publish(jobID uint64, percent int)
}

// Handler is the user-supplied processing implementation the worker
// bootstrap hosts. Name/ShortDescription/Description/Version feed the
// WorkerConfiguration; Init runs once per worker process; Process runs once
// per job and may call the supplied sink any number of times before
// returning.
type Handler interface {
	Name() string
	ShortDescription() string
	Description() string
	Version() string

	// Init runs exactly once, before the worker starts consuming orders.
	// An error here is a handler-initialization failure: the bootstrap
	// exits with status 2 (ExitHandlerInitFailure).
	Init() error

	// Process executes one job to completion. It returns the accumulated
	// result on success, or an error — typically built with one of the
	// job.NewXError constructors — describing what went wrong and how the
	// processor should classify it.
	Process(sink ProgressionSink, parameters *job.Job, result *job.Result) (*job.Result, error)
}

// InitProcessHandler is an optional hook run once per job immediately after
// InitProcess validation succeeds, before the job is marked Initialized.
// Handlers that don't need per-job setup can skip implementing it.
type InitProcessHandler interface {
	InitProcess(parameters *job.Job) error
}

// EndingProcessHandler is an optional hook run when a running job is stopped
// cooperatively (StopProcess), giving the handler a chance to flush partial
// work. It is not called for jobs abandoned by the StopWorker drain.
type EndingProcessHandler interface {
	EndingProcess(parameters *job.Job) error
}

// CancellationAware lets a handler observe a cooperative stop request from
// inside a running Process call. The processor calls Cancel() from another
// goroutine once a StopProcess order for the same job_id (or the StopWorker
// drain abandoning the job) cancels it; handlers that run in a tight loop
// can record that and check it at natural checkpoints.
type CancellationAware interface {
	Cancel()
}

// ConcurrentCapable is a marker a Handler implements to advertise that its
// methods are safe to call from multiple jobs' goroutines at once. Absent
// it, the processor serializes every Process call behind a single mutex —
// the original SDK's default, kept here as the safe choice for handlers
// that weren't written with internal concurrency in mind.
type ConcurrentCapable interface {
	ConcurrentSafe() bool
}
