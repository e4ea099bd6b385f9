// Command mcai-worker-sdk, built as its own binary, hosts a small reference
// handler implementing every worker.Handler method plus ParameterDeclarer;
// it implements none of the optional per-job hooks. Real workers
// import the bootstrap, worker and job packages and supply their own
// Handler; this one exists so the SDK can be run and described on its own.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/evalgo/mcai-worker-sdk/bootstrap"
	"github.com/evalgo/mcai-worker-sdk/job"
	"github.com/evalgo/mcai-worker-sdk/worker"
)

func main() {
	os.Exit(bootstrap.Run(&echoHandler{}))
}

// echoParameters is reflected into the worker's parameter schema by
// worker.BuildParameterSchema.
type echoParameters struct {
	Message string `param:"message" required:"true"`
	Delay   int64  `param:"delay_ms"`
}

// echoHandler is the SDK's reference Handler: it copies its "message"
// parameter into the job result, optionally sleeping for "delay_ms" first
// and reporting progress at the halfway point, so it can drive the
// InitProcess/StartProcess/progression/Completed sequence end to end.
type echoHandler struct{}

func (h *echoHandler) Name() string             { return "echo" }
func (h *echoHandler) ShortDescription() string { return "Echoes its message parameter back" }
func (h *echoHandler) Description() string {
	return "Reference worker demonstrating the SDK's handler lifecycle: validates its " +
		"parameters, optionally waits delay_ms while reporting progress, and returns " +
		"the message parameter unchanged as its result."
}
func (h *echoHandler) Version() string { return "1.0.0" }

func (h *echoHandler) Init() error { return nil }

func (h *echoHandler) ParametersType() interface{} { return echoParameters{} }

func (h *echoHandler) Process(sink worker.ProgressionSink, parameters *job.Job, result *job.Result) (*job.Result, error) {
	message, ok := parameters.StringParam("message")
	if !ok {
		return nil, job.NewRequirementsError(parameters.JobID, "missing required parameter \"message\"")
	}

	if delayMS, ok := parameters.IntParam("delay_ms"); ok && delayMS > 0 {
		sink.Publish(parameters.JobID, 50)
		time.Sleep(time.Duration(delayMS) * time.Millisecond)
	}

	sink.Publish(parameters.JobID, 100)

	return result.WithStatus(job.StatusCompleted).
		WithParameter("message", message).
		WithMessage(fmt.Sprintf("echoed %q", message)), nil
}
