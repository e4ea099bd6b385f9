// Package bootstrap is the worker SDK's entry point: it wires
// configuration, the message exchange and the processor around a
// worker.Handler, implementing the reconnect supervision loop against a
// broker and the local-orders replay mode used for functional testing.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/evalgo/mcai-worker-sdk/common"
	"github.com/evalgo/mcai-worker-sdk/config"
	"github.com/evalgo/mcai-worker-sdk/job"
	"github.com/evalgo/mcai-worker-sdk/processor"
	"github.com/evalgo/mcai-worker-sdk/queue"
	"github.com/evalgo/mcai-worker-sdk/version"
	"github.com/evalgo/mcai-worker-sdk/worker"
)

// Exit codes per the SDK's external interface contract (spec.md §6).
const (
	ExitOK                 = 0
	ExitConfigurationError = 1
	ExitHandlerInitFailure = 2
)

// ReconnectDelay is how long the broker supervision loop sleeps between a
// fatal transport error and the next reconnect attempt.
var ReconnectDelay = time.Second

// describeDocument is what DESCRIBE=1 prints: the worker configuration
// plus the running binary's dependency manifest, a diagnostic the original
// SDK's plain configuration dump didn't carry.
type describeDocument struct {
	*worker.Configuration
	Build *version.BuildInfo `json:"build"`
}

// Run wires configuration, the message exchange and the processor around
// handler and blocks until the worker exits. It returns the process exit
// code the caller's main() should pass to os.Exit.
func Run(handler worker.Handler) int {
	cfg := config.Load()
	instanceID := worker.InstanceID()

	common.SetLevel(common.LogLevel(cfg.LogLevel))
	logger := common.WorkerLogger(instanceID, cfg.AMQP.Queue, "bootstrap")

	workerConfig, err := worker.NewConfiguration(cfg.AMQP.Queue, handler, instanceID)
	if err != nil {
		logger.Errorf("building worker configuration: %v", err)
		return ExitConfigurationError
	}

	logger.Infof("worker: %s, version: %s (worker SDK %s)",
		workerConfig.WorkerName, workerConfig.Version, workerConfig.SDKVersion)

	if cfg.Describe {
		return describe(workerConfig)
	}

	if err := handler.Init(); err != nil {
		logger.Errorf("handler init failed: %v", err)
		return ExitHandlerInitFailure
	}
	logger.Info("worker initialized, ready to receive jobs")

	if len(cfg.SourceOrders) > 0 {
		logger.Warn("worker will process local source orders")
		return runLocalReplay(logger, cfg.SourceOrders, handler)
	}

	return runBrokerSupervisionLoop(logger, cfg, workerConfig, handler)
}

func describe(workerConfig *worker.Configuration) int {
	doc := describeDocument{Configuration: workerConfig, Build: version.GetBuildInfo()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ExitConfigurationError
	}
	fmt.Println(string(data))
	return ExitOK
}

// runLocalReplay processes each file to a terminal response before moving
// to the next, returning the first non-OK exit code it encounters.
func runLocalReplay(logger *common.ContextLogger, files []string, handler worker.Handler) int {
	for _, path := range files {
		logger.Infof("processing local order: %s", path)

		if exitCode, ok := replayOne(logger, path, handler); !ok {
			return exitCode
		}
	}
	return ExitOK
}

// replayOne gives the file its own LocalExchange and Processor, so an
// orphaned StartProcess response from one file's failed InitProcess (the
// processor still dispatches the paired order; it just finds no job entry
// and emits a second Error) lands on a stream this call alone reads and
// discards, rather than bleeding into the next file's response stream.
func replayOne(logger *common.ContextLogger, path string, handler worker.Handler) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Errorf("reading %s: %v", path, err)
		return ExitConfigurationError, false
	}

	// Local replay files are not expected to carry credential parameters;
	// a nil resolver surfaces one as a requirements-class parse failure
	// rather than attempting network access in an offline mode.
	j, err := job.Parse(data, nil)
	if err != nil {
		logger.Errorf("parsing %s: %v", path, err)
		return ExitConfigurationError, false
	}

	exchange := queue.NewLocalExchange(8)
	proc := processor.New(exchange, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- proc.Run(ctx) }()

	if err := exchange.SendOrder(queue.Order{Kind: queue.InitProcess, Job: j}); err != nil {
		logger.Errorf("enqueueing init for %s: %v", path, err)
		cancel()
		<-runDone
		return ExitConfigurationError, false
	}
	if err := exchange.SendOrder(queue.Order{Kind: queue.StartProcess, Job: j}); err != nil {
		logger.Errorf("enqueueing start for %s: %v", path, err)
		cancel()
		<-runDone
		return ExitConfigurationError, false
	}

	for {
		resp, ok := exchange.NextResponse()
		if !ok {
			logger.Errorf("exchange closed before %s reached a terminal response", path)
			cancel()
			<-runDone
			return ExitConfigurationError, false
		}
		logger.Debugf("response for %s: kind=%v", path, resp.Kind)
		if resp.Kind == queue.Completed || resp.Kind == queue.Error {
			_ = exchange.Close()
			cancel()
			<-runDone
			return ExitOK, true
		}
	}
}

// runBrokerSupervisionLoop builds a BrokerExchange, runs the processor
// until a fatal transport error or a clean StopWorker shutdown, and
// reconnects after ReconnectDelay on failure.
func runBrokerSupervisionLoop(logger *common.ContextLogger, cfg config.Config, workerConfig *worker.Configuration, handler worker.Handler) int {
	resolver := worker.NewCredentialResolver(cfg.Backend.Hostname, cfg.Backend.Username, cfg.Backend.Password)
	logger.Debugf("credential resolver: backend=%s user=%s pass=%s",
		cfg.Backend.Hostname, common.MaskSecret(cfg.Backend.Username), common.MaskSecret(cfg.Backend.Password))

	for {
		exchange, err := queue.NewBrokerExchange(&queue.RealAMQPDialer{}, cfg.AMQPURL(), queue.BrokerConfig{
			Queue:              workerConfig.Queue,
			DirectMessaging:    workerConfig.DirectMessagingQueueName(),
			WorkerName:         workerConfig.WorkerName,
			CredentialResolver: resolver,
		})
		if err != nil {
			logger.Errorf("connecting to broker: %v", err)
			time.Sleep(ReconnectDelay)
			continue
		}

		announceLifecycle(exchange, workerConfig)

		proc := processor.New(exchange, handler)
		runErr := proc.Run(context.Background())
		_ = exchange.Close()

		if runErr == nil {
			logger.Info("worker stopped on StopWorker")
			return ExitOK
		}

		logger.Errorf("processor run ended: %v; reconnecting", runErr)
		time.Sleep(ReconnectDelay)
	}
}

// announceLifecycle publishes the worker-level lifecycle responses once
// per connection epoch. They carry job_id 0 as a sentinel: these events
// describe the worker process, not a specific job.
func announceLifecycle(exchange queue.Exchange, workerConfig *worker.Configuration) {
	_ = exchange.SendResponse(queue.Response{Kind: queue.WorkerCreated, Configuration: workerConfig})
	_ = exchange.SendResponse(queue.Response{Kind: queue.WorkerInitialized, Result: job.NewResult(0)})
	_ = exchange.SendResponse(queue.Response{Kind: queue.WorkerStarted, Result: job.NewResult(0)})
}
