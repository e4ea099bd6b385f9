// Package processor implements the worker SDK's order-driven state
// machine: it drives the user-supplied Handler through its lifecycle hooks
// in response to Order messages pulled from an Exchange, and publishes the
// Response messages those hooks produce.
package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/evalgo/mcai-worker-sdk/job"
	"github.com/evalgo/mcai-worker-sdk/queue"
	"github.com/evalgo/mcai-worker-sdk/worker"
)

// DefaultDrainTimeout is how long StopWorker waits for in-flight jobs to
// finish before abandoning them, per the SDK's design notes.
const DefaultDrainTimeout = 30 * time.Second

type jobState int

const (
	stateIdle jobState = iota
	stateInitialized
	stateRunning
)

type jobEntry struct {
	state        jobState
	acker        queue.Acker
	cancel       context.CancelFunc
	lastProgress *job.Progression
}

// Processor is the single-logical-consumer state machine that multiplexes
// order processing across jobs by id. Its own dispatch loop is
// single-threaded per exchange consumer; each job's StartProcess body runs
// on its own goroutine.
type Processor struct {
	exchange queue.Exchange
	handler  worker.Handler

	mu   sync.Mutex
	jobs map[uint64]*jobEntry

	// handlerMu serializes calls into Process, matching the original SDK's
	// single shared-mutex handler, unless handler implements
	// worker.ConcurrentCapable.
	handlerMu sync.Mutex

	drainTimeout time.Duration
	pathExists   func(string) bool
}

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(p *Processor) { p.drainTimeout = d }
}

// WithPathChecker overrides the filesystem existence check CheckRequirements
// uses, for tests that want to fake the filesystem.
func WithPathChecker(fn func(string) bool) Option {
	return func(p *Processor) { p.pathExists = fn }
}

// New builds a Processor over exchange, driving handler. Callers must have
// already invoked handler.Init() once, per the worker bootstrap's
// responsibilities.
func New(exchange queue.Exchange, handler worker.Handler, opts ...Option) *Processor {
	p := &Processor{
		exchange:     exchange,
		handler:      handler,
		jobs:         make(map[uint64]*jobEntry),
		drainTimeout: DefaultDrainTimeout,
		pathExists:   defaultPathExists,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultPathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Run drains orders from the exchange until ctx is cancelled, a fatal
// transport error is returned by the exchange, or a StopWorker order is
// processed (in which case Run drains in-flight jobs and returns nil).
func (p *Processor) Run(ctx context.Context) error {
	for {
		order, acker, err := p.exchange.NextOrder(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if acker != nil {
				// A malformed order still carries an acker: classify and
				// settle it rather than treating it as a fatal transport
				// failure.
				p.emitError(classifyError(err), acker)
				continue
			}
			return err
		}

		if order.Kind == queue.StopWorker {
			p.drain()
			return nil
		}

		p.dispatch(order, acker)
	}
}

func (p *Processor) dispatch(order queue.Order, acker queue.Acker) {
	switch order.Kind {
	case queue.InitProcess:
		p.handleInit(order.Job, acker)
	case queue.StartProcess:
		p.handleStart(order.Job, acker)
	case queue.StopProcess:
		p.handleStopProcess(order.Job, acker)
	case queue.Status:
		p.handleStatus(order.Job, acker)
	default:
		p.emitError(job.NewRuntimeError(fmt.Sprintf("unhandled order kind %v", order.Kind), nil), acker)
	}
}

func classifyError(err error) *job.Error {
	if jerr, ok := err.(*job.Error); ok {
		return jerr
	}
	return job.NewRuntimeError(err.Error(), err)
}

// emitError publishes an Error response and settles acker according to the
// error taxonomy: parse errors reject without requeue, requirements and
// not-implemented errors reject with requeue, everything else acks.
func (p *Processor) emitError(err *job.Error, acker queue.Acker) {
	_ = p.exchange.SendResponse(queue.Response{Kind: queue.Error, Err: err})
	switch {
	case err.Kind == job.KindParse:
		_ = acker.Reject(false)
	case err.Requeue():
		_ = acker.Reject(true)
	default:
		_ = acker.Ack()
	}
}

func (p *Processor) handleInit(j *job.Job, acker queue.Acker) {
	p.mu.Lock()
	if _, exists := p.jobs[j.JobID]; exists {
		p.mu.Unlock()
		p.emitError(job.NewRuntimeError(fmt.Sprintf("job %d: InitProcess received while already active", j.JobID), nil), acker)
		return
	}
	p.jobs[j.JobID] = &jobEntry{state: stateIdle, acker: acker}
	p.mu.Unlock()

	if err := j.CheckRequirements(p.pathExists); err != nil {
		p.removeJob(j.JobID)
		p.emitError(err.(*job.Error), acker)
		return
	}

	if hook, ok := p.handler.(worker.InitProcessHandler); ok {
		if err := hook.InitProcess(j); err != nil {
			p.removeJob(j.JobID)
			p.emitError(job.NewProcessingError(j.JobID, err.Error()), acker)
			return
		}
	}

	p.mu.Lock()
	if entry, ok := p.jobs[j.JobID]; ok {
		entry.state = stateInitialized
	}
	p.mu.Unlock()

	_ = p.exchange.SendResponse(queue.Response{Kind: queue.Initialized, Result: job.NewResult(j.JobID)})
}

func (p *Processor) handleStart(j *job.Job, acker queue.Acker) {
	p.mu.Lock()
	entry, ok := p.jobs[j.JobID]
	if !ok || entry.state != stateInitialized {
		p.mu.Unlock()
		p.emitError(job.NewRuntimeError(fmt.Sprintf("job %d: StartProcess received without a prior InitProcess", j.JobID), nil), acker)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry.state = stateRunning
	entry.cancel = cancel
	p.mu.Unlock()

	_ = p.exchange.SendResponse(queue.Response{Kind: queue.Started, Result: job.NewResult(j.JobID)})

	go p.runJob(ctx, j, acker)
}

func (p *Processor) runJob(ctx context.Context, j *job.Job, acker queue.Acker) {
	defer p.removeJob(j.JobID)

	if cancelAware, ok := p.handler.(worker.CancellationAware); ok {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				cancelAware.Cancel()
			case <-stop:
			}
		}()
	}

	sink := &progressionSink{processor: p}
	result := job.NewResult(j.JobID)

	concurrent := isConcurrentCapable(p.handler)
	if !concurrent {
		p.handlerMu.Lock()
	}
	result, err := p.handler.Process(sink, j, result)
	if !concurrent {
		p.handlerMu.Unlock()
	}

	if err != nil {
		p.emitError(classifyError(err), acker)
		return
	}

	result.Status = job.StatusCompleted
	_ = p.exchange.SendResponse(queue.Response{Kind: queue.Completed, Result: result})
	_ = acker.Ack()
}

func isConcurrentCapable(h worker.Handler) bool {
	cc, ok := h.(worker.ConcurrentCapable)
	return ok && cc.ConcurrentSafe()
}

func (p *Processor) handleStopProcess(j *job.Job, acker queue.Acker) {
	p.mu.Lock()
	entry, ok := p.jobs[j.JobID]
	p.mu.Unlock()

	if !ok || entry.state != stateRunning {
		// StopProcess arriving before StartProcess, or for an unknown/
		// already-terminal job_id, is a no-op, acknowledged.
		_ = acker.Ack()
		return
	}

	if entry.cancel != nil {
		entry.cancel()
	}

	if hook, ok := p.handler.(worker.EndingProcessHandler); ok {
		if err := hook.EndingProcess(j); err != nil {
			_ = acker.Ack() // StopProcess's own delivery; the job's terminal response is runJob's to emit.
			return
		}
	}

	_ = acker.Ack()
}

func (p *Processor) handleStatus(j *job.Job, acker queue.Acker) {
	p.mu.Lock()
	var progress *job.Progression
	if entry, ok := p.jobs[j.JobID]; ok {
		progress = entry.lastProgress
	}
	p.mu.Unlock()

	if progress == nil {
		progress = &job.Progression{JobID: j.JobID}
	}
	_ = p.exchange.SendResponse(queue.Response{Kind: queue.Progression, Progress: progress})
	_ = acker.Ack()
}

func (p *Processor) removeJob(jobID uint64) {
	p.mu.Lock()
	delete(p.jobs, jobID)
	p.mu.Unlock()
}

func (p *Processor) recordProgression(prog job.Progression) {
	p.mu.Lock()
	if entry, ok := p.jobs[prog.JobID]; ok {
		entry.lastProgress = &prog
	}
	p.mu.Unlock()
}

// drain waits up to p.drainTimeout for in-flight jobs to finish on their
// own, then abandons whatever remains: their cancel funcs are invoked and
// their deliveries rejected without requeue, to avoid a redelivery loop at
// the next worker startup.
func (p *Processor) drain() {
	deadline := time.Now().Add(p.drainTimeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		remaining := len(p.jobs)
		p.mu.Unlock()
		if remaining == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	p.abandonRemaining()
}

func (p *Processor) abandonRemaining() {
	p.mu.Lock()
	entries := make([]*jobEntry, 0, len(p.jobs))
	for id, e := range p.jobs {
		entries = append(entries, e)
		delete(p.jobs, id)
	}
	p.mu.Unlock()

	for _, e := range entries {
		if e.cancel != nil {
			e.cancel()
		}
		_ = e.acker.Reject(false)
	}
}

// progressionSink implements worker.ProgressionSink, routing a running
// job's progress reports through the processor to the exchange.
type progressionSink struct {
	processor *Processor
}

func (s *progressionSink) Publish(jobID uint64, percent int) {
	prog := job.NewProgression(jobID, percent)
	s.processor.recordProgression(prog)
	_ = s.processor.exchange.SendResponse(queue.Response{Kind: queue.Progression, Progress: &prog})
}
