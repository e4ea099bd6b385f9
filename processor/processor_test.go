package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/mcai-worker-sdk/job"
	"github.com/evalgo/mcai-worker-sdk/queue"
	"github.com/evalgo/mcai-worker-sdk/worker"
)

// fakeAcker records the ack/reject decision a Processor made about one
// order, so tests can assert on it without a broker.
type fakeAcker struct {
	mu       sync.Mutex
	acked    bool
	rejected bool
	requeue  bool
}

func (a *fakeAcker) Ack() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcker) Reject(requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) state() (acked, rejected, requeue bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acked, a.rejected, a.requeue
}

type orderEnvelope struct {
	order queue.Order
	acker *fakeAcker
}

// fakeExchange is a minimal queue.Exchange a test drives directly: orders
// are fed in by the test, responses are recorded for assertions.
type fakeExchange struct {
	orders chan orderEnvelope

	mu        sync.Mutex
	responses []queue.Response
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{orders: make(chan orderEnvelope, 8)}
}

func (f *fakeExchange) push(kind queue.OrderKind, j *job.Job) *fakeAcker {
	ak := &fakeAcker{}
	f.orders <- orderEnvelope{order: queue.Order{Kind: kind, Job: j}, acker: ak}
	return ak
}

func (f *fakeExchange) NextOrder(ctx context.Context) (queue.Order, queue.Acker, error) {
	select {
	case <-ctx.Done():
		return queue.Order{}, nil, ctx.Err()
	case env := <-f.orders:
		return env.order, env.acker, nil
	}
}

func (f *fakeExchange) SendResponse(resp queue.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeExchange) Close() error { return nil }

func (f *fakeExchange) responseKinds() []queue.ResponseKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]queue.ResponseKind, len(f.responses))
	for i, r := range f.responses {
		kinds[i] = r.Kind
	}
	return kinds
}

func (f *fakeExchange) snapshot() []queue.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.Response, len(f.responses))
	copy(out, f.responses)
	return out
}

func (f *fakeExchange) lastError() *job.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.responses) - 1; i >= 0; i-- {
		if f.responses[i].Kind == queue.Error {
			return f.responses[i].Err
		}
	}
	return nil
}

// testHandler is a worker.Handler stub whose Process behavior is supplied
// per test.
type testHandler struct {
	mu           sync.Mutex
	processCalls int
	processFunc  func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error)
}

func (h *testHandler) Name() string             { return "test" }
func (h *testHandler) ShortDescription() string { return "test handler" }
func (h *testHandler) Description() string      { return "test handler" }
func (h *testHandler) Version() string          { return "0.0.0" }
func (h *testHandler) Init() error              { return nil }

func (h *testHandler) Process(sink worker.ProgressionSink, parameters *job.Job, result *job.Result) (*job.Result, error) {
	h.mu.Lock()
	h.processCalls++
	h.mu.Unlock()
	return h.processFunc(sink, parameters, result)
}

func (h *testHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.processCalls
}

func startProcessor(t *testing.T, handler worker.Handler, opts ...Option) (*fakeExchange, context.CancelFunc) {
	t.Helper()
	ex := newFakeExchange()
	p := New(ex, handler, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(cancel)
	return ex, cancel
}

func TestProcessor_SuccessfulJobCompletesInOrder(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex, _ := startProcessor(t, handler)

	j := &job.Job{JobID: 1}
	ex.push(queue.InitProcess, j)
	startAcker := ex.push(queue.StartProcess, j)

	require.Eventually(t, func() bool {
		acked, _, _ := startAcker.state()
		return acked
	}, time.Second, 5*time.Millisecond)

	kinds := ex.responseKinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, queue.Initialized, kinds[0])
	assert.Equal(t, queue.Started, kinds[1])
	assert.Equal(t, queue.Completed, kinds[2])
}

func TestProcessor_NotImplementedErrorRejectsWithRequeueAndEmitsNoCompleted(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		return nil, job.NewNotImplementedError(j.JobID, "process")
	}}
	ex, _ := startProcessor(t, handler)

	j := &job.Job{JobID: 2}
	ex.push(queue.InitProcess, j)
	startAcker := ex.push(queue.StartProcess, j)

	require.Eventually(t, func() bool {
		_, rejected, _ := startAcker.state()
		return rejected
	}, time.Second, 5*time.Millisecond)

	_, rejected, requeue := startAcker.state()
	assert.True(t, rejected)
	assert.True(t, requeue)

	for _, kind := range ex.responseKinds() {
		assert.NotEqual(t, queue.Completed, kind)
	}
	err := ex.lastError()
	require.NotNil(t, err)
	assert.Equal(t, job.KindNotImplemented, err.Kind)
}

func TestProcessor_ProgressionIsClamped(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		sink.Publish(j.JobID, 150)
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex, _ := startProcessor(t, handler)

	j := &job.Job{JobID: 3}
	ex.push(queue.InitProcess, j)
	ex.push(queue.StartProcess, j)

	require.Eventually(t, func() bool {
		for _, r := range ex.snapshot() {
			if r.Kind == queue.Completed {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	var found bool
	for _, r := range ex.snapshot() {
		if r.Kind == queue.Progression {
			require.Equal(t, 100, r.Progress.Progress)
			found = true
		}
	}
	assert.True(t, found, "expected a progression response")
}

func TestProcessor_RequirementsFailureSkipsHandlerAndRejectsWithRequeue(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex, _ := startProcessor(t, handler, WithPathChecker(func(string) bool { return false }))

	j, err := job.Parse([]byte(`{"job_id":4,"parameters":[{"id":"requirements","type":"requirements","value":{"paths":["/missing"]}}]}`), nil)
	require.NoError(t, err)

	initAcker := ex.push(queue.InitProcess, j)

	require.Eventually(t, func() bool {
		_, rejected, _ := initAcker.state()
		return rejected
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, handler.calls())
	jobErr := ex.lastError()
	require.NotNil(t, jobErr)
	assert.Equal(t, job.KindRequirements, jobErr.Kind)
}

func TestProcessor_DuplicateInitProcessIsRuntimeError(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		time.Sleep(50 * time.Millisecond)
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex, _ := startProcessor(t, handler)

	j := &job.Job{JobID: 5}
	ex.push(queue.InitProcess, j)
	secondInitAcker := ex.push(queue.InitProcess, j)

	require.Eventually(t, func() bool {
		acked, rejected, _ := secondInitAcker.state()
		return acked || rejected
	}, time.Second, 5*time.Millisecond)

	acked, _, _ := secondInitAcker.state()
	assert.True(t, acked, "a runtime-class error acks rather than rejects")

	jobErr := ex.lastError()
	require.NotNil(t, jobErr)
	assert.Equal(t, job.KindRuntime, jobErr.Kind)
}

func TestProcessor_StopProcessBeforeStartIsNoOpAck(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex, _ := startProcessor(t, handler)

	stopAcker := ex.push(queue.StopProcess, &job.Job{JobID: 6})

	require.Eventually(t, func() bool {
		acked, _, _ := stopAcker.state()
		return acked
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, ex.responseKinds())
}

func TestProcessor_RunReturnsNilOnStopWorker(t *testing.T) {
	handler := &testHandler{processFunc: func(sink worker.ProgressionSink, j *job.Job, result *job.Result) (*job.Result, error) {
		return result.WithStatus(job.StatusCompleted), nil
	}}
	ex := newFakeExchange()
	p := New(ex, handler, WithDrainTimeout(50*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	ex.push(queue.StopWorker, nil)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after StopWorker")
	}
}
