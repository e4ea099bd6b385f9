package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/evalgo/mcai-worker-sdk/job"
)

const (
	workerResponseExchange = "worker_response"
	workerStatusExchange   = "worker_status"

	ordersConsumerTag  = "amqp_worker"
	controlConsumerTag = "status_amqp_worker"
)

// BrokerConfig names the queue topology a BrokerExchange declares and the
// collaborator it uses to resolve credential parameters.
type BrokerConfig struct {
	// Queue is the inbound job queue name ("job_<name>").
	Queue string
	// DirectMessaging is the inbound control queue name
	// ("direct_messaging.<instance_id>").
	DirectMessaging string
	// WorkerName is the routing key used on the worker_response and
	// worker_status exchanges.
	WorkerName string
	// CredentialResolver resolves credential parameters at Job parse time.
	CredentialResolver job.CredentialResolver
}

func (c BrokerConfig) completedQueue() string { return c.Queue + "_completed" }
func (c BrokerConfig) errorQueue() string      { return c.Queue + "_error" }

// pendingOrder is an Order queued internally by BrokerExchange, alongside
// the Acker the delivery it was derived from should be settled through.
type pendingOrder struct {
	order Order
	acker Acker
}

// deliveryAcker adapts a single amqp.Delivery to the Acker interface. A
// delivery split into an InitProcess/StartProcess pair shares one
// deliveryAcker, and only the first settlement reaches the channel.
// A second Ack/Reject on the same delivery tag makes AMQP close the
// channel, so once is all either sibling order gets.
type deliveryAcker struct {
	delivery amqp.Delivery

	mu      sync.Mutex
	settled bool
}

func (a *deliveryAcker) Ack() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return nil
	}
	a.settled = true
	return a.delivery.Ack(false)
}

func (a *deliveryAcker) Reject(requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return nil
	}
	a.settled = true
	return a.delivery.Reject(requeue)
}

// BrokerExchange is the AMQP-backed Exchange implementation. It owns the
// channel, declares the worker's full queue topology on construction, and
// maps OrderMessage/ResponseMessage to AMQP deliveries and publishes. Only
// this type touches the transport; the processor only ever sees Order,
// Response and Acker values.
type BrokerExchange struct {
	cfg  BrokerConfig
	conn AMQPConnection
	ch   AMQPChannel

	orders  <-chan amqp.Delivery
	control <-chan amqp.Delivery

	mu      sync.Mutex
	pending []pendingOrder
}

// NewBrokerExchange dials url, opens a channel with prefetch 1, declares
// the worker's queues and exchanges, and binds the two consumer tags: one
// for job orders on cfg.Queue, one for status/control on
// cfg.DirectMessaging.
func NewBrokerExchange(dialer AMQPDialer, url string, cfg BrokerConfig) (*BrokerExchange, error) {
	conn, err := dialer.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: opening channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: setting prefetch: %w", err)
	}

	be := &BrokerExchange{cfg: cfg, conn: conn, ch: ch}

	if err := be.declareTopology(); err != nil {
		conn.Close()
		return nil, err
	}

	orders, err := ch.Consume(cfg.Queue, ordersConsumerTag, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: consuming %s: %w", cfg.Queue, err)
	}
	control, err := ch.Consume(cfg.DirectMessaging, controlConsumerTag, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: consuming %s: %w", cfg.DirectMessaging, err)
	}

	be.orders = orders
	be.control = control
	return be, nil
}

func (b *BrokerExchange) declareTopology() error {
	for _, q := range []string{b.cfg.Queue, b.cfg.completedQueue(), b.cfg.errorQueue(), b.cfg.DirectMessaging} {
		if _, err := b.ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue: declaring %s: %w", q, err)
		}
	}
	for _, ex := range []string{workerResponseExchange, workerStatusExchange} {
		if err := b.ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue: declaring exchange %s: %w", ex, err)
		}
	}
	return nil
}

// NextOrder implements Exchange. A single job-queue delivery yields two
// orders — InitProcess then StartProcess, sharing one Acker — queued
// internally and drained before the next AMQP delivery is read.
func (b *BrokerExchange) NextOrder(ctx context.Context) (Order, Acker, error) {
	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			p := b.pending[0]
			b.pending = b.pending[1:]
			b.mu.Unlock()
			return p.order, p.acker, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Order{}, nil, ctx.Err()

		case d, ok := <-b.orders:
			if !ok {
				return Order{}, nil, fmt.Errorf("queue: orders channel closed")
			}
			if err := b.enqueueJobDelivery(d); err != nil {
				return Order{}, &deliveryAcker{delivery: d}, err
			}

		case d, ok := <-b.control:
			if !ok {
				return Order{}, nil, fmt.Errorf("queue: control channel closed")
			}
			order, err := b.decodeControlDelivery(d)
			if err != nil {
				return Order{}, &deliveryAcker{delivery: d}, err
			}
			return order, &deliveryAcker{delivery: d}, nil
		}
	}
}

func (b *BrokerExchange) enqueueJobDelivery(d amqp.Delivery) error {
	j, err := job.Parse(d.Body, b.cfg.CredentialResolver)
	if err != nil {
		return err
	}

	ak := &deliveryAcker{delivery: d}
	b.mu.Lock()
	b.pending = append(b.pending,
		pendingOrder{Order{Kind: InitProcess, Job: j}, ak},
		pendingOrder{Order{Kind: StartProcess, Job: j}, ak},
	)
	b.mu.Unlock()
	return nil
}

// controlWire is the direct-messaging queue's wire shape: a job queue
// payload plus a type discriminator naming which control OrderMessage it
// carries. The original SDK's broker message format doesn't name this
// shape explicitly (see DESIGN.md); "parameters" is reassembled into a
// plain job payload so job.Parse can build the Job the same way it does
// for job-queue orders.
type controlWire struct {
	Type       string          `json:"type"`
	JobID      uint64          `json:"job_id"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type reassembledJob struct {
	JobID      uint64          `json:"job_id"`
	Parameters json.RawMessage `json:"parameters"`
}

func (b *BrokerExchange) decodeControlDelivery(d amqp.Delivery) (Order, error) {
	var wire controlWire
	if err := json.Unmarshal(d.Body, &wire); err != nil {
		return Order{}, job.NewParseError("malformed control message", err)
	}

	if wire.Type == "stop_worker" {
		return Order{Kind: StopWorker}, nil
	}

	params := wire.Parameters
	if params == nil {
		params = json.RawMessage("[]")
	}
	body, err := json.Marshal(reassembledJob{JobID: wire.JobID, Parameters: params})
	if err != nil {
		return Order{}, job.NewRuntimeError("reassembling control message", err)
	}
	j, err := job.Parse(body, b.cfg.CredentialResolver)
	if err != nil {
		return Order{}, err
	}

	switch wire.Type {
	case "status":
		return Order{Kind: Status, Job: j}, nil
	case "stop_process":
		return Order{Kind: StopProcess, Job: j}, nil
	default:
		return Order{}, job.NewParseError(fmt.Sprintf("unknown control message type %q", wire.Type), nil)
	}
}

// SendResponse implements Exchange, publishing resp to the destination its
// Kind maps to per the broker message format's queue layout. It never acks
// or rejects a delivery — that stays the processor's job through the Acker
// NextOrder returned.
func (b *BrokerExchange) SendResponse(resp Response) error {
	switch resp.Kind {
	case Completed:
		return b.publishJSON(b.cfg.completedQueue(), "", resp.Result)

	case Error:
		return b.publishError(resp.Err)

	case Progression:
		return b.publishJSON(workerResponseExchange, b.cfg.WorkerName, resp.Progress)

	case Initialized, Started:
		return b.publishJSON(workerResponseExchange, b.cfg.WorkerName, resp.Result)

	case WorkerCreated:
		return b.publishJSON(workerStatusExchange, b.cfg.WorkerName, resp.Configuration)

	case WorkerInitialized, WorkerStarted:
		return b.publishJSON(workerStatusExchange, b.cfg.WorkerName, resp.Result)

	default:
		return fmt.Errorf("queue: unhandled response kind %v", resp.Kind)
	}
}

// publishError implements the Error response's split routing: requirements
// and not-implemented failures are left for the processor to reject with
// requeue and are never published, everything else goes to the error
// queue.
func (b *BrokerExchange) publishError(err *job.Error) error {
	if err == nil {
		return fmt.Errorf("queue: error response missing payload")
	}
	if err.Kind == job.KindRequirements || err.Kind == job.KindNotImplemented {
		return nil
	}
	return b.publishJSON(b.cfg.errorQueue(), "", newErrorBody(err))
}

func (b *BrokerExchange) publishJSON(destination, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encoding response: %w", err)
	}

	exchange := ""
	key := destination
	if routingKey != "" {
		exchange = destination
		key = routingKey
	}

	return b.ch.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close implements Exchange.
func (b *BrokerExchange) Close() error {
	chErr := b.ch.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
