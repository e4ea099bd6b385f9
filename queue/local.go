package queue

import (
	"context"
	"fmt"
)

// localAcker is the no-op Acker a LocalExchange hands out: replayed orders
// have no broker delivery to settle. The ack/reject decision is recorded in
// its fields but not exposed to any caller.
type localAcker struct {
	acked    *bool
	rejected *bool
	requeue  *bool
}

func newLocalAcker() *localAcker {
	return &localAcker{acked: new(bool), rejected: new(bool), requeue: new(bool)}
}

func (a *localAcker) Ack() error {
	*a.acked = true
	return nil
}

func (a *localAcker) Reject(requeue bool) error {
	*a.rejected = true
	*a.requeue = requeue
	return nil
}

// LocalExchange is the in-process Exchange used to replay saved orders: two
// bounded FIFO channels, one carrying orders in, one carrying responses
// out. It never touches a network.
type LocalExchange struct {
	orders    chan Order
	ackers    chan Acker
	responses chan Response
	closed    chan struct{}
}

// NewLocalExchange builds a LocalExchange with the given channel capacity.
func NewLocalExchange(capacity int) *LocalExchange {
	return &LocalExchange{
		orders:    make(chan Order, capacity),
		ackers:    make(chan Acker, capacity),
		responses: make(chan Response, capacity),
		closed:    make(chan struct{}),
	}
}

// SendOrder enqueues an order for the processor to consume via NextOrder,
// pairing it with a fresh no-op Acker.
func (e *LocalExchange) SendOrder(order Order) error {
	select {
	case <-e.closed:
		return fmt.Errorf("queue: local exchange is closed")
	default:
	}
	e.orders <- order
	e.ackers <- newLocalAcker()
	return nil
}

// NextOrder implements Exchange.
func (e *LocalExchange) NextOrder(ctx context.Context) (Order, Acker, error) {
	select {
	case <-ctx.Done():
		return Order{}, nil, ctx.Err()
	case <-e.closed:
		return Order{}, nil, fmt.Errorf("queue: local exchange is closed")
	case order := <-e.orders:
		acker := <-e.ackers
		return order, acker, nil
	}
}

// SendResponse implements Exchange, publishing resp onto the response
// channel NextResponse drains.
func (e *LocalExchange) SendResponse(resp Response) error {
	select {
	case <-e.closed:
		return fmt.Errorf("queue: local exchange is closed")
	default:
	}
	e.responses <- resp
	return nil
}

// NextResponse blocks until a response is available or the exchange is
// closed, in which case it returns (Response{}, false).
func (e *LocalExchange) NextResponse() (Response, bool) {
	select {
	case resp, ok := <-e.responses:
		return resp, ok
	case <-e.closed:
		select {
		case resp, ok := <-e.responses:
			return resp, ok
		default:
			return Response{}, false
		}
	}
}

// Close implements Exchange, releasing any NextOrder/NextResponse callers
// blocked on this exchange.
func (e *LocalExchange) Close() error {
	select {
	case <-e.closed:
		return nil // already closed
	default:
		close(e.closed)
	}
	return nil
}
