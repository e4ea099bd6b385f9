package queue

import "context"

// Acker is the opaque acknowledgement handle the exchange hands back with
// every delivered Order. The processor never sees the underlying transport
// delivery, only this capability.
type Acker interface {
	// Ack confirms the order's terminal response has been published.
	Ack() error
	// Reject signals the order could not be completed. When requeue is
	// true the broker (or local replay) may redeliver it.
	Reject(requeue bool) error
}

// Exchange is the uniform interface the processor drives: it never touches
// a transport directly, only this abstraction over it.
type Exchange interface {
	// NextOrder blocks until an order is available, the context is
	// cancelled, or the exchange is closed.
	NextOrder(ctx context.Context) (Order, Acker, error)

	// SendResponse publishes a response. It never blocks indefinitely;
	// a transport outage surfaces as an error rather than a stall.
	SendResponse(Response) error

	// Close releases the exchange's underlying resources.
	Close() error
}
