package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/respondo/internal/models"
)

// Delivery is one received queue message plus its redelivery bookkeeping
type Delivery struct {
	Message      *models.QueueMessage
	ReceiptID    string
	ReceiveCount int
}

// QueueManager manages the persistent at-least-once message queue.
// Receive returns the delivery together with a delete function; calling
// the delete function acknowledges the message so it is never redelivered.
type QueueManager interface {
	Enqueue(ctx context.Context, msg *models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error
	Receive(ctx context.Context) (*Delivery, func() error, error)
	// Extend pushes a received message's visibility deadline further out,
	// for jobs that legitimately run long.
	Extend(ctx context.Context, receiptID string, duration time.Duration) error
	Length(ctx context.Context) (int, error)
	Close() error
}
