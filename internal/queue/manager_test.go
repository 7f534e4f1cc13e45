package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/models"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *Manager {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "queue-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	opts := badger.DefaultOptions(tmpDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, arbor.NewLogger(), "test_jobs", visibility, maxReceive)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestEnqueueReceiveDelete(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	msg := &models.QueueMessage{JobID: "job-1", UserID: "user-1", Type: models.MessageTypeEngagement}
	if err := m.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	delivery, deleteFn, err := m.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if delivery.Message.JobID != "job-1" {
		t.Errorf("Wrong message: %+v", delivery.Message)
	}
	if delivery.ReceiveCount != 1 {
		t.Errorf("Expected receive count 1, got %d", delivery.ReceiveCount)
	}

	// Message is invisible while claimed
	if _, _, err := m.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected ErrNoMessage while claimed, got %v", err)
	}

	if err := deleteFn(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Deleted message never comes back
	if _, _, err := m.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected ErrNoMessage after delete, got %v", err)
	}

	length, err := m.Length(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got %d", length)
	}
}

func TestRedeliveryAfterVisibilityTimeout(t *testing.T) {
	m := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	if err := m.Enqueue(ctx, &models.QueueMessage{JobID: "job-2", UserID: "user-1"}); err != nil {
		t.Fatal(err)
	}

	// Receive without acknowledging
	if _, _, err := m.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)

	delivery, deleteFn, err := m.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected redelivery, got %v", err)
	}
	if delivery.Message.JobID != "job-2" {
		t.Errorf("Wrong redelivered message: %+v", delivery.Message)
	}
	if delivery.ReceiveCount != 2 {
		t.Errorf("Expected receive count 2, got %d", delivery.ReceiveCount)
	}
	deleteFn()
}

func TestMaxReceiveDropsMessage(t *testing.T) {
	m := newTestQueue(t, 10*time.Millisecond, 2)
	ctx := context.Background()

	if err := m.Enqueue(ctx, &models.QueueMessage{JobID: "job-3", UserID: "user-1"}); err != nil {
		t.Fatal(err)
	}

	// Burn through the receive budget without acknowledging
	for i := 0; i < 2; i++ {
		if _, _, err := m.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	// Third receive finds the poison pill and drops it
	if _, _, err := m.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected message dropped after max receives, got %v", err)
	}

	length, err := m.Length(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if length != 0 {
		t.Errorf("Dropped message still stored, length=%d", length)
	}
}

func TestEnqueueWithDelay(t *testing.T) {
	m := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	if err := m.EnqueueWithDelay(ctx, &models.QueueMessage{JobID: "job-4", UserID: "user-1"}, 60*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if _, _, err := m.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Delayed message should not be visible yet, got %v", err)
	}

	time.Sleep(90 * time.Millisecond)

	delivery, deleteFn, err := m.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected delayed message to surface, got %v", err)
	}
	if delivery.Message.JobID != "job-4" {
		t.Errorf("Wrong message: %+v", delivery.Message)
	}
	deleteFn()
}

func TestExtendKeepsMessageClaimed(t *testing.T) {
	m := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	if err := m.Enqueue(ctx, &models.QueueMessage{JobID: "job-5", UserID: "user-1"}); err != nil {
		t.Fatal(err)
	}

	delivery, deleteFn, err := m.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Extend(ctx, delivery.ReceiptID, time.Minute); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	// Past the original visibility window the message must stay claimed
	time.Sleep(80 * time.Millisecond)
	if _, _, err := m.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Extended message should stay invisible, got %v", err)
	}

	deleteFn()
}
