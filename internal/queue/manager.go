// -----------------------------------------------------------------------
// Badger Queue - Persistent at-least-once job queue
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
)

// envelope is the internal record stored in Badger. The visibility index
// key carries VisibleAt so ready messages can be found with a prefix scan
// in timestamp order.
type envelope struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager implements a persistent queue using BadgerDB.
// Delivery is at-least-once: a received message becomes invisible for the
// visibility timeout and reappears unless its delete function is called.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, logger arbor.ILogger, queueName string, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 30 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 5
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Enqueue adds a message to the queue, visible immediately
func (m *Manager) Enqueue(ctx context.Context, msg *models.QueueMessage) error {
	return m.enqueue(msg, time.Now())
}

// EnqueueWithDelay adds a message that becomes visible after the delay.
// Used for retry backoff after a failed job run.
func (m *Manager) EnqueueWithDelay(ctx context.Context, msg *models.QueueMessage, delay time.Duration) error {
	return m.enqueue(msg, time.Now().Add(delay))
}

func (m *Manager) enqueue(msg *models.QueueMessage, visibleAt time.Time) error {
	env := envelope{
		ID:         uuid.New().String(),
		Body:       *msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  visibleAt,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(env.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, env.ID), []byte{})
	})
}

// Receive pulls the next visible message. Returns the delivery and a
// delete function that acknowledges it; models.ErrNoMessage when the
// queue has nothing ready.
func (m *Manager) Receive(ctx context.Context) (*interfaces.Delivery, func() error, error) {
	var env envelope
	var msgID string

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp; the first future entry means
			// nothing after it is ready either.
			if ts.After(now) {
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up and keep scanning
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}

			// Poison-pill guard: drop messages that keep coming back
			if env.ReceiveCount >= m.maxReceive {
				m.logger.Warn().
					Str("job_id", env.Body.JobID).
					Int("receive_count", env.ReceiveCount).
					Msg("Message exceeded max receive count, dropping")
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			// Claim: bump receive count and push visibility out
			env.ReceiveCount++
			env.VisibleAt = now.Add(m.visibilityTimeout)

			data, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(m.msgKey(id), data); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(env.VisibleAt, id), []byte{}); err != nil {
				return err
			}

			msgID = id
			found = true
			break
		}

		if !found {
			return models.ErrNoMessage
		}
		return nil
	})

	if err != nil {
		return nil, nil, err
	}

	delivery := &interfaces.Delivery{
		Message:      &env.Body,
		ReceiptID:    msgID,
		ReceiveCount: env.ReceiveCount,
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already deleted
				}
				return err
			}

			var current envelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			// Visibility may have moved since receive; delete by the
			// current index position.
			if err := txn.Delete(m.indexKey(current.VisibleAt, msgID)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	return delivery, deleteFn, nil
}

// Extend pushes a received message's visibility deadline further out
func (m *Manager) Extend(ctx context.Context, receiptID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(receiptID))
		if err != nil {
			return fmt.Errorf("failed to load message %s: %w", receiptID, err)
		}

		var env envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		}); err != nil {
			return err
		}

		oldVisibleAt := env.VisibleAt
		env.VisibleAt = time.Now().Add(duration)

		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(receiptID), data); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(oldVisibleAt, receiptID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(m.indexKey(env.VisibleAt, receiptID), []byte{})
	})
}

// Length returns the number of messages currently stored, visible or not
func (m *Manager) Length(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the queue manager. The DB is managed externally.
func (m *Manager) Close() error {
	return nil
}

// Helpers

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 22 { // 20 digits + colon + at least 1 id char
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
