// -----------------------------------------------------------------------
// Queue Message - Payload delivered through the durable job queue
// -----------------------------------------------------------------------

package models

import "errors"

// Sentinel errors shared across the worker pipeline
var (
	// ErrNoMessage indicates an empty queue on receive
	ErrNoMessage = errors.New("no message available")
	// ErrControlNotFound indicates a page control could not be located
	// through any of its known shapes
	ErrControlNotFound = errors.New("control not found")
	// ErrNoValidSession indicates the user has no usable stored session
	ErrNoValidSession = errors.New("no valid session for user")
)

// MessageType distinguishes queue payloads
type MessageType string

const (
	MessageTypeEngagement MessageType = "engagement"
)

// QueueMessage is the payload enqueued per job. The job document itself
// stays in storage; the message only carries identity.
type QueueMessage struct {
	JobID  string      `json:"job_id"`
	UserID string      `json:"user_id"`
	Type   MessageType `json:"type"`
}
