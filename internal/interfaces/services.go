package interfaces

import (
	"context"

	"github.com/ternarybob/respondo/internal/models"
)

// Session is an established, authenticated browser session for one user.
// Release returns the underlying browser to its pool; it must be called
// exactly once when the job is done with the session.
type Session struct {
	UserID  string
	Driver  Driver
	Release func()
}

// SessionValidator establishes authenticated sessions from stored
// credentials
type SessionValidator interface {
	// Establish loads the user's stored session, injects it into a
	// browser and verifies it is actually logged in. Returns
	// models.ErrNoValidSession when no usable session exists.
	Establish(ctx context.Context, userID string) (*Session, error)
}

// Commenter drafts reply text for a candidate post
type Commenter interface {
	// Draft produces a short reply to the given post content. The
	// engagement figures and options steer tone and shape.
	Draft(ctx context.Context, candidate *models.CandidateItem, opts models.ReplyOptions) (string, error)
}
