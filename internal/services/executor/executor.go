// -----------------------------------------------------------------------
// Reply Executor - Paced posting of drafted replies
// -----------------------------------------------------------------------

package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/respondo/internal/interfaces"
	"github.com/ternarybob/respondo/internal/models"
	"github.com/ternarybob/respondo/internal/services/governor"
)

// Executor posts drafted replies against candidate posts. Every action
// passes two gates: the local pacing limiter (minimum spacing between
// our own actions) and the shared governor (platform budget windows).
type Executor struct {
	governor   *governor.Governor
	pace       *rate.Limiter
	candidates interfaces.CandidateStorage
	logger     arbor.ILogger
}

// New creates a reply executor. actionDelay is the minimum spacing
// between consecutive posted replies.
func New(gov *governor.Governor, actionDelay time.Duration, candidates interfaces.CandidateStorage, logger arbor.ILogger) *Executor {
	if actionDelay <= 0 {
		actionDelay = 5 * time.Second
	}
	return &Executor{
		governor:   gov,
		pace:       rate.NewLimiter(rate.Every(actionDelay), 1),
		candidates: candidates,
		logger:     logger,
	}
}

// PostReply navigates to the candidate post and submits the reply.
// Throttle signals get the governor's backoff-and-reload treatment;
// anything else fails the action outright. On success the candidate is
// marked acted so no later run replies to it again.
func (e *Executor) PostReply(ctx context.Context, act interfaces.Actioner, candidate *models.CandidateItem, reply string) error {
	if err := e.pace.Wait(ctx); err != nil {
		return err
	}
	if err := e.governor.Reserve(ctx); err != nil {
		return err
	}

	if err := act.Navigate(ctx, candidate.URL); err != nil {
		return fmt.Errorf("failed to open post: %w", err)
	}

	post := func() error {
		if err := act.Locate(ctx, interfaces.RoleReplyControl); err != nil {
			return err
		}
		if err := act.EnterReply(ctx, reply); err != nil {
			return err
		}
		return act.SubmitReply(ctx)
	}
	recover := func() error {
		return act.Reload(ctx)
	}

	if err := e.governor.WithBackoff(ctx, post, recover); err != nil {
		return fmt.Errorf("reply to %s failed: %w", candidate.URL, err)
	}

	if err := e.candidates.MarkActed(ctx, candidate.UserID, candidate.URL, reply); err != nil {
		// The reply is live; a bookkeeping failure must not look like
		// an action failure, but it has to be loud.
		e.logger.Error().
			Err(err).
			Str("url", candidate.URL).
			Msg("Reply posted but candidate could not be marked acted")
		return nil
	}

	e.logger.Info().
		Str("url", candidate.URL).
		Str("user_id", candidate.UserID).
		Msg("Reply posted")
	return nil
}

// IsControlFailure reports whether an action error came from a missing
// page control, which usually means the platform changed its markup
func IsControlFailure(err error) bool {
	return errors.Is(err, models.ErrControlNotFound)
}
