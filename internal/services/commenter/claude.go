// -----------------------------------------------------------------------
// Claude Commenter - Reply drafting via the Anthropic Messages API
// -----------------------------------------------------------------------

package commenter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/respondo/internal/common"
	"github.com/ternarybob/respondo/internal/models"
)

const systemPrompt = `You write short, genuine replies to social feed posts on behalf of a professional.
Rules:
- React to the substance of the post, never to its popularity.
- One to three sentences unless asked for longer.
- No quotation marks around the reply, no preamble, output the reply text only.
- Never mention being an assistant or that the reply was generated.`

// ClaudeCommenter drafts replies with the Anthropic Messages API
type ClaudeCommenter struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      arbor.ILogger
}

// NewClaudeCommenter creates a commenter from reply configuration
func NewClaudeCommenter(config *common.ReplyConfig, timeout time.Duration, logger arbor.ILogger) (*ClaudeCommenter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY, RESPONDO_REPLY_API_KEY, or reply.api_key in config)")
	}

	model := config.Model
	if model == "" {
		model = "claude-haiku-3-5-20241022"
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Dur("timeout", timeout).
		Msg("Claude commenter initialized")

	return &ClaudeCommenter{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// Draft produces a reply to the candidate post. Engagement figures and
// job options steer tone and shape through the prompt.
func (c *ClaudeCommenter) Draft(ctx context.Context, candidate *models.CandidateItem, opts models.ReplyOptions) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(c.buildPrompt(candidate, opts)),
			),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	resp, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return "", fmt.Errorf("reply drafting failed: %w", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", fmt.Errorf("empty reply from model")
	}

	c.logger.Debug().
		Str("url", candidate.URL).
		Int("reply_length", len(text)).
		Msg("Reply drafted")

	return text, nil
}

func (c *ClaudeCommenter) buildPrompt(candidate *models.CandidateItem, opts models.ReplyOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Post by %s", orUnknown(candidate.AuthorName))
	if candidate.Reactions > 0 || candidate.Replies > 0 {
		fmt.Fprintf(&b, " (%d reactions, %d replies)", candidate.Reactions, candidate.Replies)
	}
	b.WriteString(":\n\n")
	b.WriteString(candidate.Content)
	b.WriteString("\n\nWrite a reply.")

	if opts.Tone != "" {
		fmt.Fprintf(&b, " Tone: %s.", opts.Tone)
	}
	switch opts.Length {
	case "short":
		b.WriteString(" Keep it to one sentence.")
	case "long":
		b.WriteString(" Up to five sentences is fine.")
	}
	if opts.WantEmoji {
		b.WriteString(" A single fitting emoji is welcome.")
	} else {
		b.WriteString(" No emoji.")
	}
	if opts.WantHashtags {
		b.WriteString(" End with one relevant hashtag.")
	} else {
		b.WriteString(" No hashtags.")
	}

	return b.String()
}

func orUnknown(name string) string {
	if name == "" {
		return "an unknown author"
	}
	return name
}
