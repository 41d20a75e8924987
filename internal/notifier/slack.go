package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/notifyhub/syften-relay/internal/render"
)

// SlackOptions configures the Slack Web API client.
type SlackOptions struct {
	// APIURL overrides https://slack.com/api/ (must end with a slash).
	APIURL  string
	Timeout time.Duration
}

// SlackChannel posts notifications with chat.postMessage using a bot token.
// The underlying client is safe for concurrent use.
type SlackChannel struct {
	client *slack.Client
}

func NewSlackChannel(token string, opts SlackOptions) *SlackChannel {
	options := []slack.Option{
		slack.OptionHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	if opts.APIURL != "" {
		options = append(options, slack.OptionAPIURL(opts.APIURL))
	}
	return &SlackChannel{client: slack.New(token, options...)}
}

// Deliver posts the notification to the destination channel id or name.
func (c *SlackChannel) Deliver(ctx context.Context, destination string, n render.Notification) error {
	_, _, err := c.client.PostMessageContext(ctx, destination,
		slack.MsgOptionText(n.Text, false),
		slack.MsgOptionBlocks(slackBlocks(n.Blocks)...),
	)
	if err != nil {
		return classifySlackError(err)
	}
	return nil
}

// classifySlackError separates errors Slack reported from transport errors.
func classifySlackError(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &APIError{Code: "ratelimited", Status: http.StatusTooManyRequests, RetryAfter: rateLimited.RetryAfter}
	}

	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return &APIError{Code: resp.Err}
	}

	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return &APIError{Code: status.Status, Status: status.Code}
	}

	return fmt.Errorf("post message: %w", err)
}

func slackBlocks(blocks []render.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case render.BlockHeader:
			out = append(out, slack.NewHeaderBlock(slackText(*b.Text)))
		case render.BlockSection:
			out = append(out, slack.NewSectionBlock(slackText(*b.Text), nil, nil))
		case render.BlockActions:
			if b.Button == nil {
				continue
			}
			btn := slack.NewButtonBlockElement("", "", slackText(b.Button.Text))
			btn.URL = b.Button.URL
			btn.Style = slack.Style(b.Button.Style)
			out = append(out, slack.NewActionBlock("", btn))
		case render.BlockDivider:
			out = append(out, slack.NewDividerBlock())
		case render.BlockContext:
			elements := make([]slack.MixedElement, 0, len(b.Context))
			for _, t := range b.Context {
				elements = append(elements, slackText(t))
			}
			out = append(out, slack.NewContextBlock("", elements...))
		}
	}
	return out
}

func slackText(t render.Text) *slack.TextBlockObject {
	emoji := t.Emoji != nil && *t.Emoji
	return slack.NewTextBlockObject(t.Type, t.Text, emoji, false)
}

// compile-time check that SlackChannel implements Channel
var _ Channel = (*SlackChannel)(nil)
