package slackbot

import (
	"context"
	"errors"
	"fmt"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/httpx"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	maxSectionChars = 3000
	headerText      = "Weekly Feedback Priority Report"
	DefaultChannel  = "#feedback-reports"
)

// Channel posts reports to one Slack channel through the Web API.
type Channel struct {
	api     *slack.Client
	channel string
	logger  *zap.Logger
}

// New returns a Channel. An empty token yields an unconfigured channel.
func New(token, channel string, logger *zap.Logger, opts ...slack.Option) *Channel {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Channel{channel: channel, logger: logger}
	if token != "" {
		opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
		c.api = slack.New(token, opts...)
	}
	return c
}

func (c *Channel) Name() string { return "slack" }

func (c *Channel) IsConfigured() bool { return c.api != nil }

func (c *Channel) Deliver(ctx context.Context, report domain.Report) error {
	return c.PostMessage(ctx, report.Excerpt(maxSectionChars))
}

// PostMessage posts text as a header plus one mrkdwn section.
func (c *Channel) PostMessage(ctx context.Context, text string) error {
	if c.api == nil {
		return errors.New("slack is not configured")
	}
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, headerText, true, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	_, ts, err := c.api.PostMessageContext(ctx, c.channel,
		slack.MsgOptionText("*"+headerText+"*", false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", c.channel, err)
	}
	c.logger.Info("report posted to slack", zap.String("channel", c.channel), zap.String("ts", ts))
	return nil
}
