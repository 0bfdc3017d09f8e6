package llm

import (
	"context"
	"errors"
	"fmt"

	"feedbackbot/internal/httpx"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

type Anthropic struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropic builds a provider backed by the Messages API. baseURL is only
// set by tests.
func NewAnthropic(apiKey, model, baseURL string, logger *zap.Logger) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
		// the pipeline owns retries; SDK retries would multiply them
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			a.logger.Debug("llm anthropic response",
				zap.String("model", a.model),
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens))
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in Anthropic response")
}
