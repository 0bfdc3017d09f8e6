package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"feedbackbot/internal/config"

	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultGeminiModel = "gemini-2.5-flash"

const systemPrompt = "You are a product analyst who reads customer feedback. " +
	"Follow the requested output format exactly. When JSON is requested, respond with JSON only."

// Reasoner is the single operation the pipeline needs from a text-generation
// provider.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// New returns the configured provider, or nil when the deployment runs
// without one (no provider configured, or deterministic mode).
func New(cfg config.Config, logger *zap.Logger) (Reasoner, error) {
	if !cfg.ReasoningEnabled() {
		return nil, nil
	}
	switch cfg.LLMProvider {
	case "anthropic":
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropic(cfg.AnthropicAPIKey, model, "", logger), nil
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(cfg.OpenAIAPIKey, model, cfg.OpenAIBaseURL, logger), nil
	case "gemini":
		model := cfg.LLMModel
		if model == "" {
			model = defaultGeminiModel
		}
		return NewGemini(context.Background(), cfg.GeminiAPIKey, model, logger)
	default:
		return nil, fmt.Errorf("unknown llm_provider '%s'", cfg.LLMProvider)
	}
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// ExtractJSON returns the JSON payload of a model response, unwrapping a
// fenced code block when the model added one.
func ExtractJSON(response string) string {
	if m := fencedBlockRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(response)
}

// Truncate shortens s to at most max runes for log messages and prompts.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + fmt.Sprintf("... [truncated, total_length=%d]", len(r))
}
