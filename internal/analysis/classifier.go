package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/fingerprint"
	"feedbackbot/internal/integrations/llm"

	"go.uber.org/zap"
)

const summaryPrefixRunes = 100

type DeterministicClassifier struct{}

func (DeterministicClassifier) Classify(_ context.Context, _ int64, text string) (domain.Classification, error) {
	return ClassifyDeterministic(text), nil
}

// ClassifyDeterministic derives sentiment and theme from the content
// fingerprint. The same text always produces the same classification.
func ClassifyDeterministic(text string) domain.Classification {
	return domain.Classification{
		Sentiment: domain.Sentiments[fingerprint.Mod(text, int64(len(domain.Sentiments)))],
		Theme:     domain.Themes[fingerprint.Mod(text, int64(len(domain.Themes)))],
		Summary:   "Mock summary: " + prefixRunes(text, summaryPrefixRunes) + "...",
		Mode:      domain.ModeDeterministic,
	}
}

func prefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type ReasoningClassifier struct {
	reasoner llm.Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReasoningClassifier(reasoner llm.Reasoner, callTimeout time.Duration, logger *zap.Logger) *ReasoningClassifier {
	return &ReasoningClassifier{reasoner: reasoner, timeout: callTimeout, logger: logger}
}

// Classify returns an error only when the reasoning call itself fails. An
// unusable answer degrades this item to deterministic classification.
func (c *ReasoningClassifier) Classify(ctx context.Context, id int64, text string) (domain.Classification, error) {
	resp, err := complete(ctx, c.reasoner, c.timeout, buildClassifyPrompt(text))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classifying feedback %d: %w", id, err)
	}

	parsed, err := parseClassification(resp)
	if err != nil {
		c.logger.Warn("llm classification unusable, using deterministic result",
			zap.Int64("feedback_id", id),
			zap.Error(err),
			zap.String("response", llm.Truncate(resp, 512)))
		return ClassifyDeterministic(text), nil
	}
	return parsed, nil
}

func buildClassifyPrompt(text string) string {
	return fmt.Sprintf(`Analyze this customer feedback and classify it.

Feedback: %s

Respond with JSON only, in exactly this shape:
{
    "sentiment": "%s",
    "theme": "%s",
    "summary": "A brief 1-2 sentence summary of the feedback"
}`, text, sentimentList(), themeList())
}

type classificationResponse struct {
	Sentiment *string `json:"sentiment"`
	Theme     *string `json:"theme"`
	Summary   *string `json:"summary"`
}

func parseClassification(resp string) (domain.Classification, error) {
	var raw classificationResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &raw); err != nil {
		return domain.Classification{}, &parseError{stage: "classification", err: err}
	}
	if raw.Sentiment == nil || raw.Theme == nil || raw.Summary == nil {
		return domain.Classification{}, &parseError{stage: "classification", err: errors.New("missing sentiment, theme or summary")}
	}
	sentiment, err := domain.ParseSentiment(*raw.Sentiment)
	if err != nil {
		return domain.Classification{}, &parseError{stage: "classification", err: err}
	}
	theme, err := domain.ParseTheme(*raw.Theme)
	if err != nil {
		return domain.Classification{}, &parseError{stage: "classification", err: err}
	}
	return domain.Classification{
		Sentiment: sentiment,
		Theme:     theme,
		Summary:   *raw.Summary,
		Mode:      domain.ModeReasoning,
	}, nil
}
