package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/fingerprint"
	"feedbackbot/internal/integrations/llm"

	"go.uber.org/zap"
)

type DeterministicEvaluator struct{}

func (DeterministicEvaluator) Evaluate(_ context.Context, _ int64, text string, c domain.Classification) (domain.Score, error) {
	return EvaluateDeterministic(text, c), nil
}

// EvaluateDeterministic derives urgency from the last decimal digit of the
// fingerprint and impact from the digit before it.
func EvaluateDeterministic(text string, c domain.Classification) domain.Score {
	urgency := fingerprint.Mod(text, 10) + 1
	impact := fingerprint.DivMod(text, 10, 10) + 1
	justification := fmt.Sprintf("Mock justification for %s with %s sentiment", c.Theme, c.Sentiment)
	// both ratings are in [1,10] by construction
	score, _ := domain.NewScore(urgency, impact, justification)
	score.Mode = domain.ModeDeterministic
	return score
}

type ReasoningEvaluator struct {
	reasoner llm.Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

func NewReasoningEvaluator(reasoner llm.Reasoner, callTimeout time.Duration, logger *zap.Logger) *ReasoningEvaluator {
	return &ReasoningEvaluator{reasoner: reasoner, timeout: callTimeout, logger: logger}
}

// Evaluate returns an error only when the reasoning call itself fails. An
// unusable answer degrades this item to deterministic scoring.
func (e *ReasoningEvaluator) Evaluate(ctx context.Context, id int64, text string, c domain.Classification) (domain.Score, error) {
	resp, err := complete(ctx, e.reasoner, e.timeout, buildEvaluatePrompt(text, c))
	if err != nil {
		return domain.Score{}, fmt.Errorf("evaluating feedback %d: %w", id, err)
	}

	score, err := parseEvaluation(resp)
	if err != nil {
		e.logger.Warn("llm evaluation unusable, using deterministic result",
			zap.Int64("feedback_id", id),
			zap.Error(err),
			zap.String("response", llm.Truncate(resp, 512)))
		return EvaluateDeterministic(text, c), nil
	}
	return score, nil
}

func buildEvaluatePrompt(text string, c domain.Classification) string {
	return fmt.Sprintf(`Evaluate this classified customer feedback.

Feedback: %s
Sentiment: %s
Theme: %s
Summary: %s

Respond with JSON only, in exactly this shape:
{
    "urgency": <integer 1-10, how quickly this needs to be addressed>,
    "impact": <integer 1-10, how much business impact addressing this would have>,
    "justification": "Clear explanation for these scores"
}`, text, c.Sentiment, c.Theme, c.Summary)
}

type evaluationResponse struct {
	Urgency       json.RawMessage `json:"urgency"`
	Impact        json.RawMessage `json:"impact"`
	Justification *string         `json:"justification"`
}

func parseEvaluation(resp string) (domain.Score, error) {
	var raw evaluationResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp)), &raw); err != nil {
		return domain.Score{}, &parseError{stage: "evaluation", err: err}
	}
	if raw.Justification == nil {
		return domain.Score{}, &parseError{stage: "evaluation", err: errors.New("missing justification")}
	}
	urgency, err := coerceRating("urgency", raw.Urgency)
	if err != nil {
		return domain.Score{}, &parseError{stage: "evaluation", err: err}
	}
	impact, err := coerceRating("impact", raw.Impact)
	if err != nil {
		return domain.Score{}, &parseError{stage: "evaluation", err: err}
	}
	score, err := domain.NewScore(urgency, impact, *raw.Justification)
	if err != nil {
		return domain.Score{}, &parseError{stage: "evaluation", err: err}
	}
	score.Mode = domain.ModeReasoning
	return score, nil
}

// coerceRating accepts a JSON number (fractions truncate toward zero) or a
// string holding an integer.
func coerceRating(field string, raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing %s", field)
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if math.IsNaN(asNumber) || math.IsInf(asNumber, 0) {
			return 0, fmt.Errorf("%s is not finite", field)
		}
		return int(asNumber), nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(asString))
		if err != nil {
			return 0, fmt.Errorf("%s %q is not an integer", field, asString)
		}
		return v, nil
	}

	return 0, fmt.Errorf("%s has unsupported type: %s", field, string(raw))
}
