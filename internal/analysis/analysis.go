// Package analysis implements the two per-item stages of the feedback
// pipeline: classification (sentiment, theme, summary) and evaluation
// (urgency, impact, justification). Each stage has a deterministic
// implementation driven by the content fingerprint and a reasoning
// implementation that delegates to a text-generation provider and degrades to
// the deterministic one when the provider's answer cannot be used.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/integrations/llm"
)

type Classifier interface {
	Classify(ctx context.Context, id int64, text string) (domain.Classification, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, id int64, text string, c domain.Classification) (domain.Score, error)
}

var errEmptyResponse = errors.New("empty response")

// complete runs one bounded reasoning call. An empty answer counts as a call
// failure so the caller retries instead of degrading.
func complete(ctx context.Context, reasoner llm.Reasoner, timeout time.Duration, prompt string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := reasoner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp) == "" {
		return "", errEmptyResponse
	}
	return resp, nil
}

func themeList() string {
	names := make([]string, len(domain.Themes))
	for i, th := range domain.Themes {
		names[i] = string(th)
	}
	return strings.Join(names, "|")
}

func sentimentList() string {
	names := make([]string, len(domain.Sentiments))
	for i, s := range domain.Sentiments {
		names[i] = string(s)
	}
	return strings.Join(names, "|")
}

type parseError struct {
	stage string
	err   error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("parsing %s response: %v", e.stage, e.err)
}

func (e *parseError) Unwrap() error { return e.err }
