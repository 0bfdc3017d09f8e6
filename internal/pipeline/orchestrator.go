// Package pipeline drives one feedback item through classification and
// evaluation and persists the outcome. Reasoning failures are retried a bounded
// number of times and then degrade to deterministic results, so only
// persistence errors ever reach the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackbot/internal/analysis"
	"feedbackbot/internal/config"
	"feedbackbot/internal/domain"
	"feedbackbot/internal/integrations/llm"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 60 * time.Second
	defaultConcurrency = 4
)

type Store interface {
	InsertFeedback(ctx context.Context, text, source string) (int64, error)
	UpdateClassification(ctx context.Context, id int64, c domain.Classification) error
	InsertScore(ctx context.Context, id int64, score domain.Score) error
	FetchByID(ctx context.Context, id int64) (domain.Record, bool, error)
}

type Options struct {
	// Mode is config.ModeAuto or config.ModeDeterministic.
	Mode        string
	Reasoner    llm.Reasoner
	MaxAttempts int
	CallTimeout time.Duration
	Concurrency int
	Logger      *zap.Logger
}

type Orchestrator struct {
	store       Store
	classifier  analysis.Classifier
	evaluator   analysis.Evaluator
	reasoning   bool
	maxAttempts int
	concurrency int
	logger      *zap.Logger
}

func New(store Store, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	o := &Orchestrator{
		store:       store,
		maxAttempts: opts.MaxAttempts,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if opts.Reasoner != nil && opts.Mode != config.ModeDeterministic {
		o.reasoning = true
		o.classifier = analysis.NewReasoningClassifier(opts.Reasoner, opts.CallTimeout, opts.Logger)
		o.evaluator = analysis.NewReasoningEvaluator(opts.Reasoner, opts.CallTimeout, opts.Logger)
	} else {
		o.classifier = analysis.DeterministicClassifier{}
		o.evaluator = analysis.DeterministicEvaluator{}
	}
	return o
}

// Reasoning reports whether items go through the reasoning capability first.
func (o *Orchestrator) Reasoning() bool {
	return o.reasoning
}

type state int

const (
	stateAttempt state = iota
	stateRetry
	stateDegrade
	stateDone
)

// analyze runs the classify+evaluate pair as one unit. A failure in either
// stage fails the whole attempt.
func (o *Orchestrator) analyze(ctx context.Context, id int64, text string) (domain.Classification, domain.Score) {
	var (
		c       domain.Classification
		s       domain.Score
		err     error
		attempt = 1
	)
	if !o.reasoning {
		c, s = o.deterministic(text)
		return c, s
	}

	st := stateAttempt
	for st != stateDone {
		switch st {
		case stateAttempt:
			c, s, err = o.attempt(ctx, id, text)
			if err == nil {
				st = stateDone
				continue
			}
			o.logger.Warn("analysis attempt failed",
				zap.Int64("feedback_id", id),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", o.maxAttempts),
				zap.Error(err))
			st = stateRetry
		case stateRetry:
			if attempt >= o.maxAttempts || ctx.Err() != nil {
				st = stateDegrade
				continue
			}
			attempt++
			st = stateAttempt
		case stateDegrade:
			o.logger.Warn("reasoning unavailable, using deterministic results",
				zap.Int64("feedback_id", id),
				zap.Int("attempts", attempt))
			c, s = o.deterministic(text)
			st = stateDone
		}
	}
	return c, s
}

func (o *Orchestrator) attempt(ctx context.Context, id int64, text string) (domain.Classification, domain.Score, error) {
	c, err := o.classifier.Classify(ctx, id, text)
	if err != nil {
		return domain.Classification{}, domain.Score{}, err
	}
	s, err := o.evaluator.Evaluate(ctx, id, text, c)
	if err != nil {
		return domain.Classification{}, domain.Score{}, err
	}
	return c, s, nil
}

func (o *Orchestrator) deterministic(text string) (domain.Classification, domain.Score) {
	c := analysis.ClassifyDeterministic(text)
	return c, analysis.EvaluateDeterministic(text, c)
}

// Process classifies and scores an already stored item, then writes the
// classification followed by the score. The error is non-nil only when a
// write fails. Cancelling ctx only cuts reasoning short; the writes still
// happen. The returned record carries no Source or CreatedAt.
func (o *Orchestrator) Process(ctx context.Context, id int64, text string) (domain.Record, error) {
	c, s := o.analyze(ctx, id, text)

	writeCtx := context.WithoutCancel(ctx)
	if err := o.store.UpdateClassification(writeCtx, id, c); err != nil {
		return domain.Record{}, err
	}
	if err := o.store.InsertScore(writeCtx, id, s); err != nil {
		return domain.Record{}, err
	}

	o.logger.Info("feedback processed",
		zap.Int64("feedback_id", id),
		zap.String("classification_mode", string(c.Mode)),
		zap.String("score_mode", string(s.Mode)),
		zap.String("theme", string(c.Theme)),
		zap.Float64("priority_score", s.PriorityScore))

	return domain.Record{
		FeedbackItem: domain.FeedbackItem{
			ID:        id,
			Text:      text,
			Sentiment: c.Sentiment,
			Theme:     c.Theme,
			Summary:   c.Summary,
		},
		Score: &s,
	}, nil
}

// Ingest stores a new item, processes it and returns the stored record.
func (o *Orchestrator) Ingest(ctx context.Context, text, source string) (domain.Record, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Record{}, ErrEmptyText
	}
	id, err := o.store.InsertFeedback(ctx, text, source)
	if err != nil {
		return domain.Record{}, err
	}
	if _, err := o.Process(ctx, id, text); err != nil {
		return domain.Record{}, err
	}
	rec, ok, err := o.store.FetchByID(context.WithoutCancel(ctx), id)
	if err != nil {
		return domain.Record{}, err
	}
	if !ok {
		return domain.Record{}, fmt.Errorf("feedback %d disappeared after processing", id)
	}
	return rec, nil
}

// ErrEmptyText is returned by Ingest for blank feedback.
var ErrEmptyText = errors.New("feedback text is empty")
