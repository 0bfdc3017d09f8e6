package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"feedbackbot/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pending is a stored item that still needs classification and scoring.
type Pending struct {
	ID   int64
	Text string
}

// NewFeedback is an item that has not been stored yet.
type NewFeedback struct {
	Text   string
	Source string
}

type Failure struct {
	ID  int64
	Err error
}

type BatchResult struct {
	// Records holds successfully processed items in input order.
	Records  []domain.Record
	Failures []Failure
}

func (r BatchResult) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("feedback %d: %w", f.ID, f.Err))
	}
	return errors.Join(errs...)
}

// ProcessBatch processes items in parallel with bounded concurrency. One
// item's store failure does not stop the others.
func (o *Orchestrator) ProcessBatch(ctx context.Context, items []Pending) BatchResult {
	records := make([]domain.Record, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, item := range items {
		g.Go(func() error {
			records[i], errs[i] = o.Process(ctx, item.ID, item.Text)
			return nil
		})
	}
	_ = g.Wait()

	var res BatchResult
	for i, item := range items {
		if errs[i] != nil {
			o.logger.Error("processing feedback failed", zap.Int64("feedback_id", item.ID), zap.Error(errs[i]))
			res.Failures = append(res.Failures, Failure{ID: item.ID, Err: errs[i]})
			continue
		}
		res.Records = append(res.Records, records[i])
	}
	return res
}

// IngestAll stores every non-blank item and then processes them as one batch.
// A failed insert stops before any processing starts. Once inserts begin,
// cancelling ctx no longer leaves items unprocessed. Returned records are
// re-read from the store.
func (o *Orchestrator) IngestAll(ctx context.Context, items []NewFeedback) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	storeCtx := context.WithoutCancel(ctx)

	pending := make([]Pending, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		id, err := o.store.InsertFeedback(storeCtx, item.Text, item.Source)
		if err != nil {
			return BatchResult{}, err
		}
		pending = append(pending, Pending{ID: id, Text: item.Text})
	}

	res := o.ProcessBatch(ctx, pending)
	for i, rec := range res.Records {
		stored, ok, err := o.store.FetchByID(storeCtx, rec.ID)
		if err != nil || !ok {
			o.logger.Warn("re-reading processed feedback failed", zap.Int64("feedback_id", rec.ID), zap.Error(err))
			continue
		}
		res.Records[i] = stored
	}
	return res, nil
}
