package report

import (
	"context"
	"fmt"

	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"

	"go.uber.org/zap"
)

type Store interface {
	FetchAll(ctx context.Context) ([]domain.Record, error)
	InsertReport(ctx context.Context, content string) (domain.Report, error)
}

type Distributor interface {
	Distribute(ctx context.Context, report domain.Report) distribute.Summary
}

// Job generates, stores, archives and distributes one weekly report.
type Job struct {
	store       Store
	synth       *Synthesizer
	distributor Distributor
	outputDir   string
	logger      *zap.Logger
}

func NewJob(store Store, synth *Synthesizer, distributor Distributor, outputDir string, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{store: store, synth: synth, distributor: distributor, outputDir: outputDir, logger: logger}
}

// Run fails only when feedback cannot be read or the report cannot be stored.
// Archive and delivery problems are logged and reflected in the summary.
// Once feedback is loaded, cancelling ctx only shortens report synthesis;
// storing and distribution still run.
func (j *Job) Run(ctx context.Context) (domain.Report, distribute.Summary, error) {
	records, err := j.store.FetchAll(ctx)
	if err != nil {
		return domain.Report{}, distribute.Summary{}, fmt.Errorf("loading feedback for report: %w", err)
	}
	persistCtx := context.WithoutCancel(ctx)

	content, err := j.synth.Synthesize(ctx, records)
	if err != nil {
		return domain.Report{}, distribute.Summary{}, fmt.Errorf("synthesizing report: %w", err)
	}

	rep, err := j.store.InsertReport(persistCtx, content)
	if err != nil {
		return domain.Report{}, distribute.Summary{}, fmt.Errorf("storing report: %w", err)
	}
	j.logger.Info("report generated",
		zap.Int64("report_id", rep.ID),
		zap.Int("feedback_count", len(records)),
		zap.Int("size", len(content)))

	if j.outputDir != "" {
		path, err := WriteArchive(content, j.outputDir, rep.GeneratedAt)
		if err != nil {
			j.logger.Error("writing report archive failed", zap.String("dir", j.outputDir), zap.Error(err))
		} else {
			j.logger.Info("report archived", zap.String("path", path))
		}
	}

	var sum distribute.Summary
	if j.distributor != nil {
		sum = j.distributor.Distribute(persistCtx, rep)
	}
	return rep, sum, nil
}
