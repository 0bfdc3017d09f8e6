package report

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"feedbackbot/internal/domain"
	"feedbackbot/internal/integrations/llm"

	"go.uber.org/zap"
)

const (
	TopN = 5

	reportTitle = "# Weekly Feedback Priority Report"
	// EmptyReport is returned when there is nothing to rank.
	EmptyReport = reportTitle + "\n\nNo feedback to prioritize this week."
)

type Synthesizer struct {
	reasoner llm.Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSynthesizer builds a synthesizer. A nil reasoner always renders the
// fixed template.
func NewSynthesizer(reasoner llm.Reasoner, callTimeout time.Duration, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{reasoner: reasoner, timeout: callTimeout, logger: logger}
}

// SelectTop returns at most n records ordered by descending priority. Items
// without a score rank as 0 and ties keep their input order.
func SelectTop(records []domain.Record, n int) []domain.Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.Record) int {
		switch pa, pb := a.Priority(), b.Priority(); {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		default:
			return 0
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Synthesize renders the weekly priority report. The error is always nil;
// every reasoning failure falls back to RenderTemplate.
func (s *Synthesizer) Synthesize(ctx context.Context, records []domain.Record) (string, error) {
	if len(records) == 0 {
		return EmptyReport, nil
	}
	top := SelectTop(records, TopN)
	if s.reasoner == nil {
		return RenderTemplate(top), nil
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.reasoner.Complete(callCtx, buildReportPrompt(top))
	if err != nil {
		s.logger.Error("report generation via llm failed, using template", zap.Error(err))
		return RenderTemplate(top), nil
	}
	if strings.TrimSpace(out) == "" {
		s.logger.Warn("llm returned an empty report, using template")
		return RenderTemplate(top), nil
	}
	return out, nil
}

// RenderTemplate renders the fixed markdown layout for already selected items.
func RenderTemplate(top []domain.Record) string {
	var b strings.Builder
	b.WriteString(reportTitle + "\n\n")
	b.WriteString("## Top 5 Action Items\n\n")
	for i, rec := range top {
		urgency, impact, justification := 0, 0, ""
		if rec.Score != nil {
			urgency, impact, justification = rec.Score.Urgency, rec.Score.Impact, rec.Score.Justification
		}
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, orDefault(string(rec.Theme), "Unknown Theme"))
		fmt.Fprintf(&b, "**Priority Score:** %.2f\n\n", rec.Priority())
		fmt.Fprintf(&b, "**Urgency:** %d/10 | **Impact:** %d/10\n\n", urgency, impact)
		fmt.Fprintf(&b, "**Feedback:** %s\n\n", orDefault(rec.Summary, orDefault(rec.Text, "No summary")))
		fmt.Fprintf(&b, "**Justification:** %s\n\n", orDefault(justification, "No justification"))
		b.WriteString("---\n\n")
	}
	return b.String()
}

func buildReportPrompt(top []domain.Record) string {
	lines := make([]string, 0, len(top))
	for i, rec := range top {
		urgency, impact, justification := 0, 0, ""
		if rec.Score != nil {
			urgency, impact, justification = rec.Score.Urgency, rec.Score.Impact, rec.Score.Justification
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] (Priority: %.2f, Urgency: %d, Impact: %d)\n   Summary: %s\n   Justification: %s",
			i+1, orDefault(string(rec.Theme), "Unknown Theme"), rec.Priority(), urgency, impact,
			orDefault(rec.Summary, orDefault(rec.Text, "No summary")),
			orDefault(justification, "No justification")))
	}
	return fmt.Sprintf(`Create a concise, actionable weekly priority report based on these top %d feedback items:

%s

Generate a Markdown report with:
1. A clear title
2. Top action items with theme, priority scores, and recommended actions
3. Brief summary of trends or patterns

Keep it professional and actionable for a product team. Respond with the Markdown only.`, len(top), strings.Join(lines, "\n"))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
