package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingJob struct {
	mu    sync.Mutex
	runs  int
	err   error
	onRun func(n int)
}

func (j *countingJob) Run(context.Context) (domain.Report, distribute.Summary, error) {
	j.mu.Lock()
	j.runs++
	n := j.runs
	j.mu.Unlock()
	if j.onRun != nil {
		j.onRun(n)
	}
	return domain.Report{ID: int64(n)}, distribute.Summary{}, j.err
}

func TestParse(t *testing.T) {
	if _, err := Parse("0 9 * * 1"); err != nil {
		t.Fatalf("Parse default cron: %v", err)
	}
	if _, err := Parse("every monday"); err == nil {
		t.Fatal("expected invalid cron to fail")
	}
	if _, err := New("0 9 * *", time.UTC, &countingJob{}, nil); err == nil {
		t.Fatal("expected New to reject a 4-field expression")
	}
}

func TestNextDefaultScheduleIsMondayNine(t *testing.T) {
	s, err := New("0 9 * * 1", time.UTC, &countingJob{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Wednesday 2026-03-04.
	next := s.Next(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestRunTriggersJobUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zap.InfoLevel)
	job := &countingJob{err: errors.New("store down")}
	job.onRun = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	s, err := New("* * * * *", time.UTC, job, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var waits []time.Duration
	s.now = func() time.Time { return time.Date(2026, 3, 9, 8, 59, 30, 0, time.UTC) }
	s.after = func(d time.Duration) <-chan time.Time {
		if ctx.Err() != nil {
			return nil
		}
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	if job.runs != 3 {
		t.Fatalf("expected 3 runs before cancellation, got %d", job.runs)
	}
	if waits[0] != 30*time.Second {
		t.Fatalf("first wait = %v, want 30s", waits[0])
	}
	if logs.FilterMessage("scheduled report failed").Len() != 3 {
		t.Fatal("job failures should be logged and not stop the loop")
	}
}
