package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"feedbackbot/internal/domain"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "feedback-test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// withClock makes every call to now advance one minute from base.
func withClock(s *Store, base time.Time) {
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
}

func TestFeedbackLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	withClock(s, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	id, err := s.InsertFeedback(ctx, "Checkout is slow", "manual")
	if err != nil {
		t.Fatalf("InsertFeedback failed: %v", err)
	}

	rec, ok, err := s.FetchByID(ctx, id)
	if err != nil || !ok {
		t.Fatalf("FetchByID(%d) = ok:%v err:%v", id, ok, err)
	}
	if rec.Sentiment != "" || rec.Theme != "" || rec.Summary != "" || rec.Score != nil {
		t.Fatalf("fresh item should be unclassified, got %+v", rec)
	}

	c := domain.Classification{Sentiment: domain.SentimentNegative, Theme: domain.ThemePerformance, Summary: "slow checkout"}
	if err := s.UpdateClassification(ctx, id, c); err != nil {
		t.Fatalf("UpdateClassification failed: %v", err)
	}
	score, err := domain.NewScore(7, 4, "hurts conversion")
	if err != nil {
		t.Fatalf("NewScore failed: %v", err)
	}
	if err := s.InsertScore(ctx, id, score); err != nil {
		t.Fatalf("InsertScore failed: %v", err)
	}

	rec, ok, err = s.FetchByID(ctx, id)
	if err != nil || !ok {
		t.Fatalf("FetchByID after processing = ok:%v err:%v", ok, err)
	}
	want := domain.Record{
		FeedbackItem: domain.FeedbackItem{
			ID:        id,
			Text:      "Checkout is slow",
			Source:    "manual",
			Sentiment: domain.SentimentNegative,
			Theme:     domain.ThemePerformance,
			Summary:   "slow checkout",
			CreatedAt: time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC),
		},
		Score: &domain.Score{Urgency: 7, Impact: 4, Justification: "hurts conversion", PriorityScore: 5.5},
	}
	if diff := cmp.Diff(want, rec, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	withClock(s, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	var ids []int64
	for _, text := range []string{"first", "second", "third"} {
		id, err := s.InsertFeedback(ctx, text, "csv_upload")
		if err != nil {
			t.Fatalf("InsertFeedback(%q) failed: %v", text, err)
		}
		ids = append(ids, id)
	}
	score, _ := domain.NewScore(2, 2, "j")
	if err := s.InsertScore(ctx, ids[1], score); err != nil {
		t.Fatalf("InsertScore failed: %v", err)
	}

	records, err := s.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	var got []string
	for _, r := range records {
		got = append(got, r.Text)
	}
	if diff := cmp.Diff([]string{"third", "second", "first"}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if records[1].Score == nil || records[0].Score != nil || records[2].Score != nil {
		t.Fatalf("score should be merged only onto the scored item: %+v", records)
	}
}

func TestFetchByIDMissing(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.FetchByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchByID returned error: %v", err)
	}
	if ok {
		t.Fatal("expected missing item to report ok=false")
	}
}

func TestUpdateClassificationUnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateClassification(context.Background(), 99, domain.Classification{Sentiment: domain.SentimentNeutral})
	if err == nil || !strings.Contains(err.Error(), "feedback 99") {
		t.Fatalf("expected error naming the item, got %v", err)
	}
}

func TestInsertScoreRejectsUnknownFeedbackAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	score, _ := domain.NewScore(5, 5, "j")

	if err := s.InsertScore(ctx, 404, score); err == nil {
		t.Fatal("expected foreign key violation for unknown feedback")
	}

	id, err := s.InsertFeedback(ctx, "x", "manual")
	if err != nil {
		t.Fatalf("InsertFeedback failed: %v", err)
	}
	if err := s.InsertScore(ctx, id, score); err != nil {
		t.Fatalf("InsertScore failed: %v", err)
	}
	if err := s.InsertScore(ctx, id, score); err == nil {
		t.Fatal("expected second score for the same item to fail")
	}
}

func TestDeleteFeedbackRemovesScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.InsertFeedback(ctx, "delete me", "manual")
	if err != nil {
		t.Fatalf("InsertFeedback failed: %v", err)
	}
	score, _ := domain.NewScore(3, 3, "j")
	if err := s.InsertScore(ctx, id, score); err != nil {
		t.Fatalf("InsertScore failed: %v", err)
	}

	deleted, err := s.DeleteFeedback(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteFeedback = %v, %v", deleted, err)
	}
	var scores int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM scores WHERE feedback_id = ?`, id).Scan(&scores); err != nil {
		t.Fatalf("count scores failed: %v", err)
	}
	if scores != 0 {
		t.Fatalf("expected score row to be removed, found %d", scores)
	}

	deleted, err = s.DeleteFeedback(ctx, id)
	if err != nil || deleted {
		t.Fatalf("second DeleteFeedback = %v, %v; want false, nil", deleted, err)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	withClock(s, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))

	if _, ok, err := s.LatestReport(ctx); err != nil || ok {
		t.Fatalf("LatestReport on empty store = ok:%v err:%v", ok, err)
	}

	first, err := s.InsertReport(ctx, "# one")
	if err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}
	second, err := s.InsertReport(ctx, "# two")
	if err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}
	if !second.GeneratedAt.After(first.GeneratedAt) {
		t.Fatalf("expected increasing timestamps: %v, %v", first.GeneratedAt, second.GeneratedAt)
	}

	latest, ok, err := s.LatestReport(ctx)
	if err != nil || !ok {
		t.Fatalf("LatestReport = ok:%v err:%v", ok, err)
	}
	if latest.ID != second.ID || latest.Content != "# two" {
		t.Fatalf("unexpected latest report: %+v", latest)
	}

	all, err := s.AllReports(ctx)
	if err != nil {
		t.Fatalf("AllReports failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("unexpected report order: %+v", all)
	}
}

func TestOpenInMemoryAndPing(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
