package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"feedbackbot/internal/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeReasoner struct {
	complete func(ctx context.Context, prompt string) (string, error)
	calls    int
	prompts  []string
}

func (f *fakeReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.complete(ctx, prompt)
}

func replying(resp string) *fakeReasoner {
	return &fakeReasoner{complete: func(context.Context, string) (string, error) { return resp, nil }}
}

const crashText = "The app crashes every time I open settings"

func TestClassifyDeterministicGoldenValues(t *testing.T) {
	tests := []struct {
		text      string
		sentiment domain.Sentiment
		theme     domain.Theme
	}{
		{crashText, domain.SentimentNegative, domain.ThemeUXUI},
		{"Pricing is too high for small teams", domain.SentimentNegative, domain.ThemeOther},
		{"Love the new dashboard!", domain.SentimentNeutral, domain.ThemePerformance},
		{"a", domain.SentimentNeutral, domain.ThemeService},
		{"", domain.SentimentPositive, domain.ThemePricing},
	}
	for _, tt := range tests {
		got := ClassifyDeterministic(tt.text)
		if got.Sentiment != tt.sentiment || got.Theme != tt.theme {
			t.Fatalf("ClassifyDeterministic(%q) = %s/%s, want %s/%s", tt.text, got.Sentiment, got.Theme, tt.sentiment, tt.theme)
		}
		if got.Mode != domain.ModeDeterministic {
			t.Fatalf("unexpected mode %q", got.Mode)
		}
		if again := ClassifyDeterministic(tt.text); again != got {
			t.Fatalf("classification not stable for %q: %+v vs %+v", tt.text, got, again)
		}
	}
}

func TestClassifyDeterministicSummary(t *testing.T) {
	if got := ClassifyDeterministic("short").Summary; got != "Mock summary: short..." {
		t.Fatalf("unexpected summary: %q", got)
	}
	long := strings.Repeat("é", 150)
	got := ClassifyDeterministic(long).Summary
	want := "Mock summary: " + strings.Repeat("é", 100) + "..."
	if got != want {
		t.Fatalf("summary should keep the first 100 characters, got %d runes", len([]rune(got)))
	}
}

func TestEvaluateDeterministicGoldenValues(t *testing.T) {
	tests := []struct {
		text            string
		urgency, impact int
	}{
		{crashText, 9, 8},
		{"Pricing is too high for small teams", 10, 5},
		{"Love the new dashboard!", 10, 4},
		{"a", 5, 1},
		{"", 10, 3},
	}
	for _, tt := range tests {
		c := ClassifyDeterministic(tt.text)
		got := EvaluateDeterministic(tt.text, c)
		if got.Urgency != tt.urgency || got.Impact != tt.impact {
			t.Fatalf("EvaluateDeterministic(%q) = %d/%d, want %d/%d", tt.text, got.Urgency, got.Impact, tt.urgency, tt.impact)
		}
		if got.PriorityScore != domain.PriorityScore(tt.urgency, tt.impact) {
			t.Fatalf("priority not derived from ratings: %+v", got)
		}
	}

	c := ClassifyDeterministic(crashText)
	got := EvaluateDeterministic(crashText, c)
	if got.Justification != "Mock justification for UX/UI with negative sentiment" {
		t.Fatalf("unexpected justification: %q", got.Justification)
	}
	if got.PriorityScore != 8.5 {
		t.Fatalf("priority = %v, want 8.5", got.PriorityScore)
	}
}

func TestReasoningClassifierParsesFencedJSON(t *testing.T) {
	r := replying("```json\n{\"sentiment\": \"Negative\", \"theme\": \"ux/ui\", \"summary\": \"Settings crash.\"}\n```")
	c := NewReasoningClassifier(r, time.Second, zap.NewNop())

	got, err := c.Classify(context.Background(), 1, crashText)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	want := domain.Classification{
		Sentiment: domain.SentimentNegative,
		Theme:     domain.ThemeUXUI,
		Summary:   "Settings crash.",
		Mode:      domain.ModeReasoning,
	}
	if got != want {
		t.Fatalf("Classify = %+v, want %+v", got, want)
	}
	if !strings.Contains(r.prompts[0], crashText) {
		t.Fatalf("prompt should include the feedback text: %q", r.prompts[0])
	}
}

func TestReasoningClassifierDegradesOnUnusableAnswer(t *testing.T) {
	answers := []string{
		"I think this is negative.",
		`{"sentiment": "angry", "theme": "UX/UI", "summary": "x"}`,
		`{"sentiment": "negative", "theme": "Security", "summary": "x"}`,
		`{"sentiment": "negative", "theme": "UX/UI"}`,
	}
	for _, answer := range answers {
		core, logs := observer.New(zap.WarnLevel)
		c := NewReasoningClassifier(replying(answer), time.Second, zap.New(core))

		got, err := c.Classify(context.Background(), 7, crashText)
		if err != nil {
			t.Fatalf("unusable answer %q should not be an error, got %v", answer, err)
		}
		if got != ClassifyDeterministic(crashText) {
			t.Fatalf("expected deterministic fallback for %q, got %+v", answer, got)
		}
		if logs.FilterMessage("llm classification unusable, using deterministic result").Len() != 1 {
			t.Fatalf("expected a warning for %q", answer)
		}
	}
}

func TestReasoningClassifierReturnsCallFailures(t *testing.T) {
	boom := errors.New("provider down")
	r := &fakeReasoner{complete: func(context.Context, string) (string, error) { return "", boom }}
	c := NewReasoningClassifier(r, time.Second, zap.NewNop())

	if _, err := c.Classify(context.Background(), 3, "x"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}

	empty := NewReasoningClassifier(replying("  \n"), time.Second, zap.NewNop())
	if _, err := empty.Classify(context.Background(), 3, "x"); !errors.Is(err, errEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestReasoningClassifierAppliesCallTimeout(t *testing.T) {
	r := &fakeReasoner{complete: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := NewReasoningClassifier(r, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := c.Classify(context.Background(), 1, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("call timeout was not applied")
	}
}

func TestReasoningEvaluatorCoercesRatings(t *testing.T) {
	tests := []struct {
		name            string
		answer          string
		urgency, impact int
	}{
		{"integers", `{"urgency": 8, "impact": 6, "justification": "j"}`, 8, 6},
		{"strings", `{"urgency": "8", "impact": " 6 ", "justification": "j"}`, 8, 6},
		{"floats", `{"urgency": 8.0, "impact": 6.7, "justification": "j"}`, 8, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewReasoningEvaluator(replying(tt.answer), time.Second, zap.NewNop())
			got, err := e.Evaluate(context.Background(), 1, "x", domain.Classification{})
			if err != nil {
				t.Fatalf("Evaluate returned error: %v", err)
			}
			if got.Urgency != tt.urgency || got.Impact != tt.impact || got.Justification != "j" {
				t.Fatalf("unexpected score: %+v", got)
			}
			if got.Mode != domain.ModeReasoning || got.PriorityScore != domain.PriorityScore(tt.urgency, tt.impact) {
				t.Fatalf("unexpected derived fields: %+v", got)
			}
		})
	}
}

func TestReasoningEvaluatorDegradesOnUnusableAnswer(t *testing.T) {
	answers := []string{
		"not json at all",
		`{"urgency": "high", "impact": 5, "justification": "j"}`,
		`{"urgency": 11, "impact": 5, "justification": "j"}`,
		`{"urgency": 0, "impact": 5, "justification": "j"}`,
		`{"urgency": 5, "justification": "j"}`,
		`{"urgency": 5, "impact": 5}`,
		`{"urgency": [5], "impact": 5, "justification": "j"}`,
	}
	c := ClassifyDeterministic(crashText)
	want := EvaluateDeterministic(crashText, c)
	for _, answer := range answers {
		e := NewReasoningEvaluator(replying(answer), time.Second, zap.NewNop())
		got, err := e.Evaluate(context.Background(), 1, crashText, c)
		if err != nil {
			t.Fatalf("unusable answer %q should not be an error, got %v", answer, err)
		}
		if got != want {
			t.Fatalf("expected deterministic fallback for %q, got %+v", answer, got)
		}
	}
}

func TestReasoningEvaluatorReturnsCallFailures(t *testing.T) {
	boom := errors.New("timeout")
	r := &fakeReasoner{complete: func(context.Context, string) (string, error) { return "", boom }}
	e := NewReasoningEvaluator(r, time.Second, zap.NewNop())
	if _, err := e.Evaluate(context.Background(), 9, "x", domain.Classification{}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEvaluatePromptCarriesClassification(t *testing.T) {
	r := replying(`{"urgency": 2, "impact": 3, "justification": "j"}`)
	e := NewReasoningEvaluator(r, time.Second, zap.NewNop())
	c := domain.Classification{Sentiment: domain.SentimentPositive, Theme: domain.ThemePricing, Summary: "cheap"}
	if _, err := e.Evaluate(context.Background(), 1, "it is cheap", c); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	for _, want := range []string{"it is cheap", "positive", "Pricing", "cheap"} {
		if !strings.Contains(r.prompts[0], want) {
			t.Fatalf("prompt missing %q: %s", want, r.prompts[0])
		}
	}
}
