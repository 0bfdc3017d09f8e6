package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Sentiments is the frozen selection order used by deterministic classification.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

type Theme string

const (
	ThemeProductFeatures Theme = "Product/Features"
	ThemePerformance     Theme = "Performance"
	ThemeUXUI            Theme = "UX/UI"
	ThemePricing         Theme = "Pricing"
	ThemeService         Theme = "Service"
	ThemeOther           Theme = "Other"
)

// Themes is the frozen selection order used by deterministic classification.
var Themes = []Theme{
	ThemeProductFeatures,
	ThemePerformance,
	ThemeUXUI,
	ThemePricing,
	ThemeService,
	ThemeOther,
}

const (
	MinRating = 1
	MaxRating = 10
)

// Mode records which execution path produced a classification or score.
type Mode string

const (
	ModeReasoning     Mode = "reasoning"
	ModeDeterministic Mode = "deterministic"
)

func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Sentiments {
		if v == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

// ParseTheme matches case-insensitively but always returns the canonical spelling.
func ParseTheme(s string) (Theme, error) {
	trimmed := strings.TrimSpace(s)
	for _, known := range Themes {
		if strings.EqualFold(trimmed, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

type Classification struct {
	Sentiment Sentiment `json:"sentiment"`
	Theme     Theme     `json:"theme"`
	Summary   string    `json:"summary"`
	Mode      Mode      `json:"-"`
}

type Score struct {
	Urgency       int     `json:"urgency"`
	Impact        int     `json:"impact"`
	Justification string  `json:"justification"`
	PriorityScore float64 `json:"priority_score"`
	Mode          Mode    `json:"-"`
}

// NewScore is the only way to build a Score; the priority score is always
// derived from urgency and impact.
func NewScore(urgency, impact int, justification string) (Score, error) {
	if !ValidRating(urgency) {
		return Score{}, fmt.Errorf("urgency %d out of range [%d,%d]", urgency, MinRating, MaxRating)
	}
	if !ValidRating(impact) {
		return Score{}, fmt.Errorf("impact %d out of range [%d,%d]", impact, MinRating, MaxRating)
	}
	return Score{
		Urgency:       urgency,
		Impact:        impact,
		Justification: justification,
		PriorityScore: PriorityScore(urgency, impact),
	}, nil
}

func ValidRating(v int) bool {
	return v >= MinRating && v <= MaxRating
}

// PriorityScore returns round((urgency+impact)/2, 2).
func PriorityScore(urgency, impact int) float64 {
	return math.Round(float64(urgency+impact)/2*100) / 100
}

// FeedbackItem is one unit of ingested text. Sentiment, Theme and Summary stay
// empty until the pipeline classifies the item.
type FeedbackItem struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	Theme     Theme     `json:"theme,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is a feedback item merged with its score, if one exists.
type Record struct {
	FeedbackItem
	Score *Score `json:"score,omitempty"`
}

func (r Record) Priority() float64 {
	if r.Score == nil {
		return 0
	}
	return r.Score.PriorityScore
}

type Report struct {
	ID          int64     `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Content     string    `json:"content"`
}

// Excerpt returns at most max characters of the report content.
func (r Report) Excerpt(max int) string {
	runes := []rune(r.Content)
	if len(runes) <= max {
		return r.Content
	}
	return string(runes[:max])
}
