package entity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepgrid/question-etl/constants"
)

// Choice is one labeled alternative of a question. This sequence form is the
// only choice representation allowed past the normalizer.
type Choice struct {
	Label string `json:"id"`
	Text  string `json:"text"`
}

// Question is the canonical record shape for data transfer between layers.
type Question struct {
	ID           uuid.UUID            `json:"id"`
	Text         string               `json:"question_text"`
	Choices      []Choice             `json:"options"`
	CorrectLabel string               `json:"correct_answer"`
	Explanation  string               `json:"explanation"`
	Difficulty   constants.Difficulty `json:"difficulty"`
	Topic        string               `json:"topic"`
	Subtopic     string               `json:"subtopic"`
	CreatedAt    time.Time            `json:"created_at"`

	// CanonicalChoices records whether the source already delivered choices
	// in sequence form. Dedup tie-breaking prefers such variants.
	CanonicalChoices bool `json:"-"`
}

// NaturalKey identifies a stored question: trimmed text plus subtopic.
// The comparison is case-preserving.
func (q *Question) NaturalKey() string {
	return strings.TrimSpace(q.Text) + "\x1f" + q.Subtopic
}

var fuzzyStrip = regexp.MustCompile(`[^a-z0-9]`)

// FuzzyKey reduces question text to lowercase alphanumerics so variants
// differing only in punctuation or whitespace collide.
func FuzzyKey(text string) string {
	return fuzzyStrip.ReplaceAllString(strings.ToLower(text), "")
}
