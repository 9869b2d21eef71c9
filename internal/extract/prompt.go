package extract

import (
	"fmt"
	"strings"

	"github.com/prepgrid/question-etl/internal/config"
)

// buildPrompt composes the extraction task description for one window.
// The window directive comes first so range-limited requests are honored
// even when the source content is long.
func buildPrompt(sourceText string, w config.ItemRange) string {
	var b strings.Builder

	if w.Start > 0 {
		fmt.Fprintf(&b, "ONLY extract questions %d through %d (inclusive, in document order). Skip everything outside that range.\n\n", w.Start, w.End)
	}

	b.WriteString(`You are an Expert Exam Creator. Your task is to EXTRACT EVERY SINGLE QUESTION from the provided content.

CRITICAL INSTRUCTIONS:
1. EXTRACT ALL: Do not skip any question in the requested range. If there are 8 questions, return 8 objects.
2. NO SUMMARIES: Do not summarize or group questions. Each question must be a separate object.
3. EXACT TEXT: Keep the question text as close to the original as possible, but ensure it is readable.
4. OPTIONS: If options are present (A, B, C, D, E), include them with their labels.
5. FORMAT: Return a valid JSON LIST of objects and nothing else.

JSON SCHEMA:
[
    {
        "question_text": "...",
        "options": [{"id": "A", "text": "..."}],
        "correct_answer": "A",
        "explanation": "...",
        "difficulty": "Medium"
    }
]`)

	if sourceText != "" {
		b.WriteString("\n\nCONTENT TO PROCESS:\n")
		b.WriteString(sourceText)
	}
	return b.String()
}
