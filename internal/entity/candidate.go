package entity

import "encoding/json"

// Candidate is a question as proposed by the transformation API, before
// normalization. Choices is kept raw because models return it in several
// shapes (sequence of objects, sequence of strings, or a label->text map);
// the normalizer owns the coercion.
type Candidate struct {
	QuestionText  string          `json:"question_text"`
	Choices       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
	Difficulty    string          `json:"difficulty"`
	Topic         string          `json:"topic"`
	Subtopic      string          `json:"subtopic"`
}
