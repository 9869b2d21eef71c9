// Package normalize turns raw candidates from the transformation API into
// canonical question records, and decides which of them are duplicates.
// The mapping choice representation is forbidden past this boundary: only
// the ordered labeled-sequence form leaves this package.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/config"
	"github.com/prepgrid/question-etl/internal/entity"
)

// Normalize enriches a candidate with the job's category tags, coerces its
// choice set into canonical shape, and applies the validation gate. A
// rejection is returned as an error; rejected candidates are dropped and
// logged by the caller, never stored with nulls.
func Normalize(c entity.Candidate, job config.Job) (*entity.Question, error) {
	text := strings.TrimSpace(c.QuestionText)
	if text == "" {
		return nil, fmt.Errorf("missing question_text")
	}

	choices, canonical, err := CoerceChoices(c.Choices)
	if err != nil {
		return nil, fmt.Errorf("coerce choices: %w", err)
	}
	if len(choices) == 0 {
		return nil, fmt.Errorf("missing choices")
	}

	label, ok := resolveCorrectLabel(c.CorrectAnswer, choices)
	if !ok {
		return nil, fmt.Errorf("correct_answer %q matches no choice", c.CorrectAnswer)
	}

	// Job tags override whatever the model guessed. Difficulty is the
	// exception: an unset job difficulty keeps the model's guess.
	difficulty := job.Difficulty
	if difficulty == "" {
		difficulty = c.Difficulty
	}
	canonDifficulty, _ := constants.CanonicalizeDifficulty(difficulty)

	return &entity.Question{
		Text:             text,
		Choices:          choices,
		CorrectLabel:     label,
		Explanation:      strings.TrimSpace(c.Explanation),
		Difficulty:       canonDifficulty,
		Topic:            job.Topic,
		Subtopic:         job.Subtopic,
		CanonicalChoices: canonical,
	}, nil
}

// CoerceChoices converts any of the choice shapes models produce into the
// canonical ordered sequence of labeled choices:
//   - sequence of {id|label, text} objects: passed through (canonical)
//   - sequence of bare strings: labels A-E assigned positionally
//   - label->text mapping: converted to a sequence sorted by label
//
// The set is capped at len(constants.ChoiceLabels). The second return
// reports whether the input was already in canonical form.
func CoerceChoices(raw json.RawMessage) ([]entity.Choice, bool, error) {
	if len(raw) == 0 {
		return nil, false, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "["):
		return coerceSequence(raw)
	case strings.HasPrefix(trimmed, "{"):
		choices, err := coerceMapping(raw)
		return choices, false, err
	case trimmed == "null":
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported choices shape")
	}
}

type rawChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

func coerceSequence(raw json.RawMessage) ([]entity.Choice, bool, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false, err
	}

	canonical := true
	var choices []entity.Choice
	for i, elem := range elems {
		if len(choices) == len(constants.ChoiceLabels) {
			break
		}

		e := strings.TrimSpace(string(elem))
		if strings.HasPrefix(e, "\"") {
			// Bare string alternative: label it positionally.
			var text string
			if err := json.Unmarshal(elem, &text); err != nil {
				return nil, false, err
			}
			canonical = false
			choices = append(choices, entity.Choice{Label: constants.ChoiceLabels[i], Text: strings.TrimSpace(text)})
			continue
		}

		var rc rawChoice
		if err := json.Unmarshal(elem, &rc); err != nil {
			return nil, false, err
		}
		label := strings.TrimSpace(rc.ID)
		if label == "" {
			label = strings.TrimSpace(rc.Label)
		}
		if label == "" {
			canonical = false
			label = constants.ChoiceLabels[i]
		}
		choices = append(choices, entity.Choice{Label: strings.ToUpper(label), Text: strings.TrimSpace(rc.Text)})
	}
	return choices, canonical, nil
}

func coerceMapping(raw json.RawMessage) ([]entity.Choice, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var choices []entity.Choice
	for _, label := range labels {
		if len(choices) == len(constants.ChoiceLabels) {
			break
		}
		choices = append(choices, entity.Choice{
			Label: strings.ToUpper(strings.TrimSpace(label)),
			Text:  strings.TrimSpace(m[label]),
		})
	}
	return choices, nil
}

// resolveCorrectLabel matches the model's correct-answer field against the
// choice set. It accepts a bare label ("B"), a decorated one ("Option B",
// "B."), or the full text of a choice.
func resolveCorrectLabel(answer string, choices []entity.Choice) (string, bool) {
	a := strings.TrimSpace(answer)
	if a == "" {
		return "", false
	}

	for _, prefix := range []string{"Option ", "option ", "Answer ", "answer "} {
		a = strings.TrimPrefix(a, prefix)
	}
	a = strings.TrimRight(a, ".):")
	a = strings.TrimSpace(a)

	for _, c := range choices {
		if strings.EqualFold(a, c.Label) {
			return c.Label, true
		}
	}
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(c.Text)) {
			return c.Label, true
		}
	}
	return "", false
}
