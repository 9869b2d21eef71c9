package normalize

import (
	"github.com/google/uuid"

	"github.com/prepgrid/question-etl/internal/entity"
)

// Deduper drops exact duplicates within one extraction run, keyed by the
// natural key (trimmed text + subtopic). The first occurrence wins unless a
// later variant carries a structurally cleaner choice set, in which case it
// replaces the earlier one in place.
type Deduper struct {
	seen  map[string]int
	order []*entity.Question
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]int)}
}

// AddResult says how the deduper handled an offered question.
type AddResult int

const (
	// AddedNew retained the question as a new distinct entry.
	AddedNew AddResult = iota
	// ReplacedWeaker displaced an earlier duplicate that carried a less
	// clean choice set. Callers that already flushed the displaced entry
	// must re-send the replacement.
	ReplacedWeaker
	// DroppedDuplicate discarded the question as an exact duplicate.
	DroppedDuplicate
)

// Add offers a question to the run. The returned index is the question's
// position in first-seen order; on ReplacedWeaker it is the slot the
// weaker duplicate occupied.
func (d *Deduper) Add(q *entity.Question) (AddResult, int) {
	key := q.NaturalKey()
	idx, dup := d.seen[key]
	if !dup {
		idx = len(d.order)
		d.seen[key] = idx
		d.order = append(d.order, q)
		return AddedNew, idx
	}

	// Structurally-clean data indicates a higher-fidelity extraction.
	if q.CanonicalChoices && !d.order[idx].CanonicalChoices {
		d.order[idx] = q
		return ReplacedWeaker, idx
	}
	return DroppedDuplicate, idx
}

// Questions returns the retained questions in first-seen order.
func (d *Deduper) Questions() []*entity.Question {
	return d.order
}

// Len reports how many distinct questions the run has retained.
func (d *Deduper) Len() int {
	return len(d.order)
}

// PlanFuzzySweep scans stored rows and returns the IDs of fuzzy duplicates:
// rows whose text collides after stripping non-alphanumerics and
// lowercasing. The first-seen copy wins, except that a later copy with a
// canonical choice set displaces a non-canonical first copy.
func PlanFuzzySweep(rows []*entity.Question) []uuid.UUID {
	type kept struct {
		id        uuid.UUID
		canonical bool
	}

	seen := make(map[string]kept)
	var deleteIDs []uuid.UUID
	for _, row := range rows {
		key := entity.FuzzyKey(row.Text)
		prev, dup := seen[key]
		if !dup {
			seen[key] = kept{id: row.ID, canonical: row.CanonicalChoices}
			continue
		}
		if row.CanonicalChoices && !prev.canonical {
			deleteIDs = append(deleteIDs, prev.id)
			seen[key] = kept{id: row.ID, canonical: true}
			continue
		}
		deleteIDs = append(deleteIDs, row.ID)
	}
	return deleteIDs
}
