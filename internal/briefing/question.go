package briefing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// QuestionType selects the validation rule applied to an answer.
type QuestionType string

const (
	TypeText           QuestionType = "text"
	TypeNumber         QuestionType = "number"
	TypeMultipleChoice QuestionType = "multiple_choice"
)

func (t QuestionType) valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeMultipleChoice:
		return true
	default:
		return false
	}
}

// Question is one entry of a template revision. Orders are positive and unique
// within a revision but need not be contiguous.
type Question struct {
	Order      int             `json:"order"`
	Prompt     string          `json:"prompt"`
	Type       QuestionType    `json:"type"`
	Required   bool            `json:"required"`
	Options    []string        `json:"options,omitempty"`
	Conditions json.RawMessage `json:"conditions,omitempty"`
}

// Revision is an immutable, published version of a questionnaire template.
// Questions are kept sorted by order; callers must not mutate the slice.
type Revision struct {
	ID         uuid.UUID  `json:"id"`
	TemplateID uuid.UUID  `json:"template_id"`
	Version    int        `json:"version"`
	Questions  []Question `json:"questions"`
}

// NewRevision validates questions and returns a revision with a private,
// order-sorted copy of them.
func NewRevision(id, templateID uuid.UUID, version int, questions []Question) (*Revision, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidRevision)
	}
	seen := make(map[int]struct{}, len(questions))
	sorted := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.Order < 1 {
			return nil, fmt.Errorf("%w: order %d must be positive", ErrInvalidRevision, q.Order)
		}
		if _, dup := seen[q.Order]; dup {
			return nil, fmt.Errorf("%w: duplicate order %d", ErrInvalidRevision, q.Order)
		}
		seen[q.Order] = struct{}{}
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("%w: question %d has an empty prompt", ErrInvalidRevision, q.Order)
		}
		if q.Type == "" {
			q.Type = TypeText
		}
		if !q.Type.valid() {
			return nil, fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidRevision, q.Order, q.Type)
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return nil, fmt.Errorf("%w: question %d has a blank option", ErrInvalidRevision, q.Order)
			}
		}
		q.Options = append([]string(nil), q.Options...)
		sorted = append(sorted, q)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return &Revision{ID: id, TemplateID: templateID, Version: version, Questions: sorted}, nil
}

// Len returns the number of questions.
func (r *Revision) Len() int { return len(r.Questions) }

// Question returns the question with exactly the given order.
func (r *Revision) Question(order int) (Question, bool) {
	i := sort.Search(len(r.Questions), func(i int) bool { return r.Questions[i].Order >= order })
	if i < len(r.Questions) && r.Questions[i].Order == order {
		return r.Questions[i], true
	}
	return Question{}, false
}

// FirstAtOrAfter returns the lowest-ordered question whose order is >= order.
func (r *Revision) FirstAtOrAfter(order int) (Question, bool) {
	i := sort.Search(len(r.Questions), func(i int) bool { return r.Questions[i].Order >= order })
	if i < len(r.Questions) {
		return r.Questions[i], true
	}
	return Question{}, false
}

// Previous returns the highest-ordered question strictly before order.
func (r *Revision) Previous(order int) (Question, bool) {
	i := sort.Search(len(r.Questions), func(i int) bool { return r.Questions[i].Order >= order })
	if i == 0 {
		return Question{}, false
	}
	return r.Questions[i-1], true
}

// FinalOrder is the highest order in the revision.
func (r *Revision) FinalOrder() int {
	if len(r.Questions) == 0 {
		return 0
	}
	return r.Questions[len(r.Questions)-1].Order
}

// RequiredOrders lists the orders that must be answered before completion.
func (r *Revision) RequiredOrders() []int {
	var out []int
	for _, q := range r.Questions {
		if q.Required {
			out = append(out, q.Order)
		}
	}
	return out
}
