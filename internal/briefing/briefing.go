package briefing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Briefing is one client's in-flight or finished run of a template revision.
type Briefing struct {
	ID          uuid.UUID      `json:"id"`
	ClientID    uuid.UUID      `json:"client_id"`
	RevisionID  uuid.UUID      `json:"revision_id"`
	Status      Status         `json:"status"`
	Cursor      int            `json:"cursor"`
	Answers     map[int]string `json:"answers"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Start creates an IN_PROGRESS briefing positioned on the revision's first question.
func Start(clientID uuid.UUID, rev *Revision, now time.Time) *Briefing {
	cursor := 1
	if first, ok := rev.FirstAtOrAfter(1); ok {
		cursor = first.Order
	}
	return &Briefing{
		ID:         uuid.New(),
		ClientID:   clientID,
		RevisionID: rev.ID,
		Status:     StatusInProgress,
		Cursor:     cursor,
		Answers:    make(map[int]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy.
func (b *Briefing) Clone() *Briefing {
	if b == nil {
		return nil
	}
	out := *b
	out.Answers = make(map[int]string, len(b.Answers))
	for k, v := range b.Answers {
		out.Answers[k] = v
	}
	if b.CompletedAt != nil {
		at := *b.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

func (b *Briefing) requireInProgress() error {
	switch b.Status {
	case StatusInProgress:
		return nil
	case StatusCompleted, StatusCancelled:
		return fmt.Errorf("%w: %s", ErrNotInProgress, b.Status)
	default:
		return fmt.Errorf("briefing: unknown status %d", uint8(b.Status))
	}
}

// Answered reports whether order has a stored answer.
func (b *Briefing) Answered(order int) bool {
	_, ok := b.Answers[order]
	return ok
}

// AnsweredOrders returns the answered orders in ascending order.
func (b *Briefing) AnsweredOrders() []int {
	out := make([]int, 0, len(b.Answers))
	for order := range b.Answers {
		out = append(out, order)
	}
	sort.Ints(out)
	return out
}

// MissingRequired lists required orders without an answer.
func (b *Briefing) MissingRequired(rev *Revision) []int {
	var missing []int
	for _, order := range rev.RequiredOrders() {
		if !b.Answered(order) {
			missing = append(missing, order)
		}
	}
	return missing
}

// CurrentQuestion resolves the question the cursor points at. A cursor that
// falls between non-contiguous orders is moved forward to the next existing one.
func (b *Briefing) CurrentQuestion(rev *Revision) (Question, bool) {
	q, ok := rev.FirstAtOrAfter(b.Cursor)
	if !ok {
		return Question{}, false
	}
	if q.Order > b.Cursor {
		b.Cursor = q.Order
	}
	return q, true
}

// RecordAnswer stores value for the current question and advances the cursor.
func (b *Briefing) RecordAnswer(order int, value string, now time.Time) error {
	if err := b.requireInProgress(); err != nil {
		return err
	}
	if order != b.Cursor {
		return fmt.Errorf("%w: cursor at %d, got %d", ErrOutOfOrderAnswer, b.Cursor, order)
	}
	if b.Answers == nil {
		b.Answers = make(map[int]string)
	}
	b.Answers[order] = value
	b.Cursor = order + 1
	b.UpdatedAt = now
	return nil
}

// Skip leaves the current optional question unanswered and advances.
func (b *Briefing) Skip(q Question, now time.Time) error {
	if err := b.requireInProgress(); err != nil {
		return err
	}
	if q.Order != b.Cursor {
		return fmt.Errorf("%w: cursor at %d, skip targets %d", ErrOutOfOrderAnswer, b.Cursor, q.Order)
	}
	if q.Required {
		return ErrCannotSkipRequired
	}
	b.Cursor = q.Order + 1
	b.UpdatedAt = now
	return nil
}

// Back moves the cursor to the previous question of the revision.
func (b *Briefing) Back(rev *Revision, now time.Time) (Question, error) {
	if err := b.requireInProgress(); err != nil {
		return Question{}, err
	}
	prev, ok := rev.Previous(b.Cursor)
	if !ok {
		return Question{}, ErrCannotGoBack
	}
	b.Cursor = prev.Order
	b.UpdatedAt = now
	return prev, nil
}

// Complete transitions to COMPLETED once every required question is answered.
func (b *Briefing) Complete(rev *Revision, now time.Time) error {
	if err := b.requireInProgress(); err != nil {
		return err
	}
	if missing := b.MissingRequired(rev); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrIncompleteRequired, missing)
	}
	b.Status = StatusCompleted
	at := now
	b.CompletedAt = &at
	b.UpdatedAt = now
	return nil
}

// Cancel transitions to CANCELLED. Cancelling twice is a no-op and a
// completed briefing cannot be cancelled.
func (b *Briefing) Cancel(now time.Time) error {
	switch b.Status {
	case StatusInProgress:
		b.Status = StatusCancelled
		b.UpdatedAt = now
		return nil
	case StatusCancelled:
		return nil
	case StatusCompleted:
		return ErrBriefingCompleted
	default:
		return fmt.Errorf("briefing: unknown status %d", uint8(b.Status))
	}
}
