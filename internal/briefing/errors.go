package briefing

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotFound is returned when no end client owns the channel address.
	ErrClientNotFound = errors.New("briefing: client not found")
	// ErrNoActiveBriefing is returned when the client has no IN_PROGRESS briefing.
	ErrNoActiveBriefing = errors.New("briefing: no active briefing")
	// ErrBriefingNotFound is returned when a briefing id does not exist.
	ErrBriefingNotFound = errors.New("briefing: briefing not found")
	// ErrSessionNotFound is returned when a channel session id does not exist.
	ErrSessionNotFound = errors.New("briefing: session not found")
	// ErrRevisionNotFound is returned when a template revision id does not exist.
	ErrRevisionNotFound = errors.New("briefing: template revision not found")
	// ErrInvalidRevision is returned when a revision fails publish-time validation.
	ErrInvalidRevision = errors.New("briefing: invalid template revision")

	// ErrOutOfOrderAnswer signals a cursor-management bug: an answer was recorded
	// for an order other than the current one.
	ErrOutOfOrderAnswer = errors.New("briefing: answer out of order")
	// ErrNotInProgress is returned when mutating a terminal briefing.
	ErrNotInProgress = errors.New("briefing: briefing is not in progress")
	// ErrIncompleteRequired is returned by Complete while required orders are missing.
	ErrIncompleteRequired = errors.New("briefing: required questions not answered")
	// ErrBriefingCompleted is returned when cancelling a completed briefing.
	ErrBriefingCompleted = errors.New("briefing: briefing already completed")
	// ErrActiveBriefingConflict is the storage-level uniqueness conflict on the
	// one-active-briefing-per-client index.
	ErrActiveBriefingConflict = errors.New("briefing: client already has an active briefing")

	// ErrCommandRejected is the parent of every in-band command rejection.
	ErrCommandRejected = errors.New("briefing: command rejected")
	// ErrCannotSkipRequired is returned when "skip" targets a required question.
	ErrCannotSkipRequired = fmt.Errorf("%w: cannot skip a required question", ErrCommandRejected)
	// ErrCannotGoBack is returned when "back" is used on the first question.
	ErrCannotGoBack = fmt.Errorf("%w: already at the first question", ErrCommandRejected)
)

// Validation failure reasons.
const (
	ReasonBlank         = "blank"
	ReasonNotANumber    = "not_a_number"
	ReasonInvalidOption = "invalid_option"
)

// ValidationError rejects an answer without mutating any state.
type ValidationError struct {
	Order   int
	Type    QuestionType
	Reason  string
	Options []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("briefing: invalid answer for question %d (%s): %s", e.Order, e.Type, e.Reason)
}

// IsRejection reports whether err is a recoverable, user-facing rejection.
func IsRejection(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrCommandRejected)
}
