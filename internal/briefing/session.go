package briefing

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus tracks whether a channel session accepts traffic.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session is the per-client conversation on a channel. It outlives any single
// briefing and carries its own cursor.
type Session struct {
	ID                uuid.UUID     `json:"id"`
	ClientID          uuid.UUID     `json:"client_id"`
	BriefingID        *uuid.UUID    `json:"briefing_id,omitempty"`
	Address           string        `json:"address"`
	Status            SessionStatus `json:"status"`
	Cursor            int           `json:"cursor"`
	CreatedAt         time.Time     `json:"created_at"`
	LastInteractionAt time.Time     `json:"last_interaction_at"`
}

// NewSession opens an active session with its cursor at the first position.
func NewSession(clientID uuid.UUID, address string, now time.Time) *Session {
	return &Session{
		ID:                uuid.New(),
		ClientID:          clientID,
		Address:           address,
		Status:            SessionActive,
		Cursor:            1,
		CreatedAt:         now,
		LastInteractionAt: now,
	}
}

// Clone returns a copy safe to mutate independently.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.BriefingID != nil {
		id := *s.BriefingID
		out.BriefingID = &id
	}
	return &out
}

// LinkedTo reports whether the session points at briefingID.
func (s *Session) LinkedTo(briefingID uuid.UUID) bool {
	return s.BriefingID != nil && *s.BriefingID == briefingID
}

// Link points the session at briefingID. When the previously linked briefing
// ended, the session cursor restarts at 1.
func (s *Session) Link(briefingID uuid.UUID, priorTerminal bool) {
	if s.LinkedTo(briefingID) {
		return
	}
	if s.BriefingID == nil || priorTerminal {
		s.Cursor = 1
	}
	id := briefingID
	s.BriefingID = &id
}

// Advance moves the session cursor one position forward.
func (s *Session) Advance() { s.Cursor++ }

// MoveTo places the session cursor, used when "back" rewinds both cursors.
func (s *Session) MoveTo(order int) { s.Cursor = order }

// Touch records inbound activity.
func (s *Session) Touch(now time.Time) { s.LastInteractionAt = now }
