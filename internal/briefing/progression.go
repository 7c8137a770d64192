package briefing

// NextQuestionForSession returns the first question at or after the session
// cursor that the briefing has not answered.
func NextQuestionForSession(s *Session, b *Briefing, rev *Revision) (Question, bool) {
	for _, q := range rev.Questions {
		if q.Order < s.Cursor {
			continue
		}
		if !b.Answered(q.Order) {
			return q, true
		}
	}
	return Question{}, false
}

// Reconcile moves both cursors forward to the next unanswered question after a
// forward mutation. Neither cursor ever moves backwards here. It returns the
// question the conversation should present next, if any.
func Reconcile(s *Session, b *Briefing, rev *Revision) (Question, bool) {
	if s.Cursor < b.Cursor {
		s.Cursor = b.Cursor
	}
	next, ok := NextQuestionForSession(s, b, rev)
	if !ok {
		return Question{}, false
	}
	if b.Cursor < next.Order {
		b.Cursor = next.Order
	}
	s.Cursor = next.Order
	return next, true
}

// ShouldComplete is the completion predicate: every required question is
// answered and either nothing remains for the session, or only optional
// questions remain and the briefing cursor has reached the final order.
func ShouldComplete(s *Session, b *Briefing, rev *Revision) bool {
	if len(b.MissingRequired(rev)) > 0 {
		return false
	}
	next, ok := NextQuestionForSession(s, b, rev)
	if !ok {
		return true
	}
	for _, q := range rev.Questions {
		if q.Order >= next.Order && q.Required && !b.Answered(q.Order) {
			return false
		}
	}
	return b.Cursor >= rev.FinalOrder()
}
