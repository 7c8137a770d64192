package briefing

import (
	"math"
	"time"
)

// Progress is the read-only summary exposed to operators.
type Progress struct {
	BriefingID   string  `json:"briefing_id"`
	Status       Status  `json:"status"`
	Cursor       int     `json:"current_question_order"`
	Total        int     `json:"total_questions"`
	Answered     int     `json:"answered_questions"`
	Remaining    int     `json:"remaining_questions"`
	Percentage   float64 `json:"progress_percentage"`
	MissingOrder []int   `json:"missing_required,omitempty"`
}

// ProgressOf summarizes b against rev.
func ProgressOf(b *Briefing, rev *Revision) Progress {
	total := rev.Len()
	answered := 0
	for _, q := range rev.Questions {
		if b.Answered(q.Order) {
			answered++
		}
	}
	p := Progress{
		BriefingID:   b.ID.String(),
		Status:       b.Status,
		Cursor:       b.Cursor,
		Total:        total,
		Answered:     answered,
		Remaining:    total - answered,
		MissingOrder: b.MissingRequired(rev),
	}
	if total > 0 {
		p.Percentage = round2(float64(answered) / float64(total) * 100)
	}
	return p
}

// Metrics are the analytics figures recorded when a briefing completes.
type Metrics struct {
	DurationSeconds  int64   `json:"duration_seconds"`
	Total            int     `json:"total_questions"`
	Answered         int     `json:"answered_questions"`
	Required         int     `json:"required_questions"`
	RequiredAnswered int     `json:"required_answered"`
	Optional         int     `json:"optional_questions"`
	OptionalAnswered int     `json:"optional_answered"`
	OptionalSkipped  int     `json:"optional_skipped"`
	CompletionRate   float64 `json:"completion_rate"`
}

// CalculateMetrics derives completion analytics for b.
func CalculateMetrics(b *Briefing, rev *Revision) Metrics {
	var m Metrics
	m.Total = rev.Len()
	for _, q := range rev.Questions {
		answered := b.Answered(q.Order)
		if answered {
			m.Answered++
		}
		if q.Required {
			m.Required++
			if answered {
				m.RequiredAnswered++
			}
			continue
		}
		m.Optional++
		if answered {
			m.OptionalAnswered++
		}
	}
	m.OptionalSkipped = m.Optional - m.OptionalAnswered
	if m.Total > 0 {
		m.CompletionRate = round2(float64(m.Answered) / float64(m.Total) * 100)
	}
	end := b.UpdatedAt
	if b.CompletedAt != nil {
		end = *b.CompletedAt
	}
	if !b.CreatedAt.IsZero() && end.After(b.CreatedAt) {
		m.DurationSeconds = int64(end.Sub(b.CreatedAt) / time.Second)
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Completed is emitted after a briefing transitions to COMPLETED and the
// transaction has committed.
type Completed struct {
	Briefing *Briefing `json:"briefing"`
	Revision *Revision `json:"revision"`
	Client   Client    `json:"client"`
	Metrics  Metrics   `json:"metrics"`
}
