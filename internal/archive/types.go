package archive

import (
	"time"

	"github.com/wolfman30/briefing-platform/internal/briefing"
)

const recordVersion = "1.0"

// BriefingRecord is the JSON export of a completed briefing.
type BriefingRecord struct {
	Version         string           `json:"version"`
	BriefingID      string           `json:"briefing_id"`
	TenantID        string           `json:"tenant_id"`
	ClientID        string           `json:"client_id"`
	PhoneHash       string           `json:"phone_hash"`
	TemplateID      string           `json:"template_id"`
	RevisionID      string           `json:"revision_id"`
	RevisionVersion int              `json:"revision_version"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     time.Time        `json:"completed_at"`
	ArchivedAt      time.Time        `json:"archived_at"`
	Metrics         briefing.Metrics `json:"metrics"`
	Answers         []Answer         `json:"answers"`
}

// Answer pairs a question with the stored response. Skipped questions have
// Skipped set and an empty Value.
type Answer struct {
	Order    int    `json:"order"`
	Prompt   string `json:"prompt"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Value    string `json:"value,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// ManifestEntry is one line in the monthly JSONL manifest.
type ManifestEntry struct {
	BriefingID     string  `json:"briefing_id"`
	TenantID       string  `json:"tenant_id"`
	S3Key          string  `json:"s3_key"`
	ArchivedAt     string  `json:"archived_at"`
	AnswerCount    int     `json:"answer_count"`
	CompletionRate float64 `json:"completion_rate"`
}

// NewRecord builds the export for evt. Answers are scrubbed of contact data.
func NewRecord(evt briefing.Completed, archivedAt time.Time) *BriefingRecord {
	b, rev := evt.Briefing, evt.Revision
	rec := &BriefingRecord{
		Version:         recordVersion,
		BriefingID:      b.ID.String(),
		TenantID:        evt.Client.TenantID.String(),
		ClientID:        b.ClientID.String(),
		PhoneHash:       HashPhone(evt.Client.Address),
		TemplateID:      rev.TemplateID.String(),
		RevisionID:      rev.ID.String(),
		RevisionVersion: rev.Version,
		StartedAt:       b.CreatedAt,
		ArchivedAt:      archivedAt,
		Metrics:         evt.Metrics,
	}
	if b.CompletedAt != nil {
		rec.CompletedAt = *b.CompletedAt
	}
	for _, q := range rev.Questions {
		value, ok := b.Answers[q.Order]
		rec.Answers = append(rec.Answers, Answer{
			Order:    q.Order,
			Prompt:   q.Prompt,
			Type:     string(q.Type),
			Required: q.Required,
			Value:    value,
			Skipped:  !ok,
		})
	}
	ScrubAnswers(rec.Answers)
	return rec
}
