package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/briefing-platform/internal/briefing"
)

// ErrNotFound is returned when a briefing has no analytics row.
var ErrNotFound = errors.New("analytics: record not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is the stored analytics row of a completed briefing.
type Record struct {
	BriefingID uuid.UUID        `json:"briefing_id"`
	ClientID   uuid.UUID        `json:"client_id"`
	RevisionID uuid.UUID        `json:"revision_id"`
	Metrics    briefing.Metrics `json:"metrics"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Recorder persists completion metrics to briefing_analytics.
type Recorder struct {
	db  querier
	now func() time.Time
}

func NewRecorder(db querier) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

const insertAnalytics = `
	INSERT INTO briefing_analytics (
		briefing_id, client_id, revision_id, duration_seconds,
		total_questions, answered_questions, required_questions, required_answered,
		optional_questions, optional_answered, optional_skipped, completion_rate,
		metrics, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (briefing_id) DO NOTHING`

// BriefingCompleted stores evt's metrics. A second call for the same briefing
// is a no-op.
func (r *Recorder) BriefingCompleted(ctx context.Context, evt briefing.Completed) error {
	m := evt.Metrics
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("analytics: encode metrics: %w", err)
	}
	_, err = r.db.Exec(ctx, insertAnalytics,
		evt.Briefing.ID, evt.Briefing.ClientID, evt.Briefing.RevisionID, m.DurationSeconds,
		m.Total, m.Answered, m.Required, m.RequiredAnswered,
		m.Optional, m.OptionalAnswered, m.OptionalSkipped, m.CompletionRate,
		raw, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("analytics: insert: %w", err)
	}
	return nil
}

// Get loads the analytics row of a briefing.
func (r *Recorder) Get(ctx context.Context, briefingID uuid.UUID) (*Record, error) {
	var (
		rec Record
		raw []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT briefing_id, client_id, revision_id, metrics, created_at
		FROM briefing_analytics
		WHERE briefing_id = $1`, briefingID,
	).Scan(&rec.BriefingID, &rec.ClientID, &rec.RevisionID, &raw, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("analytics: get: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Metrics); err != nil {
		return nil, fmt.Errorf("analytics: decode metrics: %w", err)
	}
	return &rec, nil
}
