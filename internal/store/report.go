package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// BriefingSummary is one row of the operator briefing list.
type BriefingSummary struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	ClientName  string     `json:"client_name"`
	Address     string     `json:"address"`
	Status      string     `json:"status"`
	Cursor      int        `json:"current_question_order"`
	Answered    int        `json:"answered_questions"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListFilter narrows ListBriefings. An empty Statuses matches every status.
type ListFilter struct {
	TenantID uuid.UUID
	Statuses []string
	Limit    int
}

// Reporter serves read-only operator queries over database/sql.
type Reporter struct {
	db *sql.DB
}

func NewReporter(db *sql.DB) *Reporter {
	return &Reporter{db: db}
}

var allStatuses = []string{"in_progress", "completed", "cancelled"}

func (r *Reporter) ListBriefings(ctx context.Context, f ListFilter) ([]BriefingSummary, error) {
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = allStatuses
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT b.id, b.client_id, c.name, c.address, b.status, b.current_question_order,
			(SELECT count(*) FROM jsonb_object_keys(b.answers)), b.created_at, b.completed_at
		FROM briefings b
		JOIN end_clients c ON c.id = b.client_id
		WHERE c.tenant_id = $1 AND b.status = ANY($2::text[])
		ORDER BY b.created_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, f.TenantID, pq.Array(statuses), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list briefings: %w", err)
	}
	defer rows.Close()

	var out []BriefingSummary
	for rows.Next() {
		var (
			s           BriefingSummary
			completedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.ClientID, &s.ClientName, &s.Address, &s.Status, &s.Cursor, &s.Answered, &s.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: scan briefing summary: %w", err)
		}
		if completedAt.Valid {
			at := completedAt.Time
			s.CompletedAt = &at
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate briefing summaries: %w", err)
	}
	return out, nil
}

// AnalyticsRow is a stored completion metrics record.
type AnalyticsRow struct {
	BriefingID      uuid.UUID `json:"briefing_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	CompletionRate  float64   `json:"completion_rate"`
	OptionalSkipped int       `json:"optional_skipped"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecentAnalytics lists completion metrics for the tenant, newest first.
func (r *Reporter) RecentAnalytics(ctx context.Context, tenantID uuid.UUID, limit int) ([]AnalyticsRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT a.briefing_id, a.duration_seconds, a.completion_rate, a.optional_skipped, a.created_at
		FROM briefing_analytics a
		JOIN briefings b ON b.id = a.briefing_id
		JOIN end_clients c ON c.id = b.client_id
		WHERE c.tenant_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent analytics: %w", err)
	}
	defer rows.Close()

	var out []AnalyticsRow
	for rows.Next() {
		var row AnalyticsRow
		if err := rows.Scan(&row.BriefingID, &row.DurationSeconds, &row.CompletionRate, &row.OptionalSkipped, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan analytics: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
