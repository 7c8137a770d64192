package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/briefing-platform/internal/briefing"
)

const (
	activeBriefingConstraint = "uq_briefings_active_client"
	uniqueViolation          = "23505"
)

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres implements Repository on top of pgx.
type Postgres struct {
	pool PgxPool
}

func NewPostgres(pool PgxPool) *Postgres {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Postgres{pool: pool}
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

const clientColumns = `id, tenant_id, name, address`

func scanClient(row pgx.Row) (*briefing.Client, error) {
	var c briefing.Client
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Address); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindClientByAddress resolves the sender of an inbound message. The same
// address may belong to clients of several tenants; the one with an
// in-progress briefing wins, then the most recently updated.
func (p *Postgres) FindClientByAddress(ctx context.Context, address string) (*briefing.Client, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.address
		FROM end_clients c
		LEFT JOIN briefings b ON b.client_id = c.id AND b.status = 'in_progress'
		WHERE c.address = $1
		ORDER BY (b.id IS NOT NULL) DESC, c.updated_at DESC
		LIMIT 1`
	c, err := scanClient(p.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrClientNotFound
		}
		return nil, fmt.Errorf("store: find client by address: %w", err)
	}
	return c, nil
}

func (p *Postgres) GetClient(ctx context.Context, id uuid.UUID) (*briefing.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM end_clients WHERE id = $1`
	c, err := scanClient(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrClientNotFound
		}
		return nil, fmt.Errorf("store: get client: %w", err)
	}
	return c, nil
}

func (p *Postgres) Revision(ctx context.Context, id uuid.UUID) (*briefing.Revision, error) {
	query := `SELECT id, template_id, version, questions FROM template_revisions WHERE id = $1`
	var (
		revID, templateID uuid.UUID
		version           int
		raw               []byte
	)
	if err := p.pool.QueryRow(ctx, query, id).Scan(&revID, &templateID, &version, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrRevisionNotFound
		}
		return nil, fmt.Errorf("store: get revision: %w", err)
	}
	var questions []briefing.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("store: decode revision questions: %w", err)
	}
	return briefing.NewRevision(revID, templateID, version, questions)
}

func (p *Postgres) PublishRevision(ctx context.Context, rev *briefing.Revision) error {
	questions, err := json.Marshal(rev.Questions)
	if err != nil {
		return fmt.Errorf("store: encode revision questions: %w", err)
	}
	query := `
		INSERT INTO template_revisions (id, template_id, version, questions)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := p.pool.Exec(ctx, query, rev.ID, rev.TemplateID, rev.Version, questions); err != nil {
		return fmt.Errorf("store: publish revision: %w", err)
	}
	return nil
}

func (p *Postgres) GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	return getBriefing(ctx, p.pool, id)
}

func (p *Postgres) RecordOutbound(ctx context.Context, msg OutboundMessage) error {
	query := `
		INSERT INTO channel_messages (id, provider_message_id, client_id, session_id, direction, address, body, status, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, 'outbound', $5, $6, 'sent', $7)
		ON CONFLICT (provider_message_id) DO NOTHING
	`
	_, err := p.pool.Exec(ctx, query, uuid.New(), msg.ProviderMessageID, msg.ClientID, msg.SessionID, msg.Address, msg.Body, msg.SentAt)
	if err != nil {
		return fmt.Errorf("store: record outbound: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateMessageStatus(ctx context.Context, update StatusUpdate) error {
	query := `
		UPDATE channel_messages
		SET status = $2,
			delivered_at = CASE WHEN $2 = 'delivered' THEN $3 ELSE delivered_at END,
			read_at = CASE WHEN $2 = 'read' THEN $3 ELSE read_at END,
			failed_at = CASE WHEN $2 = 'failed' THEN $3 ELSE failed_at END,
			error_code = COALESCE(NULLIF($4, ''), error_code),
			error_title = COALESCE(NULLIF($5, ''), error_title)
		WHERE provider_message_id = $1
	`
	ct, err := p.pool.Exec(ctx, query, update.ProviderMessageID, update.Status, update.At, update.ErrorCode, update.ErrorTitle)
	if err != nil {
		return fmt.Errorf("store: update message status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

const briefingColumns = `id, client_id, revision_id, status, current_question_order, answers, completed_at, created_at, updated_at`

func scanBriefing(row pgx.Row) (*briefing.Briefing, error) {
	var (
		b       briefing.Briefing
		status  string
		answers []byte
	)
	if err := row.Scan(&b.ID, &b.ClientID, &b.RevisionID, &status, &b.Cursor, &answers, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := briefing.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	b.Status = parsed
	b.Answers = make(map[int]string)
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &b.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &b, nil
}

func getBriefing(ctx context.Context, q Querier, id uuid.UUID) (*briefing.Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings WHERE id = $1`
	b, err := scanBriefing(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrBriefingNotFound
		}
		return nil, fmt.Errorf("store: get briefing: %w", err)
	}
	return b, nil
}

const sessionColumns = `id, client_id, briefing_id, address, status, current_question_index, created_at, last_interaction_at`

func scanSession(row pgx.Row) (*briefing.Session, error) {
	var (
		s      briefing.Session
		status string
	)
	if err := row.Scan(&s.ID, &s.ClientID, &s.BriefingID, &s.Address, &status, &s.Cursor, &s.CreatedAt, &s.LastInteractionAt); err != nil {
		return nil, err
	}
	s.Status = briefing.SessionStatus(status)
	return &s, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}

func (t *pgTx) UpsertClient(ctx context.Context, c briefing.Client) (*briefing.Client, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO end_clients (id, tenant_id, name, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, address)
		DO UPDATE SET name = COALESCE(NULLIF(EXCLUDED.name, ''), end_clients.name),
			updated_at = now()
		RETURNING ` + clientColumns
	out, err := scanClient(t.tx.QueryRow(ctx, query, c.ID, c.TenantID, c.Name, c.Address))
	if err != nil {
		return nil, fmt.Errorf("store: upsert client: %w", err)
	}
	return out, nil
}

// InsertBriefing inserts b inside a savepoint so a conflict on the
// one-active-briefing index leaves the outer transaction usable.
func (t *pgTx) InsertBriefing(ctx context.Context, b *briefing.Briefing) error {
	answers, err := json.Marshal(b.Answers)
	if err != nil {
		return fmt.Errorf("store: encode answers: %w", err)
	}
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: savepoint: %w", err)
	}
	query := `
		INSERT INTO briefings (id, client_id, revision_id, status, current_question_order, answers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := sp.Exec(ctx, query, b.ID, b.ClientID, b.RevisionID, b.Status.String(), b.Cursor, answers, b.CreatedAt, b.UpdatedAt); err != nil {
		_ = sp.Rollback(ctx)
		if isUniqueViolation(err, activeBriefingConstraint) {
			return briefing.ErrActiveBriefingConflict
		}
		return fmt.Errorf("store: insert briefing: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("store: release savepoint: %w", err)
	}
	return nil
}

func (t *pgTx) ActiveBriefing(ctx context.Context, clientID uuid.UUID) (*briefing.Briefing, error) {
	query := `SELECT ` + briefingColumns + ` FROM briefings WHERE client_id = $1 AND status = 'in_progress' FOR UPDATE`
	b, err := scanBriefing(t.tx.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrNoActiveBriefing
		}
		return nil, fmt.Errorf("store: active briefing: %w", err)
	}
	return b, nil
}

func (t *pgTx) GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	return getBriefing(ctx, t.tx, id)
}

func (t *pgTx) UpdateBriefing(ctx context.Context, b *briefing.Briefing) error {
	answers, err := json.Marshal(b.Answers)
	if err != nil {
		return fmt.Errorf("store: encode answers: %w", err)
	}
	query := `
		UPDATE briefings
		SET status = $2, current_question_order = $3, answers = $4, completed_at = $5, updated_at = $6
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, b.ID, b.Status.String(), b.Cursor, answers, b.CompletedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: update briefing: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return briefing.ErrBriefingNotFound
	}
	return nil
}

func (t *pgTx) ActiveSession(ctx context.Context, clientID uuid.UUID) (*briefing.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM channel_sessions WHERE client_id = $1 AND status = 'active' FOR UPDATE`
	s, err := scanSession(t.tx.QueryRow(ctx, query, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, briefing.ErrSessionNotFound
		}
		return nil, fmt.Errorf("store: active session: %w", err)
	}
	return s, nil
}

// CreateSession inserts s. If a concurrent writer opened the client's active
// session first, s is overwritten with that session instead.
func (t *pgTx) CreateSession(ctx context.Context, s *briefing.Session) error {
	query := `
		INSERT INTO channel_sessions (id, client_id, briefing_id, address, status, current_question_index, created_at, last_interaction_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (client_id) WHERE status = 'active' DO NOTHING
	`
	ct, err := t.tx.Exec(ctx, query, s.ID, s.ClientID, s.BriefingID, s.Address, string(s.Status), s.Cursor, s.CreatedAt, s.LastInteractionAt)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	existing, err := t.ActiveSession(ctx, s.ClientID)
	if err != nil {
		return err
	}
	*s = *existing
	return nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s *briefing.Session) error {
	query := `
		UPDATE channel_sessions
		SET briefing_id = $2, status = $3, current_question_index = $4, last_interaction_at = $5
		WHERE id = $1
	`
	ct, err := t.tx.Exec(ctx, query, s.ID, s.BriefingID, string(s.Status), s.Cursor, s.LastInteractionAt)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return briefing.ErrSessionNotFound
	}
	return nil
}

func (t *pgTx) SaveInbound(ctx context.Context, msg InboundMessage) (bool, error) {
	query := `
		INSERT INTO channel_messages (id, provider_message_id, client_id, session_id, direction, address, body, status, created_at)
		VALUES ($1, $2, $3, $4, 'inbound', $5, $6, 'received', $7)
		ON CONFLICT (provider_message_id) DO NOTHING
	`
	ct, err := t.tx.Exec(ctx, query, uuid.New(), msg.ProviderMessageID, msg.ClientID, msg.SessionID, msg.Address, msg.Body, msg.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("store: save inbound: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (t *pgTx) AttachOutcome(ctx context.Context, providerMessageID string, outcome []byte) error {
	query := `UPDATE channel_messages SET outcome = $2 WHERE provider_message_id = $1`
	if _, err := t.tx.Exec(ctx, query, providerMessageID, outcome); err != nil {
		return fmt.Errorf("store: attach outcome: %w", err)
	}
	return nil
}

func (t *pgTx) InboundOutcome(ctx context.Context, providerMessageID string) ([]byte, error) {
	query := `SELECT outcome FROM channel_messages WHERE provider_message_id = $1`
	var outcome []byte
	if err := t.tx.QueryRow(ctx, query, providerMessageID).Scan(&outcome); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: inbound outcome: %w", err)
	}
	return outcome, nil
}
