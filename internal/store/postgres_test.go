package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/wolfman30/briefing-platform/internal/briefing"
)

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func TestFindClientByAddress(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	clientID, tenantID := uuid.New(), uuid.New()

	mock.ExpectQuery(`(?s)SELECT c.id, c.tenant_id, c.name, c.address\s+FROM end_clients c\s+LEFT JOIN briefings b .*status = 'in_progress'.*ORDER BY \(b.id IS NOT NULL\) DESC`).
		WithArgs("+5511999998888").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "name", "address"}).
			AddRow(clientID, tenantID, "Ana Souza", "+5511999998888"))
	c, err := store.FindClientByAddress(ctx, "+5511999998888")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if c.ID != clientID || c.Name != "Ana Souza" {
		t.Fatalf("unexpected client %+v", c)
	}

	mock.ExpectQuery(`(?s)SELECT c.id, c.tenant_id, c.name, c.address\s+FROM end_clients c\s+LEFT JOIN briefings b .*status = 'in_progress'.*ORDER BY \(b.id IS NOT NULL\) DESC`).
		WithArgs("+5511000000000").
		WillReturnError(pgx.ErrNoRows)
	if _, err := store.FindClientByAddress(ctx, "+5511000000000"); !errors.Is(err, briefing.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevisionDecodesQuestions(t *testing.T) {
	store, mock := newMockStore(t)
	revID, templateID := uuid.New(), uuid.New()
	questions := []byte(`[{"order":2,"prompt":"Orçamento?","type":"number","required":true},{"order":1,"prompt":"Tipo?","type":"text","required":true}]`)

	mock.ExpectQuery("SELECT id, template_id, version, questions FROM template_revisions").
		WithArgs(revID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "template_id", "version", "questions"}).
			AddRow(revID, templateID, 3, questions))

	rev, err := store.Revision(context.Background(), revID)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if rev.Version != 3 || rev.Len() != 2 || rev.Questions[0].Order != 1 {
		t.Fatalf("unexpected revision %+v", rev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertBriefingConflictUsesSavepoint(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clientID := uuid.New()
	rev, err := briefing.NewRevision(uuid.New(), uuid.New(), 1, []briefing.Question{{Order: 1, Prompt: "Tipo?", Required: true}})
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	b := briefing.Start(clientID, rev, now)
	existingID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO briefings").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_briefings_active_client"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM briefings WHERE client_id = \\$1 AND status = 'in_progress' FOR UPDATE").
		WithArgs(clientID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "client_id", "revision_id", "status", "current_question_order", "answers", "completed_at", "created_at", "updated_at"}).
			AddRow(existingID, clientID, rev.ID, "in_progress", 1, []byte(`{}`), nil, now, now))
	mock.ExpectCommit()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.InsertBriefing(ctx, b); !errors.Is(err, briefing.ErrActiveBriefingConflict) {
		t.Fatalf("expected ErrActiveBriefingConflict, got %v", err)
	}
	active, err := tx.ActiveBriefing(ctx, clientID)
	if err != nil {
		t.Fatalf("active briefing: %v", err)
	}
	if active.ID != existingID || active.Status != briefing.StatusInProgress {
		t.Fatalf("unexpected active briefing %+v", active)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveInboundDeduplicates(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	msg := InboundMessage{ProviderMessageID: "wamid.1", ClientID: uuid.New(), Address: "+55", Body: "Casa", ReceivedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channel_messages").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO channel_messages").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT outcome FROM channel_messages").
		WithArgs("wamid.1").
		WillReturnRows(pgxmock.NewRows([]string{"outcome"}).AddRow([]byte(`{"success":true}`)))
	mock.ExpectRollback()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	created, err := tx.SaveInbound(ctx, msg)
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got %v %v", created, err)
	}
	created, err = tx.SaveInbound(ctx, msg)
	if err != nil || created {
		t.Fatalf("expected duplicate insert to be ignored, got %v %v", created, err)
	}
	outcome, err := tx.InboundOutcome(ctx, "wamid.1")
	if err != nil || string(outcome) != `{"success":true}` {
		t.Fatalf("unexpected outcome %q %v", outcome, err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateMessageStatusUnknownMessage(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now()
	mock.ExpectExec("UPDATE channel_messages").
		WithArgs("wamid.x", "delivered", at, "", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateMessageStatus(context.Background(), StatusUpdate{ProviderMessageID: "wamid.x", Status: "delivered", At: at})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
