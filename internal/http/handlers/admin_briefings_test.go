package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/analytics"
	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/http/middleware"
	"github.com/wolfman30/briefing-platform/internal/ledger"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/internal/whatsapp"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

type nopSender struct{ n int }

func (s *nopSender) SendText(ctx context.Context, to, text string) (*whatsapp.SendResult, error) {
	s.n++
	return &whatsapp.SendResult{MessageID: fmt.Sprintf("wamid.out.%d", s.n)}, nil
}

type stubReporter struct {
	filter store.ListFilter
	rows   []store.BriefingSummary
}

func (s *stubReporter) ListBriefings(ctx context.Context, f store.ListFilter) ([]store.BriefingSummary, error) {
	s.filter = f
	return s.rows, nil
}

func (s *stubReporter) RecentAnalytics(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.AnalyticsRow, error) {
	return nil, nil
}

type stubAnalytics struct {
	records map[uuid.UUID]*analytics.Record
}

func (s *stubAnalytics) Get(ctx context.Context, id uuid.UUID) (*analytics.Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, analytics.ErrNotFound
	}
	return rec, nil
}

type adminFixture struct {
	router    http.Handler
	repo      *store.Memory
	reporter  *stubReporter
	analytics *stubAnalytics
	rev       *briefing.Revision
	tenant    uuid.UUID
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	repo := store.NewMemory()
	rev, err := briefing.NewRevision(uuid.New(), uuid.New(), 1, []briefing.Question{
		{Order: 1, Prompt: "Tipo de imóvel?", Required: true},
		{Order: 2, Prompt: "Orçamento?", Type: briefing.TypeNumber, Required: true},
	})
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if err := repo.PublishRevision(context.Background(), rev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	logger := logging.NewWithWriter(io.Discard, "error")
	proc, err := processor.New(processor.Config{
		Repo:   repo,
		Ledger: ledger.NewMemoryStore(),
		Sender: &nopSender{},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	f := &adminFixture{
		repo:      repo,
		reporter:  &stubReporter{},
		analytics: &stubAnalytics{records: map[uuid.UUID]*analytics.Record{}},
		rev:       rev,
		tenant:    uuid.New(),
	}
	h := NewAdminBriefingsHandler(AdminBriefingsConfig{
		Service:   proc,
		Lookup:    repo,
		Reporter:  f.reporter,
		Analytics: f.analytics,
		Logger:    logger,
	})
	r := chi.NewRouter()
	r.Post("/admin/briefings", h.Start)
	r.Get("/admin/briefings", h.List)
	r.Get("/admin/briefings/{id}", h.Progress)
	r.Post("/admin/briefings/{id}/cancel", h.Cancel)
	r.Get("/admin/briefings/{id}/analytics", h.Analytics)
	r.Post("/admin/templates/{templateID}/revisions", h.PublishRevision)
	f.router = r
	return f
}

func (f *adminFixture) do(t *testing.T, tenant uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithAdminClaims(req.Context(), middleware.AdminClaims{TenantID: tenant.String()}))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *adminFixture) start(t *testing.T) briefingResponse {
	t.Helper()
	rec := f.do(t, f.tenant, http.MethodPost, "/admin/briefings", map[string]any{
		"client_name": "Carla Dias",
		"phone":       "(11) 98888-7777",
		"revision_id": f.rev.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp briefingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestAdminStartCreatesThenResumes(t *testing.T) {
	f := newAdminFixture(t)
	first := f.start(t)
	if !first.Notified || first.Status != briefing.StatusInProgress {
		t.Fatalf("unexpected start response %+v", first)
	}

	rec := f.do(t, f.tenant, http.MethodPost, "/admin/briefings", map[string]any{
		"phone":       "+55 11 98888-7777",
		"revision_id": f.rev.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on resume, got %d", rec.Code)
	}
	var second briefingResponse
	_ = json.NewDecoder(rec.Body).Decode(&second)
	if !second.Resumed || second.ID != first.ID {
		t.Fatalf("expected resumed briefing %s, got %+v", first.ID, second)
	}
}

func TestAdminStartValidation(t *testing.T) {
	f := newAdminFixture(t)
	rec := f.do(t, f.tenant, http.MethodPost, "/admin/briefings", map[string]any{"phone": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = f.do(t, f.tenant, http.MethodPost, "/admin/briefings", map[string]any{"phone": "11988887777", "revision_id": uuid.New()})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown revision, got %d", rec.Code)
	}
}

func TestAdminProgressAndTenantScoping(t *testing.T) {
	f := newAdminFixture(t)
	started := f.start(t)

	rec := f.do(t, f.tenant, http.MethodGet, "/admin/briefings/"+started.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var progress briefing.Progress
	_ = json.NewDecoder(rec.Body).Decode(&progress)
	if progress.Total != 2 || progress.Answered != 0 || progress.Cursor != 1 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	rec = f.do(t, uuid.New(), http.MethodGet, "/admin/briefings/"+started.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign tenant, got %d", rec.Code)
	}
	rec = f.do(t, f.tenant, http.MethodGet, "/admin/briefings/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminCancel(t *testing.T) {
	f := newAdminFixture(t)
	started := f.start(t)

	for i := 0; i < 2; i++ {
		rec := f.do(t, f.tenant, http.MethodPost, "/admin/briefings/"+started.ID.String()+"/cancel", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("cancel %d: expected 200, got %d", i, rec.Code)
		}
		var resp briefingResponse
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Status != briefing.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", resp.Status)
		}
	}
}

func TestAdminAnalytics(t *testing.T) {
	f := newAdminFixture(t)
	started := f.start(t)

	rec := f.do(t, f.tenant, http.MethodGet, "/admin/briefings/"+started.ID.String()+"/analytics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before completion, got %d", rec.Code)
	}

	f.analytics.records[started.ID] = &analytics.Record{
		BriefingID: started.ID,
		Metrics:    briefing.Metrics{Total: 2, Answered: 2, CompletionRate: 100},
		CreatedAt:  time.Now(),
	}
	rec = f.do(t, f.tenant, http.MethodGet, "/admin/briefings/"+started.ID.String()+"/analytics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminListParsesFilters(t *testing.T) {
	f := newAdminFixture(t)
	rec := f.do(t, f.tenant, http.MethodGet, "/admin/briefings?status=completed,cancelled&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.reporter.filter.TenantID != f.tenant || f.reporter.filter.Limit != 10 {
		t.Fatalf("unexpected filter %+v", f.reporter.filter)
	}
	if len(f.reporter.filter.Statuses) != 2 || f.reporter.filter.Statuses[0] != "completed" {
		t.Fatalf("unexpected statuses %v", f.reporter.filter.Statuses)
	}
	var body map[string][]store.BriefingSummary
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["briefings"] == nil {
		t.Fatalf("expected empty list, not null")
	}

	rec = f.do(t, f.tenant, http.MethodGet, "/admin/briefings?status=archived", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestAdminPublishRevision(t *testing.T) {
	f := newAdminFixture(t)
	templateID := uuid.New()

	rec := f.do(t, f.tenant, http.MethodPost, "/admin/templates/"+templateID.String()+"/revisions", map[string]any{
		"version": 2,
		"questions": []map[string]any{
			{"order": 1, "prompt": "Estilo?", "type": "multiple_choice", "required": true, "options": []string{"Moderno", "Clássico"}},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rev briefing.Revision
	_ = json.NewDecoder(rec.Body).Decode(&rev)
	if _, err := f.repo.Revision(context.Background(), rev.ID); err != nil {
		t.Fatalf("expected stored revision: %v", err)
	}

	rec = f.do(t, f.tenant, http.MethodPost, "/admin/templates/"+templateID.String()+"/revisions", map[string]any{
		"version":   3,
		"questions": []map[string]any{{"order": 0, "prompt": "x"}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
