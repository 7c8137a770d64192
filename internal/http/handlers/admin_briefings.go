package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/analytics"
	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/http/middleware"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

type briefingService interface {
	Start(ctx context.Context, req processor.StartRequest) (*processor.StartResult, error)
	Cancel(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error)
	Progress(ctx context.Context, id uuid.UUID) (*briefing.Progress, error)
}

type briefingLookup interface {
	GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error)
	GetClient(ctx context.Context, id uuid.UUID) (*briefing.Client, error)
	PublishRevision(ctx context.Context, rev *briefing.Revision) error
}

type briefingReporter interface {
	ListBriefings(ctx context.Context, f store.ListFilter) ([]store.BriefingSummary, error)
	RecentAnalytics(ctx context.Context, tenantID uuid.UUID, limit int) ([]store.AnalyticsRow, error)
}

type analyticsReader interface {
	Get(ctx context.Context, briefingID uuid.UUID) (*analytics.Record, error)
}

// AdminBriefingsConfig wires an AdminBriefingsHandler.
type AdminBriefingsConfig struct {
	Service     briefingService
	Lookup      briefingLookup
	Reporter    briefingReporter
	Analytics   analyticsReader
	CountryCode string
	Logger      *logging.Logger
}

// AdminBriefingsHandler is the operator API. Every request is scoped to the
// tenant in the caller's token.
type AdminBriefingsHandler struct {
	service     briefingService
	lookup      briefingLookup
	reporter    briefingReporter
	analytics   analyticsReader
	countryCode string
	logger      *logging.Logger
}

func NewAdminBriefingsHandler(cfg AdminBriefingsConfig) *AdminBriefingsHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	return &AdminBriefingsHandler{
		service:     cfg.Service,
		lookup:      cfg.Lookup,
		reporter:    cfg.Reporter,
		analytics:   cfg.Analytics,
		countryCode: cfg.CountryCode,
		logger:      cfg.Logger,
	}
}

type startBriefingRequest struct {
	ClientName string    `json:"client_name"`
	Phone      string    `json:"phone"`
	RevisionID uuid.UUID `json:"revision_id"`
}

type briefingResponse struct {
	ID         uuid.UUID         `json:"id"`
	ClientID   uuid.UUID         `json:"client_id"`
	RevisionID uuid.UUID         `json:"revision_id"`
	Status     briefing.Status   `json:"status"`
	Cursor     int               `json:"current_question_order"`
	Answers    map[string]string `json:"answers"`
	Resumed    bool              `json:"resumed,omitempty"`
	Notified   bool              `json:"notified,omitempty"`
}

func toBriefingResponse(b *briefing.Briefing) briefingResponse {
	answers := make(map[string]string, len(b.Answers))
	for order, value := range b.Answers {
		answers[strconv.Itoa(order)] = value
	}
	return briefingResponse{
		ID:         b.ID,
		ClientID:   b.ClientID,
		RevisionID: b.RevisionID,
		Status:     b.Status,
		Cursor:     b.Cursor,
		Answers:    answers,
	}
}

// Start handles POST /admin/briefings. It answers 201 for a new briefing and
// 200 when the client already had one in progress.
func (h *AdminBriefingsHandler) Start(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}
	var req startBriefingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	address := briefing.NormalizeAddress(req.Phone, h.countryCode)
	if address == "" || req.RevisionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "phone and revision_id are required")
		return
	}

	res, err := h.service.Start(r.Context(), processor.StartRequest{
		TenantID:   tenant,
		ClientName: req.ClientName,
		Address:    address,
		RevisionID: req.RevisionID,
	})
	if err != nil {
		h.fail(w, "start briefing", err)
		return
	}
	resp := toBriefingResponse(res.Briefing)
	resp.Resumed = res.Resumed
	resp.Notified = res.Notified
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// List handles GET /admin/briefings?status=in_progress,completed&limit=50.
func (h *AdminBriefingsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}
	filter := store.ListFilter{TenantID: tenant}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := briefing.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unknown status "+part)
				return
			}
			filter.Statuses = append(filter.Statuses, st.String())
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	rows, err := h.reporter.ListBriefings(r.Context(), filter)
	if err != nil {
		h.fail(w, "list briefings", err)
		return
	}
	if rows == nil {
		rows = []store.BriefingSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"briefings": rows})
}

// Progress handles GET /admin/briefings/{id}.
func (h *AdminBriefingsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedBriefing(w, r)
	if !ok {
		return
	}
	progress, err := h.service.Progress(r.Context(), id)
	if err != nil {
		h.fail(w, "briefing progress", err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Cancel handles POST /admin/briefings/{id}/cancel.
func (h *AdminBriefingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedBriefing(w, r)
	if !ok {
		return
	}
	b, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, "cancel briefing", err)
		return
	}
	writeJSON(w, http.StatusOK, toBriefingResponse(b))
}

// Analytics handles GET /admin/briefings/{id}/analytics.
func (h *AdminBriefingsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ownedBriefing(w, r)
	if !ok {
		return
	}
	if h.analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	rec, err := h.analytics.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "briefing analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RecentAnalytics handles GET /admin/analytics.
func (h *AdminBriefingsHandler) RecentAnalytics(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}
	rows, err := h.reporter.RecentAnalytics(r.Context(), tenant, 0)
	if err != nil {
		h.fail(w, "recent analytics", err)
		return
	}
	if rows == nil {
		rows = []store.AnalyticsRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analytics": rows})
}

type publishRevisionRequest struct {
	Version   int                 `json:"version"`
	Questions []briefing.Question `json:"questions"`
}

// PublishRevision handles POST /admin/templates/{templateID}/revisions.
func (h *AdminBriefingsHandler) PublishRevision(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.TenantFromContext(r.Context()); !ok {
		writeError(w, http.StatusForbidden, "tenant required")
		return
	}
	templateID, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	var req publishRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Version <= 0 {
		writeError(w, http.StatusBadRequest, "version must be positive")
		return
	}
	rev, err := briefing.NewRevision(uuid.New(), templateID, req.Version, req.Questions)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.lookup.PublishRevision(r.Context(), rev); err != nil {
		h.fail(w, "publish revision", err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

// ownedBriefing parses the {id} route param and checks the briefing belongs to
// the caller's tenant. Foreign briefings are reported as missing.
func (h *AdminBriefingsHandler) ownedBriefing(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "tenant required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid briefing id")
		return uuid.Nil, false
	}
	b, err := h.lookup.GetBriefing(r.Context(), id)
	if err != nil {
		h.fail(w, "load briefing", err)
		return uuid.Nil, false
	}
	client, err := h.lookup.GetClient(r.Context(), b.ClientID)
	if err != nil {
		h.fail(w, "load client", err)
		return uuid.Nil, false
	}
	if client.TenantID != tenant {
		writeError(w, http.StatusNotFound, "briefing not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminBriefingsHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, briefing.ErrBriefingNotFound),
		errors.Is(err, briefing.ErrClientNotFound),
		errors.Is(err, analytics.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, briefing.ErrRevisionNotFound), errors.Is(err, briefing.ErrInvalidRevision):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, briefing.ErrBriefingCompleted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("admin request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
