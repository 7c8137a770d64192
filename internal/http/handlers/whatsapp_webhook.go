package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/internal/whatsapp"
	"github.com/wolfman30/briefing-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxWebhookBody = 1 << 20

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, in processor.Inbound) error
}

type statusRecorder interface {
	UpdateMessageStatus(ctx context.Context, update store.StatusUpdate) error
}

// WhatsAppWebhookConfig wires a WhatsAppWebhookHandler.
type WhatsAppWebhookConfig struct {
	VerifyToken string
	AppSecret   string
	CountryCode string
	Publisher   inboundPublisher
	Statuses    statusRecorder
	Logger      *logging.Logger
	Tracer      trace.Tracer
}

// WhatsAppWebhookHandler serves the provider's verification handshake and
// accepts notifications. Receive always answers 200 so the provider never
// starts its own retry storm; failures are logged and retried by dispatch.
type WhatsAppWebhookHandler struct {
	verifyToken string
	appSecret   string
	countryCode string
	publisher   inboundPublisher
	statuses    statusRecorder
	logger      *logging.Logger
	tracer      trace.Tracer
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("briefing.internal.http.handlers")
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	return &WhatsAppWebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		countryCode: cfg.CountryCode,
		publisher:   cfg.Publisher,
		statuses:    cfg.Statuses,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
	}
}

// Verify handles GET /webhooks/whatsapp.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")
	if mode == "" || token == "" || challenge == "" {
		http.Error(w, "missing verification parameters", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Warn("whatsapp webhook verification rejected", "mode", mode)
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// Receive handles POST /webhooks/whatsapp.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "webhook.whatsapp.receive")
	defer span.End()
	defer writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read whatsapp webhook body", "error", err)
		return
	}
	if h.appSecret != "" {
		if err := whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.logger.Warn("invalid whatsapp webhook signature", "error", err)
			span.RecordError(err)
			return
		}
	}
	note, err := whatsapp.Parse(body)
	if err != nil {
		h.logger.Warn("invalid whatsapp webhook payload", "error", err)
		return
	}
	span.SetAttributes(
		attribute.Int("messages", len(note.Messages)),
		attribute.Int("statuses", len(note.Statuses)),
	)

	for _, msg := range note.Messages {
		h.enqueue(ctx, msg)
	}
	for _, st := range note.Statuses {
		h.applyStatus(ctx, st)
	}
}

func (h *WhatsAppWebhookHandler) enqueue(ctx context.Context, msg whatsapp.InboundMessage) {
	log := h.logger.With("message_id", msg.ID, "type", msg.Type)
	if !msg.HasText() {
		log.Info("ignoring non-text whatsapp message")
		return
	}
	if h.publisher == nil {
		log.Error("no inbound publisher configured")
		return
	}
	in := processor.Inbound{
		Address:   briefing.NormalizeAddress(msg.From, h.countryCode),
		Text:      msg.Text,
		MessageID: msg.ID,
	}
	if err := h.publisher.EnqueueInbound(ctx, in); err != nil {
		log.Error("failed to enqueue inbound message", "error", err)
		return
	}
	log.Debug("inbound message enqueued")
}

func (h *WhatsAppWebhookHandler) applyStatus(ctx context.Context, st whatsapp.StatusUpdate) {
	if h.statuses == nil {
		return
	}
	status, ok := deliveryStatus(st.Status)
	if !ok {
		h.logger.Debug("ignoring whatsapp status", "status", st.Status, "message_id", st.MessageID)
		return
	}
	at := st.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err := h.statuses.UpdateMessageStatus(ctx, store.StatusUpdate{
		ProviderMessageID: st.MessageID,
		Status:            status,
		At:                at,
		ErrorCode:         st.ErrorCode,
		ErrorTitle:        st.ErrorTitle,
	})
	switch {
	case errors.Is(err, store.ErrMessageNotFound):
		h.logger.Debug("status for unknown message", "message_id", st.MessageID, "status", status)
	case err != nil:
		h.logger.Error("failed to record message status", "message_id", st.MessageID, "error", err)
	}
}

func deliveryStatus(raw string) (string, bool) {
	switch raw {
	case "sent":
		return store.MessageSent, true
	case "delivered":
		return store.MessageDelivered, true
	case "read":
		return store.MessageRead, true
	case "failed":
		return store.MessageFailed, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
