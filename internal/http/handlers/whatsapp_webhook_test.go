package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []processor.Inbound
	err  error
}

func (p *recordingPublisher) EnqueueInbound(ctx context.Context, in processor.Inbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, in)
	return nil
}

type recordingStatuses struct {
	updates []store.StatusUpdate
	err     error
}

func (r *recordingStatuses) UpdateMessageStatus(ctx context.Context, u store.StatusUpdate) error {
	r.updates = append(r.updates, u)
	return r.err
}

const inboundPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{"id": "1", "changes": [{"field": "messages", "value": {
    "messaging_product": "whatsapp",
    "metadata": {"phone_number_id": "106540352242922"},
    "messages": [
      {"id": "wamid.A", "from": "5511999998888", "timestamp": "1772460000", "type": "text", "text": {"body": "Casa"}},
      {"id": "wamid.B", "from": "5511999998888", "timestamp": "1772460009", "type": "image", "image": {"id": "m"}}
    ],
    "statuses": [
      {"id": "wamid.OUT1", "status": "read", "timestamp": "1772460100", "recipient_id": "5511999998888"},
      {"id": "wamid.OUT2", "status": "failed", "timestamp": "1772460200", "recipient_id": "5511999998888",
       "errors": [{"code": 131047, "title": "Re-engagement message"}]},
      {"id": "wamid.OUT3", "status": "deleted", "timestamp": "1772460300", "recipient_id": "5511999998888"}
    ]
  }}]}]
}`

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookHandler(pub *recordingPublisher, st *recordingStatuses) *WhatsAppWebhookHandler {
	return NewWhatsAppWebhookHandler(WhatsAppWebhookConfig{
		VerifyToken: "verify-me",
		AppSecret:   "app-secret",
		Publisher:   pub,
		Statuses:    st,
		Logger:      logging.NewWithWriter(io.Discard, "error"),
	})
}

func postWebhook(h *WhatsAppWebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func TestWhatsAppVerify(t *testing.T) {
	h := newWebhookHandler(&recordingPublisher{}, &recordingStatuses{})
	cases := []struct {
		name  string
		query string
		code  int
		body  string
	}{
		{"ok", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", http.StatusOK, "1158201444"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1", http.StatusForbidden, ""},
		{"missing params", "hub.mode=subscribe", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Verify(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?"+tc.query, nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("expected challenge echo, got %q", rec.Body.String())
			}
		})
	}
}

func TestWhatsAppReceiveEnqueuesTextAndAppliesStatuses(t *testing.T) {
	pub := &recordingPublisher{}
	st := &recordingStatuses{}
	h := newWebhookHandler(pub, st)

	rec := postWebhook(h, inboundPayload, sign("app-secret", inboundPayload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Fatalf("unexpected body %s", got)
	}
	if len(pub.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(pub.jobs))
	}
	job := pub.jobs[0]
	if job.Address != "+5511999998888" || job.Text != "Casa" || job.MessageID != "wamid.A" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(st.updates) != 2 {
		t.Fatalf("expected 2 status updates, got %d", len(st.updates))
	}
	if st.updates[0].Status != store.MessageRead {
		t.Fatalf("expected read status, got %s", st.updates[0].Status)
	}
	failed := st.updates[1]
	if failed.Status != store.MessageFailed || failed.ErrorCode != "131047" || failed.ErrorTitle != "Re-engagement message" {
		t.Fatalf("unexpected failed update %+v", failed)
	}
}

func TestWhatsAppReceiveAlwaysReturnsOK(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		signature string
		pubErr    error
	}{
		{"bad signature", inboundPayload, "sha256=deadbeef", nil},
		{"missing signature", inboundPayload, "", nil},
		{"malformed json", "{", sign("app-secret", "{"), nil},
		{"enqueue failure", inboundPayload, sign("app-secret", inboundPayload), errors.New("queue full")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &recordingPublisher{err: tc.pubErr}
			st := &recordingStatuses{err: store.ErrMessageNotFound}
			rec := postWebhook(newWebhookHandler(pub, st), tc.body, tc.signature)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if len(pub.jobs) != 0 {
				t.Fatalf("expected nothing enqueued, got %d", len(pub.jobs))
			}
		})
	}
}
