package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/dispatch"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveInbound(string(processor.CodeAnswerRecorded), 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "briefing_processor_inbound_total") {
		t.Fatalf("expected inbound counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collector to be exported")
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, "error")
	if err := run(context.Background(), &appconfig.Config{}, logger); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

type nopHandler struct{}

func (nopHandler) Process(context.Context, processor.Inbound) (*processor.Outcome, error) {
	return &processor.Outcome{Success: true}, nil
}

func TestSetupWorkerStartsAndStops(t *testing.T) {
	logger := logging.NewWithWriter(io.Discard, "error")
	cfg := &appconfig.Config{WorkerCount: 1, DispatchMaxAttempts: 3}
	ctx, cancel := context.WithCancel(context.Background())

	worker, err := setupWorker(ctx, cfg, nopHandler{}, dispatch.NewMemoryQueue(2), nil, logger)
	if err != nil {
		t.Fatalf("setup worker: %v", err)
	}
	cancel()
	waitForWorker(worker, logger)
}

func TestRedisPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if err := (redisPinger{client}).Ping(context.Background()); err != nil {
		t.Fatalf("expected ping to succeed: %v", err)
	}
	mr.Close()
	if err := (redisPinger{client}).Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail after shutdown")
	}
}
