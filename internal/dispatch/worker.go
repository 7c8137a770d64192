package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/briefing-platform/internal/observability/metrics"
	"github.com/wolfman30/briefing-platform/internal/processor"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// Handler processes one inbound answer.
type Handler interface {
	Process(ctx context.Context, in processor.Inbound) (*processor.Outcome, error)
}

// Worker consumes inbound jobs and redelivers them until the handler
// succeeds, the error is permanent, or attempts run out.
type Worker struct {
	handler Handler
	queue   Queue
	logger  *logging.Logger
	metrics *metrics.BriefingMetrics

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	maxAttempts      int
	retryDelay       func(attempt int) time.Duration
	permanent        func(error) bool
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	defaultMaxAttempts   = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	requeueTimeout       = 5 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithMaxAttempts bounds redelivery of a failing job.
func WithMaxAttempts(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.maxAttempts = n
		}
	}
}

// WithRetryDelay overrides the pause before a failed job is requeued.
func WithRetryDelay(fn func(attempt int) time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if fn != nil {
			cfg.retryDelay = fn
		}
	}
}

func exponentialDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

// NewWorker wires a dispatch worker.
func NewWorker(handler Handler, queue Queue, m *metrics.BriefingMetrics, logger *logging.Logger, opts ...WorkerOption) (*Worker, error) {
	if handler == nil {
		return nil, errors.New("dispatch: handler required")
	}
	if queue == nil {
		return nil, errors.New("dispatch: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		maxAttempts:      defaultMaxAttempts,
		retryDelay:       exponentialDelay,
		permanent:        processor.IsPermanent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		handler: handler,
		queue:   queue,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}, nil
}

// Start launches the consumer goroutines. They exit when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("dispatch worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("dispatch worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive dispatch jobs", "error", err, "worker_id", workerID)
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	var j job
	if err := json.Unmarshal([]byte(msg.Body), &j); err != nil {
		w.logger.Error("failed to decode dispatch job", "error", err, "msg_id", msg.ID)
		w.metrics.ObserveDispatch("dropped")
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	if j.Kind != jobKindInbound {
		w.logger.Error("unknown dispatch job kind", "kind", j.Kind, "job_id", j.ID)
		w.metrics.ObserveDispatch("dropped")
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	log := w.logger.With("job_id", j.ID, "message_id", j.Inbound.MessageID, "attempt", j.Attempt)
	_, err := w.handler.Process(ctx, j.Inbound)
	switch {
	case err == nil:
		w.metrics.ObserveDispatch("ok")
	case w.cfg.permanent(err):
		log.Warn("dropping inbound job", "error", err)
		w.metrics.ObserveDispatch("dropped")
	case j.Attempt+1 >= w.cfg.maxAttempts:
		log.Error("inbound job exhausted retries", "error", err)
		w.metrics.ObserveDispatch("failed")
	default:
		log.Warn("inbound job failed, scheduling retry", "error", err)
		if rerr := w.requeue(ctx, j); rerr != nil {
			// Leave the message for the queue's own redelivery.
			log.Error("failed to requeue inbound job", "error", rerr)
			w.metrics.ObserveDispatch("failed")
			return
		}
		w.metrics.ObserveDispatch("retry")
	}
	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) requeue(ctx context.Context, j job) error {
	if !sleepCtx(ctx, w.cfg.retryDelay(j.Attempt)) {
		return ctx.Err()
	}
	j.Attempt++
	body, err := encodeJob(j)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := w.queue.Send(sendCtx, body); err != nil {
		return fmt.Errorf("dispatch: requeue: %w", err)
	}
	return nil
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete dispatch job", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
