package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/processor"
)

// Queue is the transport between webhook intake and the workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one queued delivery.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobKind string

const jobKindInbound jobKind = "inbound.v1"

type job struct {
	ID         string            `json:"id"`
	Kind       jobKind           `json:"kind"`
	Inbound    processor.Inbound `json:"inbound"`
	Attempt    int               `json:"attempt"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

func encodeJob(j job) (string, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("dispatch: encode job: %w", err)
	}
	return string(body), nil
}

// Publisher enqueues inbound answers for asynchronous processing.
type Publisher struct {
	queue Queue
}

func NewPublisher(queue Queue) *Publisher {
	return &Publisher{queue: queue}
}

// EnqueueInbound schedules in for processing.
func (p *Publisher) EnqueueInbound(ctx context.Context, in processor.Inbound) error {
	body, err := encodeJob(job{Kind: jobKindInbound, Inbound: in})
	if err != nil {
		return err
	}
	return p.queue.Send(ctx, body)
}
