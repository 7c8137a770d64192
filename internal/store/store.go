package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/briefing"
)

// ErrMessageNotFound is returned when a status update targets an unknown message.
var ErrMessageNotFound = errors.New("store: message not found")

// Message directions and delivery states stored on channel_messages.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	MessageReceived  = "received"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

// InboundMessage is the raw record of a provider message, unique by provider id.
type InboundMessage struct {
	ProviderMessageID string
	ClientID          uuid.UUID
	SessionID         *uuid.UUID
	Address           string
	Body              string
	ReceivedAt        time.Time
}

// OutboundMessage is a message the platform sent to a client.
type OutboundMessage struct {
	ProviderMessageID string
	ClientID          uuid.UUID
	SessionID         *uuid.UUID
	Address           string
	Body              string
	SentAt            time.Time
}

// StatusUpdate is a provider delivery receipt.
type StatusUpdate struct {
	ProviderMessageID string
	Status            string
	At                time.Time
	ErrorCode         string
	ErrorTitle        string
}

// Repository is the persistence contract used by the processor and admin API.
type Repository interface {
	FindClientByAddress(ctx context.Context, address string) (*briefing.Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (*briefing.Client, error)
	Revision(ctx context.Context, id uuid.UUID) (*briefing.Revision, error)
	PublishRevision(ctx context.Context, rev *briefing.Revision) error
	GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error)
	RecordOutbound(ctx context.Context, msg OutboundMessage) error
	UpdateMessageStatus(ctx context.Context, update StatusUpdate) error
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one unit of work. Commit is the only synchronization point; Rollback
// after Commit is a no-op so callers can defer it.
type Tx interface {
	UpsertClient(ctx context.Context, c briefing.Client) (*briefing.Client, error)
	InsertBriefing(ctx context.Context, b *briefing.Briefing) error
	ActiveBriefing(ctx context.Context, clientID uuid.UUID) (*briefing.Briefing, error)
	GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error)
	UpdateBriefing(ctx context.Context, b *briefing.Briefing) error

	ActiveSession(ctx context.Context, clientID uuid.UUID) (*briefing.Session, error)
	CreateSession(ctx context.Context, s *briefing.Session) error
	UpdateSession(ctx context.Context, s *briefing.Session) error

	// SaveInbound stores msg unless its provider id exists; created reports which.
	SaveInbound(ctx context.Context, msg InboundMessage) (created bool, err error)
	// AttachOutcome stores the computed outcome on the inbound message row so a
	// delivery that committed but never reached the ledger can be replayed.
	AttachOutcome(ctx context.Context, providerMessageID string, outcome []byte) error
	InboundOutcome(ctx context.Context, providerMessageID string) ([]byte, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
