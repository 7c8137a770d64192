package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/briefing"
)

type memMessage struct {
	InboundMessage
	Direction   string
	Status      string
	Outcome     []byte
	DeliveredAt *time.Time
	ReadAt      *time.Time
	FailedAt    *time.Time
	ErrorCode   string
	ErrorTitle  string
}

type memState struct {
	clients   map[uuid.UUID]briefing.Client
	revisions map[uuid.UUID]*briefing.Revision
	briefings map[uuid.UUID]*briefing.Briefing
	sessions  map[uuid.UUID]*briefing.Session
	messages  map[string]*memMessage
	outbound  []OutboundMessage
	// touched orders clients by their last upsert.
	touched map[uuid.UUID]uint64
	seq     uint64
}

func newMemState() *memState {
	return &memState{
		clients:   make(map[uuid.UUID]briefing.Client),
		revisions: make(map[uuid.UUID]*briefing.Revision),
		briefings: make(map[uuid.UUID]*briefing.Briefing),
		sessions:  make(map[uuid.UUID]*briefing.Session),
		messages:  make(map[string]*memMessage),
		touched:   make(map[uuid.UUID]uint64),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.clients {
		out.clients[k] = v
	}
	for k, v := range s.revisions {
		out.revisions[k] = v
	}
	for k, v := range s.briefings {
		out.briefings[k] = v.Clone()
	}
	for k, v := range s.sessions {
		out.sessions[k] = v.Clone()
	}
	for k, v := range s.messages {
		m := *v
		m.Outcome = append([]byte(nil), v.Outcome...)
		out.messages[k] = &m
	}
	out.outbound = append(out.outbound, s.outbound...)
	for k, v := range s.touched {
		out.touched[k] = v
	}
	out.seq = s.seq
	return out
}

// Memory is an in-process Repository. Transactions are serialized and work
// on a copy of the state that replaces the committed state on Commit, so the
// uniqueness rules of the relational schema hold under concurrency.
type Memory struct {
	txMu   sync.Mutex
	dataMu sync.RWMutex
	state  *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) read() *memState {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()
	return m.state
}

// write applies fn to a copy of the committed state outside of any transaction.
func (m *Memory) write(fn func(*memState) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	next := m.read().clone()
	if err := fn(next); err != nil {
		return err
	}
	m.dataMu.Lock()
	m.state = next
	m.dataMu.Unlock()
	return nil
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.txMu.Lock()
	return &memTx{parent: m, state: m.read().clone()}, nil
}

// FindClientByAddress prefers the client with an in-progress briefing, then
// the most recently upserted one.
func (m *Memory) FindClientByAddress(ctx context.Context, address string) (*briefing.Client, error) {
	s := m.read()
	active := make(map[uuid.UUID]bool)
	for _, b := range s.briefings {
		if b.Status == briefing.StatusInProgress {
			active[b.ClientID] = true
		}
	}
	var best *briefing.Client
	for _, c := range s.clients {
		if c.Address != address {
			continue
		}
		if best == nil || preferClient(s, active, c, *best) {
			out := c
			best = &out
		}
	}
	if best == nil {
		return nil, briefing.ErrClientNotFound
	}
	return best, nil
}

func preferClient(s *memState, active map[uuid.UUID]bool, a, b briefing.Client) bool {
	if active[a.ID] != active[b.ID] {
		return active[a.ID]
	}
	return s.touched[a.ID] > s.touched[b.ID]
}

func (m *Memory) GetClient(ctx context.Context, id uuid.UUID) (*briefing.Client, error) {
	c, ok := m.read().clients[id]
	if !ok {
		return nil, briefing.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) Revision(ctx context.Context, id uuid.UUID) (*briefing.Revision, error) {
	rev, ok := m.read().revisions[id]
	if !ok {
		return nil, briefing.ErrRevisionNotFound
	}
	return rev, nil
}

func (m *Memory) PublishRevision(ctx context.Context, rev *briefing.Revision) error {
	return m.write(func(s *memState) error {
		for _, existing := range s.revisions {
			if existing.TemplateID == rev.TemplateID && existing.Version == rev.Version {
				return fmt.Errorf("store: revision %d of template %s already published", rev.Version, rev.TemplateID)
			}
		}
		s.revisions[rev.ID] = rev
		return nil
	})
}

func (m *Memory) GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	b, ok := m.read().briefings[id]
	if !ok {
		return nil, briefing.ErrBriefingNotFound
	}
	return b.Clone(), nil
}

// Briefings returns copies of every stored briefing for the client.
func (m *Memory) Briefings(clientID uuid.UUID) []*briefing.Briefing {
	var out []*briefing.Briefing
	for _, b := range m.read().briefings {
		if b.ClientID == clientID {
			out = append(out, b.Clone())
		}
	}
	return out
}

// InboundCount reports how many inbound message records exist.
func (m *Memory) InboundCount() int {
	n := 0
	for _, msg := range m.read().messages {
		if msg.Direction == DirectionInbound {
			n++
		}
	}
	return n
}

// Outbound returns the outbound messages recorded so far.
func (m *Memory) Outbound() []OutboundMessage {
	return append([]OutboundMessage(nil), m.read().outbound...)
}

// MessageStatus returns the stored delivery status for a provider message id.
func (m *Memory) MessageStatus(providerMessageID string) (string, bool) {
	msg, ok := m.read().messages[providerMessageID]
	if !ok {
		return "", false
	}
	return msg.Status, true
}

func (m *Memory) RecordOutbound(ctx context.Context, msg OutboundMessage) error {
	return m.write(func(s *memState) error {
		s.outbound = append(s.outbound, msg)
		if msg.ProviderMessageID == "" {
			return nil
		}
		if _, exists := s.messages[msg.ProviderMessageID]; exists {
			return nil
		}
		s.messages[msg.ProviderMessageID] = &memMessage{
			InboundMessage: InboundMessage{
				ProviderMessageID: msg.ProviderMessageID,
				ClientID:          msg.ClientID,
				SessionID:         msg.SessionID,
				Address:           msg.Address,
				Body:              msg.Body,
				ReceivedAt:        msg.SentAt,
			},
			Direction: DirectionOutbound,
			Status:    MessageSent,
		}
		return nil
	})
}

func (m *Memory) UpdateMessageStatus(ctx context.Context, update StatusUpdate) error {
	return m.write(func(s *memState) error {
		msg, ok := s.messages[update.ProviderMessageID]
		if !ok {
			return ErrMessageNotFound
		}
		msg.Status = update.Status
		at := update.At
		switch update.Status {
		case MessageDelivered:
			msg.DeliveredAt = &at
		case MessageRead:
			msg.ReadAt = &at
		case MessageFailed:
			msg.FailedAt = &at
		}
		if update.ErrorCode != "" {
			msg.ErrorCode = update.ErrorCode
		}
		if update.ErrorTitle != "" {
			msg.ErrorTitle = update.ErrorTitle
		}
		return nil
	})
}

type memTx struct {
	parent *Memory
	state  *memState
	done   bool
}

var errTxDone = errors.New("store: transaction already closed")

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.parent.dataMu.Lock()
	t.parent.state = t.state
	t.parent.dataMu.Unlock()
	t.parent.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.parent.txMu.Unlock()
	return nil
}

func (t *memTx) UpsertClient(ctx context.Context, c briefing.Client) (*briefing.Client, error) {
	for id, existing := range t.state.clients {
		if existing.TenantID == c.TenantID && existing.Address == c.Address {
			if c.Name != "" {
				existing.Name = c.Name
			}
			t.state.clients[id] = existing
			t.touch(id)
			return &existing, nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	t.state.clients[c.ID] = c
	t.touch(c.ID)
	return &c, nil
}

func (t *memTx) touch(id uuid.UUID) {
	t.state.seq++
	t.state.touched[id] = t.state.seq
}

func (t *memTx) InsertBriefing(ctx context.Context, b *briefing.Briefing) error {
	if b.Status == briefing.StatusInProgress {
		for _, existing := range t.state.briefings {
			if existing.ClientID == b.ClientID && existing.Status == briefing.StatusInProgress {
				return briefing.ErrActiveBriefingConflict
			}
		}
	}
	t.state.briefings[b.ID] = b.Clone()
	return nil
}

func (t *memTx) ActiveBriefing(ctx context.Context, clientID uuid.UUID) (*briefing.Briefing, error) {
	for _, b := range t.state.briefings {
		if b.ClientID == clientID && b.Status == briefing.StatusInProgress {
			return b.Clone(), nil
		}
	}
	return nil, briefing.ErrNoActiveBriefing
}

func (t *memTx) GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	b, ok := t.state.briefings[id]
	if !ok {
		return nil, briefing.ErrBriefingNotFound
	}
	return b.Clone(), nil
}

func (t *memTx) UpdateBriefing(ctx context.Context, b *briefing.Briefing) error {
	if _, ok := t.state.briefings[b.ID]; !ok {
		return briefing.ErrBriefingNotFound
	}
	t.state.briefings[b.ID] = b.Clone()
	return nil
}

func (t *memTx) ActiveSession(ctx context.Context, clientID uuid.UUID) (*briefing.Session, error) {
	for _, s := range t.state.sessions {
		if s.ClientID == clientID && s.Status == briefing.SessionActive {
			return s.Clone(), nil
		}
	}
	return nil, briefing.ErrSessionNotFound
}

func (t *memTx) CreateSession(ctx context.Context, s *briefing.Session) error {
	if existing, err := t.ActiveSession(ctx, s.ClientID); err == nil {
		*s = *existing
		return nil
	}
	t.state.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) UpdateSession(ctx context.Context, s *briefing.Session) error {
	if _, ok := t.state.sessions[s.ID]; !ok {
		return briefing.ErrSessionNotFound
	}
	t.state.sessions[s.ID] = s.Clone()
	return nil
}

func (t *memTx) SaveInbound(ctx context.Context, msg InboundMessage) (bool, error) {
	if _, exists := t.state.messages[msg.ProviderMessageID]; exists {
		return false, nil
	}
	t.state.messages[msg.ProviderMessageID] = &memMessage{
		InboundMessage: msg,
		Direction:      DirectionInbound,
		Status:         MessageReceived,
	}
	return true, nil
}

func (t *memTx) AttachOutcome(ctx context.Context, providerMessageID string, outcome []byte) error {
	msg, ok := t.state.messages[providerMessageID]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Outcome = append([]byte(nil), outcome...)
	return nil
}

func (t *memTx) InboundOutcome(ctx context.Context, providerMessageID string) ([]byte, error) {
	msg, ok := t.state.messages[providerMessageID]
	if !ok || len(msg.Outcome) == 0 {
		return nil, nil
	}
	return append([]byte(nil), msg.Outcome...), nil
}

// SeedClient stores c directly, for local bootstrapping and tests.
func (m *Memory) SeedClient(c briefing.Client) briefing.Client {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_ = m.write(func(s *memState) error {
		s.clients[c.ID] = c
		s.seq++
		s.touched[c.ID] = s.seq
		return nil
	})
	return c
}

var (
	_ Repository = (*Memory)(nil)
	_ Repository = (*Postgres)(nil)
)
