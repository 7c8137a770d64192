package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/ledger"
	"github.com/wolfman30/briefing-platform/internal/observability/metrics"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/internal/whatsapp"
	"github.com/wolfman30/briefing-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDeliveryFailure wraps an outbound send error after the state change has
// committed. Callers must retry the whole inbound delivery.
var ErrDeliveryFailure = errors.New("processor: outbound delivery failed")

const hookTimeout = 30 * time.Second

// Sender is the outbound capability of the messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendResult, error)
}

type readMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// CompletionHook is notified after a briefing completes and the change has
// committed. Errors are logged and never fail the completion.
type CompletionHook interface {
	BriefingCompleted(ctx context.Context, evt briefing.Completed) error
}

// Snapshotter receives committed briefing state for caching.
type Snapshotter interface {
	Snapshot(ctx context.Context, b *briefing.Briefing, current *briefing.Question)
}

// Config wires a Processor.
type Config struct {
	Repo      store.Repository
	Ledger    ledger.Store
	Sender    Sender
	Hook      CompletionHook
	Snapshots Snapshotter
	Metrics   *metrics.BriefingMetrics
	Logger    *logging.Logger
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Processor advances briefings from inbound channel messages.
type Processor struct {
	repo      store.Repository
	ledger    ledger.Store
	sender    Sender
	hook      CompletionHook
	snapshots Snapshotter
	metrics   *metrics.BriefingMetrics
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	hooks     sync.WaitGroup
}

func New(cfg Config) (*Processor, error) {
	if cfg.Repo == nil {
		return nil, errors.New("processor: repository required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("processor: ledger required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("processor: sender required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("briefing.internal.processor")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		repo:      cfg.Repo,
		ledger:    cfg.Ledger,
		sender:    cfg.Sender,
		hook:      cfg.Hook,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		now:       func() time.Time { return cfg.Now().UTC() },
	}, nil
}

// Inbound is one answer message received from the channel.
type Inbound struct {
	Address     string     `json:"address"`
	Text        string     `json:"text"`
	MessageID   string     `json:"message_id"`
	SessionHint *uuid.UUID `json:"session_hint,omitempty"`
}

// committed is what the transactional step hands back to Process.
type committed struct {
	outcome   *Outcome
	raw       []byte
	replayed  bool
	sessionID *uuid.UUID
	completed *briefing.Completed
	snapshot  *briefing.Briefing
	current   *briefing.Question
}

// Process handles one inbound message end to end. A ledger hit skips all
// state changes and only re-attempts the outbound step.
func (p *Processor) Process(ctx context.Context, in Inbound) (*Outcome, error) {
	ctx, span := p.tracer.Start(ctx, "processor.process", trace.WithAttributes(
		attribute.String("message_id", in.MessageID),
	))
	defer span.End()
	started := time.Now()

	if in.MessageID == "" {
		return nil, errors.New("processor: message id required")
	}

	client, err := p.repo.FindClientByAddress(ctx, in.Address)
	if err != nil {
		if errors.Is(err, briefing.ErrClientNotFound) {
			p.notifyUnknownClient(ctx, in.Address)
		}
		span.RecordError(err)
		return nil, err
	}
	log := p.logger.With("message_id", in.MessageID, "client_id", client.ID)

	entry, err := p.ledger.Lookup(ctx, in.MessageID)
	switch {
	case err == nil:
		p.metrics.ObserveLedger("hit")
		out, derr := decodeOutcome(entry.Result)
		if derr != nil {
			return nil, derr
		}
		log.Info("ledger hit, replaying outcome", "code", out.Code)
		if err := p.deliver(ctx, *client, in.Address, nil, out); err != nil {
			span.RecordError(err)
			return nil, err
		}
		return out, nil
	case errors.Is(err, ledger.ErrNotFound):
		p.metrics.ObserveLedger("miss")
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("processor: ledger lookup: %w", err)
	}

	res, err := p.apply(ctx, *client, in)
	if err != nil {
		if errors.Is(err, briefing.ErrOutOfOrderAnswer) {
			log.Error("cursor integrity violation", "error", err)
		}
		span.RecordError(err)
		return nil, err
	}

	if err := p.ledger.Record(ctx, in.MessageID, res.raw); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			p.metrics.ObserveLedger("conflict")
			log.Info("ledger entry written concurrently")
		} else {
			log.Error("ledger write failed after commit", "error", err)
		}
	} else if res.replayed {
		p.metrics.ObserveLedger("recovered")
	}

	if !res.replayed {
		if res.snapshot != nil && p.snapshots != nil {
			p.snapshots.Snapshot(ctx, res.snapshot, res.current)
		}
		if res.completed != nil {
			p.metrics.ObserveCompleted()
			p.runHooks(ctx, *res.completed)
		}
		log.Info("inbound processed", "code", res.outcome.Code, "briefing_id", res.outcome.BriefingID)
		p.markRead(ctx, in.MessageID)
	}
	p.metrics.ObserveInbound(string(res.outcome.Code), time.Since(started).Seconds())

	if err := p.deliver(ctx, *client, in.Address, res.sessionID, res.outcome); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res.outcome, nil
}

// apply runs steps 3 to 8 of the pipeline in one transaction.
func (p *Processor) apply(ctx context.Context, client briefing.Client, in Inbound) (*committed, error) {
	ctx, span := p.tracer.Start(ctx, "processor.apply")
	defer span.End()
	now := p.now()

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	session, err := tx.ActiveSession(ctx, client.ID)
	if errors.Is(err, briefing.ErrSessionNotFound) {
		session = briefing.NewSession(client.ID, in.Address, now)
		err = tx.CreateSession(ctx, session)
	}
	if err != nil {
		return nil, err
	}
	if in.SessionHint != nil && *in.SessionHint != session.ID {
		p.logger.Debug("session hint does not match active session", "hint", in.SessionHint, "session_id", session.ID)
	}
	sessionID := session.ID

	created, err := tx.SaveInbound(ctx, store.InboundMessage{
		ProviderMessageID: in.MessageID,
		ClientID:          client.ID,
		SessionID:         &sessionID,
		Address:           in.Address,
		Body:              in.Text,
		ReceivedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		raw, err := tx.InboundOutcome(ctx, in.MessageID)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			out, err := decodeOutcome(raw)
			if err != nil {
				return nil, err
			}
			return &committed{outcome: out, raw: raw, replayed: true, sessionID: &sessionID}, nil
		}
	}

	res := &committed{sessionID: &sessionID}
	b, err := tx.ActiveBriefing(ctx, client.ID)
	switch {
	case errors.Is(err, briefing.ErrNoActiveBriefing):
		res.outcome = &Outcome{
			Success: false,
			Code:    CodeNoActiveBriefing,
			Reply:   noActiveBriefingMessage(client),
		}
	case err != nil:
		return nil, err
	default:
		rev, err := p.repo.Revision(ctx, b.RevisionID)
		if err != nil {
			return nil, err
		}
		if err := p.relink(ctx, tx, session, b); err != nil {
			return nil, err
		}
		out, err := p.step(session, b, rev, in.Text, now)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateBriefing(ctx, b); err != nil {
			return nil, err
		}
		res.outcome = out
		res.snapshot = b
		if q, ok := rev.Question(b.Cursor); ok && b.Status == briefing.StatusInProgress {
			res.current = &q
		}
		if b.Status == briefing.StatusCompleted {
			res.completed = &briefing.Completed{
				Briefing: b.Clone(),
				Revision: rev,
				Client:   client,
				Metrics:  briefing.CalculateMetrics(b, rev),
			}
		}
	}

	session.Touch(now)
	if err := tx.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	raw, err := encodeOutcome(res.outcome)
	if err != nil {
		return nil, err
	}
	if err := tx.AttachOutcome(ctx, in.MessageID, raw); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	res.raw = raw
	return res, nil
}

// relink points the session at b, resetting its cursor when the briefing it
// previously drove has ended.
func (p *Processor) relink(ctx context.Context, tx store.Tx, s *briefing.Session, b *briefing.Briefing) error {
	if s.LinkedTo(b.ID) {
		return nil
	}
	priorTerminal := true
	if s.BriefingID != nil {
		prior, err := tx.GetBriefing(ctx, *s.BriefingID)
		switch {
		case err == nil:
			priorTerminal = prior.Status.Terminal()
		case errors.Is(err, briefing.ErrBriefingNotFound):
		default:
			return err
		}
	}
	s.Link(b.ID, priorTerminal)
	return nil
}

// step applies one message to the briefing and session. Rejections come back
// as outcomes; only integrity errors are returned as errors.
func (p *Processor) step(s *briefing.Session, b *briefing.Briefing, rev *briefing.Revision, text string, now time.Time) (*Outcome, error) {
	out := &Outcome{BriefingID: b.ID.String()}

	q, ok := b.CurrentQuestion(rev)
	if !ok {
		if briefing.ShouldComplete(s, b, rev) {
			return p.complete(out, b, rev, now)
		}
		out.Code = CodeNoPendingQuestion
		out.Status = b.Status.String()
		return out, nil
	}
	out.QuestionOrder = q.Order

	cmd := briefing.DetectCommand(text)
	out.Command = string(cmd)
	var err error
	switch cmd {
	case briefing.CommandSkip:
		if err = b.Skip(q, now); err == nil {
			s.Advance()
		}
	case briefing.CommandBack:
		var prev briefing.Question
		if prev, err = b.Back(rev, now); err == nil {
			s.MoveTo(prev.Order)
			out.Success = true
			out.Code = CodeWentBack
			out.Status = b.Status.String()
			out.NextOrder = prev.Order
			out.Reply = questionPrompt(rev, prev)
			return out, nil
		}
	case briefing.CommandDontKnow:
		if q.Required {
			err = b.RecordAnswer(q.Order, briefing.DontKnowAnswer, now)
		} else {
			err = b.Skip(q, now)
		}
		if err == nil {
			s.Advance()
		}
	default:
		value, verr := briefing.ValidateAnswer(q, text)
		if verr != nil {
			return rejection(out, CodeValidationFailed, verr, b, rev, q), nil
		}
		if err = b.RecordAnswer(q.Order, value, now); err == nil {
			s.Advance()
		}
	}
	if err != nil {
		if briefing.IsRejection(err) {
			return rejection(out, CodeCommandRejected, err, b, rev, q), nil
		}
		return nil, err
	}

	next, hasNext := briefing.Reconcile(s, b, rev)
	if briefing.ShouldComplete(s, b, rev) {
		return p.complete(out, b, rev, now)
	}
	out.Success = true
	out.Code = CodeAnswerRecorded
	if cmd == briefing.CommandSkip || (cmd == briefing.CommandDontKnow && !q.Required) {
		out.Code = CodeQuestionSkipped
	}
	out.Status = b.Status.String()
	if hasNext {
		out.NextOrder = next.Order
		out.Reply = questionPrompt(rev, next)
	} else {
		p.logger.Warn("no pending question but briefing incomplete", "briefing_id", b.ID, "missing", b.MissingRequired(rev))
		out.Code = CodeNoPendingQuestion
	}
	return out, nil
}

func (p *Processor) complete(out *Outcome, b *briefing.Briefing, rev *briefing.Revision, now time.Time) (*Outcome, error) {
	if err := b.Complete(rev, now); err != nil {
		return nil, err
	}
	out.Success = true
	out.Code = CodeBriefingCompleted
	out.Completed = true
	out.Status = b.Status.String()
	return out, nil
}

func rejection(out *Outcome, code Code, err error, b *briefing.Briefing, rev *briefing.Revision, q briefing.Question) *Outcome {
	out.Success = false
	out.Code = code
	out.Status = b.Status.String()
	out.NextOrder = q.Order
	out.Reply = rejectionMessage(err) + "\n\n" + questionPrompt(rev, q)
	return out
}

// deliver performs the outbound step for out. Completion replies are rendered
// here because they depend only on the client.
func (p *Processor) deliver(ctx context.Context, client briefing.Client, address string, sessionID *uuid.UUID, out *Outcome) error {
	text := out.Reply
	if out.Code == CodeBriefingCompleted {
		text = completionMessage(client)
	}
	if text == "" {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "processor.deliver", trace.WithAttributes(
		attribute.String("kind", out.deliveryKind()),
	))
	defer span.End()

	res, err := p.sender.SendText(ctx, address, text)
	p.metrics.ObserveOutbound(out.deliveryKind(), err)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("outbound delivery failed", "client_id", client.ID, "kind", out.deliveryKind(), "error", err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}
	msgID := ""
	if res != nil {
		msgID = res.MessageID
	}
	if err := p.repo.RecordOutbound(ctx, store.OutboundMessage{
		ProviderMessageID: msgID,
		ClientID:          client.ID,
		SessionID:         sessionID,
		Address:           address,
		Body:              text,
		SentAt:            p.now(),
	}); err != nil {
		p.logger.Warn("failed to record outbound message", "client_id", client.ID, "error", err)
	}
	return nil
}

// notifyUnknownClient tells an unregistered sender how to get started. It is
// best effort and never fails the request.
func (p *Processor) notifyUnknownClient(ctx context.Context, address string) {
	if address == "" {
		return
	}
	_, err := p.sender.SendText(ctx, address, unknownClientMessage)
	p.metrics.ObserveOutbound("notice", err)
	if err != nil {
		p.logger.Warn("failed to notify unknown client", "error", err)
	}
}

func (p *Processor) markRead(ctx context.Context, messageID string) {
	rm, ok := p.sender.(readMarker)
	if !ok {
		return
	}
	if err := rm.MarkRead(ctx, messageID); err != nil {
		p.logger.Debug("mark read failed", "message_id", messageID, "error", err)
	}
}

func (p *Processor) runHooks(ctx context.Context, evt briefing.Completed) {
	if p.hook == nil {
		return
	}
	p.hooks.Add(1)
	go func() {
		defer p.hooks.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
		defer cancel()
		if err := p.hook.BriefingCompleted(hctx, evt); err != nil {
			p.logger.Error("completion hook failed", "briefing_id", evt.Briefing.ID, "error", err)
		}
	}()
}

// Wait blocks until in-flight completion hooks finish.
func (p *Processor) Wait() {
	p.hooks.Wait()
}

// IsPermanent reports whether retrying the same inbound delivery cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, briefing.ErrClientNotFound) ||
		errors.Is(err, briefing.ErrOutOfOrderAnswer) ||
		errors.Is(err, briefing.ErrRevisionNotFound)
}
