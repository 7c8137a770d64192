package processor

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfman30/briefing-platform/internal/briefing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartRequest asks for a briefing to be started for a client.
type StartRequest struct {
	TenantID   uuid.UUID
	ClientName string
	Address    string
	RevisionID uuid.UUID
}

// StartResult reports the active briefing after a start request.
type StartResult struct {
	Briefing *briefing.Briefing
	Client   briefing.Client
	Resumed  bool
	Notified bool
}

// Start creates an in-progress briefing for the client at req.Address. When the
// client already has one, including one created by a concurrent request, that
// briefing is returned with Resumed set.
func (p *Processor) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	ctx, span := p.tracer.Start(ctx, "processor.start", trace.WithAttributes(
		attribute.String("revision_id", req.RevisionID.String()),
	))
	defer span.End()

	if strings.TrimSpace(req.Address) == "" {
		return nil, errors.New("processor: client address required")
	}
	rev, err := p.repo.Revision(ctx, req.RevisionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := p.now()

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	client, err := tx.UpsertClient(ctx, briefing.Client{
		TenantID: req.TenantID,
		Name:     strings.TrimSpace(req.ClientName),
		Address:  req.Address,
	})
	if err != nil {
		return nil, err
	}

	res := &StartResult{Client: *client}
	b := briefing.Start(client.ID, rev, now)
	err = tx.InsertBriefing(ctx, b)
	switch {
	case errors.Is(err, briefing.ErrActiveBriefingConflict):
		existing, aerr := tx.ActiveBriefing(ctx, client.ID)
		if aerr != nil {
			return nil, aerr
		}
		b = existing
		res.Resumed = true
	case err != nil:
		span.RecordError(err)
		return nil, err
	}
	res.Briefing = b

	session, err := tx.ActiveSession(ctx, client.ID)
	if errors.Is(err, briefing.ErrSessionNotFound) {
		session = briefing.NewSession(client.ID, client.Address, now)
		err = tx.CreateSession(ctx, session)
	}
	if err != nil {
		return nil, err
	}
	if err := p.relink(ctx, tx, session, b); err != nil {
		return nil, err
	}
	if err := tx.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	p.metrics.ObserveStart(res.Resumed)

	log := p.logger.With("briefing_id", b.ID, "client_id", client.ID)
	if res.Resumed {
		log.Info("start resumed existing briefing")
		return res, nil
	}
	log.Info("briefing started", "revision_id", rev.ID)

	q, ok := b.CurrentQuestion(rev)
	if p.snapshots != nil {
		var current *briefing.Question
		if ok {
			current = &q
		}
		p.snapshots.Snapshot(ctx, b, current)
	}
	if !ok {
		return res, nil
	}
	sessionID := session.ID
	out := &Outcome{Code: CodeAnswerRecorded, Reply: welcomeMessage(*client, rev, q)}
	if err := p.deliver(ctx, *client, client.Address, &sessionID, out); err != nil {
		log.Warn("welcome message not delivered", "error", err)
		return res, nil
	}
	res.Notified = true
	return res, nil
}

// Cancel moves an in-progress briefing to CANCELLED. Cancelling a cancelled
// briefing is a no-op; completed briefings cannot be cancelled.
func (p *Processor) Cancel(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	ctx, span := p.tracer.Start(ctx, "processor.cancel")
	defer span.End()

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := tx.GetBriefing(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == briefing.StatusCancelled {
		return b, nil
	}
	if err := b.Cancel(p.now()); err != nil {
		return nil, err
	}
	if err := tx.UpdateBriefing(ctx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if p.snapshots != nil {
		p.snapshots.Snapshot(ctx, b, nil)
	}
	p.logger.Info("briefing cancelled", "briefing_id", b.ID)
	return b, nil
}

// Progress summarizes a briefing for operators.
func (p *Processor) Progress(ctx context.Context, id uuid.UUID) (*briefing.Progress, error) {
	b, err := p.repo.GetBriefing(ctx, id)
	if err != nil {
		return nil, err
	}
	rev, err := p.repo.Revision(ctx, b.RevisionID)
	if err != nil {
		return nil, err
	}
	progress := briefing.ProgressOf(b, rev)
	return &progress, nil
}
