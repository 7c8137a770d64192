package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/internal/store"
	"github.com/wolfman30/briefing-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultStateTTL    = time.Hour
	defaultQuestionTTL = 10 * time.Minute
	defaultRevisionTTL = 24 * time.Hour
)

// Cache keeps best-effort copies of briefing state in Redis. The database
// remains authoritative; every read miss or Redis error falls back to it.
type Cache struct {
	redis       *redis.Client
	tracer      trace.Tracer
	logger      *logging.Logger
	stateTTL    time.Duration
	questionTTL time.Duration
	revisionTTL time.Duration
}

type Option func(*Cache)

func WithStateTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.stateTTL = ttl
		}
	}
}

func WithRevisionTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.revisionTTL = ttl
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(client *redis.Client, opts ...Option) *Cache {
	if client == nil {
		panic("statecache: redis client cannot be nil")
	}
	c := &Cache{
		redis:       client,
		tracer:      otel.Tracer("briefing.internal.statecache"),
		logger:      logging.Default(),
		stateTTL:    defaultStateTTL,
		questionTTL: defaultQuestionTTL,
		revisionTTL: defaultRevisionTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func stateKey(id uuid.UUID) string    { return fmt.Sprintf("briefing:state:%s", id) }
func questionKey(id uuid.UUID) string { return fmt.Sprintf("briefing:question:%s", id) }
func revisionKey(id uuid.UUID) string { return fmt.Sprintf("briefing:revision:%s", id) }

// PutBriefing stores a snapshot of b and of the question its cursor points at.
func (c *Cache) PutBriefing(ctx context.Context, b *briefing.Briefing, current *briefing.Question) error {
	ctx, span := c.tracer.Start(ctx, "statecache.put_briefing")
	defer span.End()

	data, err := json.Marshal(b)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("statecache: marshal briefing: %w", err)
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, stateKey(b.ID), data, c.stateTTL)
	if current != nil {
		q, err := json.Marshal(current)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("statecache: marshal question: %w", err)
		}
		pipe.Set(ctx, questionKey(b.ID), q, c.questionTTL)
	} else {
		pipe.Del(ctx, questionKey(b.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("statecache: put briefing: %w", err)
	}
	return nil
}

// Briefing returns the cached snapshot, or ok=false on a miss.
func (c *Cache) Briefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, bool, error) {
	ctx, span := c.tracer.Start(ctx, "statecache.get_briefing")
	defer span.End()

	data, err := c.redis.Get(ctx, stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("statecache: get briefing: %w", err)
	}
	var b briefing.Briefing
	if err := json.Unmarshal(data, &b); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("statecache: decode briefing: %w", err)
	}
	if b.Status == 0 {
		return nil, false, nil
	}
	return &b, true, nil
}

// CurrentQuestion returns the cached current question for a briefing.
func (c *Cache) CurrentQuestion(ctx context.Context, id uuid.UUID) (*briefing.Question, bool, error) {
	data, err := c.redis.Get(ctx, questionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("statecache: get question: %w", err)
	}
	var q briefing.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("statecache: decode question: %w", err)
	}
	return &q, true, nil
}

// Invalidate drops every cached key for a briefing.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redis.Del(ctx, stateKey(id), questionKey(id)).Err(); err != nil {
		return fmt.Errorf("statecache: invalidate: %w", err)
	}
	return nil
}

func (c *Cache) putRevision(ctx context.Context, rev *briefing.Revision) error {
	data, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("statecache: marshal revision: %w", err)
	}
	return c.redis.Set(ctx, revisionKey(rev.ID), data, c.revisionTTL).Err()
}

func (c *Cache) revision(ctx context.Context, id uuid.UUID) (*briefing.Revision, bool, error) {
	data, err := c.redis.Get(ctx, revisionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var raw briefing.Revision
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	rev, err := briefing.NewRevision(raw.ID, raw.TemplateID, raw.Version, raw.Questions)
	if err != nil {
		return nil, false, err
	}
	return rev, true, nil
}

// Repository decorates a store.Repository with read-through caching of
// immutable template revisions and write-through briefing snapshots.
type Repository struct {
	store.Repository
	cache *Cache
}

func NewRepository(inner store.Repository, cache *Cache) *Repository {
	return &Repository{Repository: inner, cache: cache}
}

func (r *Repository) Revision(ctx context.Context, id uuid.UUID) (*briefing.Revision, error) {
	ctx, span := r.cache.tracer.Start(ctx, "statecache.revision")
	defer span.End()

	rev, ok, err := r.cache.revision(ctx, id)
	if err != nil {
		span.RecordError(err)
		r.cache.logger.Warn("revision cache read failed", "revision_id", id, "error", err)
	}
	if ok {
		return rev, nil
	}
	rev, err = r.Repository.Revision(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.putRevision(ctx, rev); err != nil {
		r.cache.logger.Warn("revision cache write failed", "revision_id", id, "error", err)
	}
	return rev, nil
}

func (r *Repository) PublishRevision(ctx context.Context, rev *briefing.Revision) error {
	if err := r.Repository.PublishRevision(ctx, rev); err != nil {
		return err
	}
	if err := r.cache.putRevision(ctx, rev); err != nil {
		r.cache.logger.Warn("revision cache write failed", "revision_id", rev.ID, "error", err)
	}
	return nil
}

// GetBriefing serves terminal snapshots from the cache; in-progress briefings
// always come from the database.
func (r *Repository) GetBriefing(ctx context.Context, id uuid.UUID) (*briefing.Briefing, error) {
	if b, ok, err := r.cache.Briefing(ctx, id); err == nil && ok && b.Status.Terminal() {
		return b, nil
	}
	return r.Repository.GetBriefing(ctx, id)
}

// Snapshot records b after a committed change. Failures are logged only.
func (r *Repository) Snapshot(ctx context.Context, b *briefing.Briefing, current *briefing.Question) {
	if err := r.cache.PutBriefing(ctx, b, current); err != nil {
		r.cache.logger.Warn("briefing snapshot failed", "briefing_id", b.ID, "error", err)
	}
}
