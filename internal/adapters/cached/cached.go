// Package cached decorates a store.Adapter with a cache of link payloads.
//
// Keys follow the link cache layout of internal/infrastructure/cache so a
// LinkInvalidator sharing the same cache evicts links whose owner's
// relations changed in PostgreSQL.
package cached

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/asakaida/kizuna/internal/entities"
	linkcache "github.com/asakaida/kizuna/internal/infrastructure/cache"
	"github.com/asakaida/kizuna/internal/infrastructure/metrics"
	"github.com/asakaida/kizuna/internal/store"
	"github.com/asakaida/kizuna/pkg/cache"
)

// Writer is implemented by adapters that can persist payloads
type Writer interface {
	Write(ctx context.Context, p *store.Payload) error
	Delete(ctx context.Context, ref entities.RecordRef) error
}

// Adapter caches FindLink results of the wrapped adapter.
// Record lookups are passed through.
type Adapter struct {
	inner   store.Adapter
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithMetrics reports cache hits and misses to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(a *Adapter) {
		a.metrics = rec
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New wraps inner; cached links live for ttl, zero means the cache default
func New(inner store.Adapter, c cache.Cache, ttl time.Duration, opts ...Option) *Adapter {
	a := &Adapter{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// linkPayloads is the cached value of one link
type linkPayloads []*store.Payload

func (l linkPayloads) Size() int64 {
	var size int64
	for _, p := range l {
		size += p.Size()
	}
	return size
}

func (a *Adapter) FindRecord(ctx context.Context, ref entities.RecordRef) (*store.Payload, error) {
	return a.inner.FindRecord(ctx, ref)
}

func (a *Adapter) FindMany(ctx context.Context, refs []entities.RecordRef) ([]*store.Payload, error) {
	return a.inner.FindMany(ctx, refs)
}

// FindLink serves a cached link or fetches it once for all concurrent callers
func (a *Adapter) FindLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) ([]*store.Payload, error) {
	key := linkcache.LinkKey(owner, rel.Name, link)
	if v, ok := a.cache.Get(ctx, key); ok {
		a.metrics.LinkCache(true)
		return []*store.Payload(v.(linkPayloads)), nil
	}
	a.metrics.LinkCache(false)

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		payloads, err := a.inner.FindLink(ctx, owner, link, rel)
		if err != nil {
			return nil, err
		}
		if err := a.cache.Set(ctx, key, linkPayloads(payloads), a.ttl); err != nil {
			a.logger.Warn("link cache write failed", "key", key, "error", err)
		}
		return payloads, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*store.Payload), nil
}

// Invalidate drops every cached link of owner
func (a *Adapter) Invalidate(ctx context.Context, owner entities.RecordRef) error {
	n, err := a.cache.DeletePrefix(ctx, linkcache.LinkKeyPrefix(owner))
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Debug("invalidated cached links", "owner", owner.String(), "count", n)
	}
	return nil
}

// Write persists p through the wrapped adapter and drops the cached links
// of p and of every record p now points at.
func (a *Adapter) Write(ctx context.Context, p *store.Payload) error {
	w, ok := a.inner.(Writer)
	if !ok {
		return fmt.Errorf("adapter %T is read-only", a.inner)
	}
	if err := w.Write(ctx, p); err != nil {
		return err
	}
	owners := []entities.RecordRef{p.Ref}
	for _, rel := range p.Relationships {
		owners = append(owners, rel.Data...)
	}
	for _, owner := range owners {
		if err := a.Invalidate(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes ref through the wrapped adapter. Any cached link may list
// ref, so the whole cache is cleared.
func (a *Adapter) Delete(ctx context.Context, ref entities.RecordRef) error {
	w, ok := a.inner.(Writer)
	if !ok {
		return fmt.Errorf("adapter %T is read-only", a.inner)
	}
	if err := w.Delete(ctx, ref); err != nil {
		return err
	}
	return a.cache.Clear(ctx)
}
