package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/asakaida/kizuna/internal/entities"
	pkgcache "github.com/asakaida/kizuna/pkg/cache"
	"github.com/lib/pq"
)

// RelationsChannel is the NOTIFY channel raised by the relations table trigger.
const RelationsChannel = "relations_changed"

// LinkKeyPrefix returns the prefix shared by every cached link of owner.
func LinkKeyPrefix(owner entities.RecordRef) string {
	return owner.Type + "/" + owner.ID + "#"
}

// LinkKey is the cache key of a link payload fetched for owner's relationship.
func LinkKey(owner entities.RecordRef, relation, link string) string {
	return LinkKeyPrefix(owner) + relation + "@" + link
}

// LinkInvalidator evicts cached link payloads when the relations of their owner change.
// It uses PostgreSQL LISTEN/NOTIFY so that every server instance drops stale links.
type LinkInvalidator struct {
	mu       sync.Mutex
	cache    pkgcache.Cache
	tenantID string
	connStr  string
	logger   *slog.Logger
	listener *pq.Listener
	stopCh   chan struct{}
	stopped  bool
}

// NewLinkInvalidator creates an invalidator for one tenant's links.
// connStr is the PostgreSQL connection string used for LISTEN.
func NewLinkInvalidator(c pkgcache.Cache, connStr, tenantID string, logger *slog.Logger) *LinkInvalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkInvalidator{
		cache:    c,
		tenantID: tenantID,
		connStr:  connStr,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins listening on RelationsChannel.
func (i *LinkInvalidator) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			i.logger.Warn("link invalidator listener error", "event", ev, "error", err)
		}
	}

	i.listener = pq.NewListener(i.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := i.listener.Listen(RelationsChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", RelationsChannel, err)
	}

	go i.handleNotifications(ctx)
	return nil
}

// Stop stops listening and closes the listener connection.
func (i *LinkInvalidator) Stop() error {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return nil
	}
	i.stopped = true
	close(i.stopCh)
	i.mu.Unlock()

	if i.listener != nil {
		return i.listener.Close()
	}
	return nil
}

// Invalidate handles one notification payload of the form "tenant|type/id".
// Payloads for other tenants are ignored.
func (i *LinkInvalidator) Invalidate(ctx context.Context, payload string) (int, error) {
	tenant, owner, ok := strings.Cut(payload, "|")
	if !ok {
		return 0, fmt.Errorf("malformed notification payload %q", payload)
	}
	if tenant != i.tenantID {
		return 0, nil
	}
	typ, id, ok := strings.Cut(owner, "/")
	if !ok {
		return 0, fmt.Errorf("malformed owner %q in notification", owner)
	}
	ref := entities.NewRecordRef(typ, id)
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	return i.cache.DeletePrefix(ctx, LinkKeyPrefix(ref))
}

func (i *LinkInvalidator) handleNotifications(ctx context.Context) {
	for {
		select {
		case <-i.stopCh:
			return
		case <-ctx.Done():
			return
		case n := <-i.listener.Notify:
			if n == nil {
				// Connection was re-established; anything may have changed meanwhile.
				if err := i.cache.Clear(ctx); err != nil {
					i.logger.Warn("link cache clear failed", "error", err)
				}
				continue
			}
			removed, err := i.Invalidate(ctx, n.Extra)
			if err != nil {
				i.logger.Warn("link invalidation failed", "payload", n.Extra, "error", err)
				continue
			}
			if removed > 0 {
				i.logger.Debug("evicted cached links", "payload", n.Extra, "count", removed)
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := i.listener.Ping(); err != nil {
					i.logger.Warn("link invalidator ping failed", "error", err)
				}
			}()
		}
	}
}
