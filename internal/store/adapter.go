package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asakaida/kizuna/internal/entities"
)

// ErrInvalidLink is returned for links an adapter cannot resolve
var ErrInvalidLink = errors.New("invalid link")

// Adapter fetches record payloads from a backend. Implementations must be
// safe for concurrent use; the store calls them from fetch goroutines.
type Adapter interface {
	// FindRecord returns one record, or an error wrapping ErrNotFound
	FindRecord(ctx context.Context, ref entities.RecordRef) (*Payload, error)

	// FindMany returns the records that exist among refs
	FindMany(ctx context.Context, refs []entities.RecordRef) ([]*Payload, error)

	// FindLink returns the records behind the link of owner's relationship rel,
	// in relationship order. One-to-one links yield at most one payload.
	FindLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) ([]*Payload, error)
}

// LinkFor is the link format used by the bundled adapters: "type/id/relation".
func LinkFor(owner entities.RecordRef, relation string) string {
	return owner.Type + "/" + owner.ID + "/" + relation
}

// ParseLink splits a link produced by LinkFor
func ParseLink(link string) (entities.RecordRef, string, error) {
	parts := strings.Split(link, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return entities.RecordRef{}, "", fmt.Errorf("%w: malformed link %q", ErrInvalidLink, link)
	}
	return entities.NewRecordRef(parts[0], parts[1]), parts[2], nil
}
