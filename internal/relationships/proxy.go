package relationships

import "github.com/asakaida/kizuna/internal/entities"

// RecordProxy is the value of a one-to-one relationship read.
// Content is the current member, Completion is set for async relationships.
type RecordProxy struct {
	Content    *entities.RecordRef
	Completion *Future[Record]
	origin     *Relationship
}

// Origin returns the relationship that produced the proxy
func (p *RecordProxy) Origin() *Relationship {
	return p.origin
}

// ManyProxy is the value of a one-to-many relationship read
type ManyProxy struct {
	Content    *ManyArray
	Completion *Future[*ManyArray]
}
