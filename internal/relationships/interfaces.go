package relationships

import (
	"context"

	"github.com/asakaida/kizuna/internal/entities"
)

// Record is anything that carries a record identity
type Record interface {
	Ref() entities.RecordRef
}

// ChangeKind tells whether a change added or removed a member
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
)

func (k ChangeKind) String() string {
	if k == ChangeRemoved {
		return "removed"
	}
	return "added"
}

// Change is the field-change notification sent to an owner when a member is added or removed
type Change struct {
	Relation *entities.Relation
	Kind     ChangeKind
	Previous []entities.RecordRef // last server value of the field
	Value    entities.RecordRef   // the record added or removed
}

// Owner is the record a relationship belongs to
type Owner interface {
	Record

	// Descriptor returns the declared relation for key
	Descriptor(key string) (*entities.Relation, bool)

	// InverseFor returns the declared inverse of key on the related type
	InverseFor(key string) (string, bool)

	// ServerSnapshot returns the last server-confirmed members for key
	ServerSnapshot(key string) ([]entities.RecordRef, bool)

	RelationshipDidChange(change Change)
	NotifyPropertyChange(key string)
	UpdateRecordArrays()
}

// Store resolves identities and performs fetches on behalf of relationships.
// Every method runs on the loop's driving goroutine.
type Store interface {
	Loop() *Loop
	IsLoaded(ref entities.RecordRef) bool

	// Relationships returns the relationship table of ref, or false while ref is being torn down
	Relationships(ref entities.RecordRef) (*Relationships, bool)

	FindRecord(ctx context.Context, ref entities.RecordRef) *Future[Record]
	FindMany(ctx context.Context, refs []entities.RecordRef) *Future[[]Record]
	// ReloadMany fetches refs even when they are already loaded
	ReloadMany(ctx context.Context, refs []entities.RecordRef) *Future[[]Record]
	FindBelongsTo(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *Future[Record]
	FindHasMany(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) *Future[[]Record]
	CreateRecord(typ string, attrs entities.Attributes) (Record, error)
}
