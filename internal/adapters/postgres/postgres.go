// Package postgres implements store.Adapter over the record and relation
// repositories.
//
// One-to-one relationships and synchronous one-to-many relationships are
// delivered with their data. Asynchronous one-to-many relationships are
// delivered as a link only, resolved by FindLink.
package postgres

import (
	"context"
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
	"github.com/asakaida/kizuna/internal/repositories"
	"github.com/asakaida/kizuna/internal/store"
)

// Adapter reads record payloads for one tenant
type Adapter struct {
	records   repositories.RecordRepository
	relations repositories.RelationRepository
	schema    *entities.Schema
	tenantID  string
}

// New creates an adapter for tenantID
func New(records repositories.RecordRepository, relations repositories.RelationRepository, schema *entities.Schema, tenantID string) *Adapter {
	return &Adapter{
		records:   records,
		relations: relations,
		schema:    schema,
		tenantID:  tenantID,
	}
}

// FindRecord loads one record with its relationships
func (a *Adapter) FindRecord(ctx context.Context, ref entities.RecordRef) (*store.Payload, error) {
	attrs, err := a.records.Get(ctx, a.tenantID, ref)
	if err != nil {
		return nil, err
	}
	return a.payload(ctx, ref, attrs)
}

// FindMany loads the existing records among refs, in request order
func (a *Adapter) FindMany(ctx context.Context, refs []entities.RecordRef) ([]*store.Payload, error) {
	found, err := a.records.GetMany(ctx, a.tenantID, refs)
	if err != nil {
		return nil, err
	}
	return a.payloads(ctx, refs, found)
}

// FindLink resolves a link of the store.LinkFor form to the ordered members
// of the owner's relation. Members without a stored record are skipped.
func (a *Adapter) FindLink(ctx context.Context, owner entities.RecordRef, link string, rel *entities.Relation) ([]*store.Payload, error) {
	linkOwner, relation, err := store.ParseLink(link)
	if err != nil {
		return nil, err
	}
	if linkOwner != owner || relation != rel.Name {
		return nil, fmt.Errorf("%w: link %q does not belong to %s.%s", store.ErrInvalidLink, link, owner, rel.Name)
	}

	members, err := a.relations.Members(ctx, a.tenantID, owner, relation)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	found, err := a.records.GetMany(ctx, a.tenantID, members)
	if err != nil {
		return nil, err
	}
	return a.payloads(ctx, members, found)
}

// Write persists a payload: its attributes and every relationship that carries data
func (a *Adapter) Write(ctx context.Context, p *store.Payload) error {
	if a.schema.GetEntity(p.Ref.Type) == nil {
		return fmt.Errorf("unknown record type %q", p.Ref.Type)
	}
	if err := a.records.Write(ctx, a.tenantID, p.Ref, p.Attributes); err != nil {
		return err
	}
	for key, rel := range p.Relationships {
		if !rel.HasData {
			continue
		}
		if a.schema.GetRelation(p.Ref.Type, key) == nil {
			return fmt.Errorf("%s has no relationship %q", p.Ref.Type, key)
		}
		if err := a.relations.ReplaceMembers(ctx, a.tenantID, p.Ref, key, rel.Data); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a record and every membership row that mentions it
func (a *Adapter) Delete(ctx context.Context, ref entities.RecordRef) error {
	return a.records.Delete(ctx, a.tenantID, ref)
}

func (a *Adapter) payloads(ctx context.Context, refs []entities.RecordRef, found map[entities.RecordRef]entities.Attributes) ([]*store.Payload, error) {
	out := make([]*store.Payload, 0, len(found))
	for _, ref := range refs {
		attrs, ok := found[ref]
		if !ok {
			continue
		}
		p, err := a.payload(ctx, ref, attrs)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (a *Adapter) payload(ctx context.Context, ref entities.RecordRef, attrs entities.Attributes) (*store.Payload, error) {
	entity := a.schema.GetEntity(ref.Type)
	if entity == nil {
		return nil, fmt.Errorf("record %s has unknown type %q", ref, ref.Type)
	}

	tuples, err := a.relations.Read(ctx, a.tenantID, &repositories.RelationFilter{
		OwnerType: ref.Type,
		OwnerID:   ref.ID,
	})
	if err != nil {
		return nil, err
	}
	members := make(map[string][]entities.RecordRef)
	for _, tuple := range tuples {
		members[tuple.Relation] = append(members[tuple.Relation], tuple.Member())
	}

	p := &store.Payload{
		Ref:           ref,
		Attributes:    attrs,
		Relationships: make(map[string]store.RelationshipPayload, len(entity.Relations)),
	}
	for _, rel := range entity.Relations {
		link := store.LinkFor(ref, rel.Name)
		switch {
		case rel.Kind == entities.KindHasMany && rel.Options.Async:
			p.Relationships[rel.Name] = store.RelationshipPayload{Many: true}.WithLink(link)
		case rel.Kind == entities.KindHasMany:
			p.Relationships[rel.Name] = store.ToMany(members[rel.Name]...).WithLink(link)
		default:
			refs := members[rel.Name]
			if len(refs) > 1 {
				return nil, fmt.Errorf("%s.%s stores %d members for a one-to-one relationship", ref, rel.Name, len(refs))
			}
			var target *entities.RecordRef
			if len(refs) == 1 {
				target = &refs[0]
			}
			p.Relationships[rel.Name] = store.ToOne(target).WithLink(link)
		}
	}
	return p, nil
}
