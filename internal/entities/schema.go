package entities

import (
	"fmt"
	"time"
)

// Schema represents the complete model schema for a tenant
type Schema struct {
	TenantID  string    // Tenant identifier
	Version   string    // Schema version (ULID)
	DSL       string    // Original DSL text
	Entities  []*Entity // Model type definitions
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SchemaVersion represents a lightweight schema version for listing
type SchemaVersion struct {
	Version   string    // Schema version (ULID)
	CreatedAt time.Time // When the version was created
}

// GetEntity returns the entity definition by name
func (s *Schema) GetEntity(name string) *Entity {
	for _, e := range s.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// GetRelation returns the relation definition for a given model type and relation name
func (s *Schema) GetRelation(entityType, relationName string) *Relation {
	entity := s.GetEntity(entityType)
	if entity == nil {
		return nil
	}
	return entity.GetRelation(relationName)
}

// InverseFor finds the relation on the target type that mirrors entityType.relationName.
// It returns nil without error when the relation has no inverse.
func (s *Schema) InverseFor(entityType, relationName string) (*Relation, error) {
	rel := s.GetRelation(entityType, relationName)
	if rel == nil {
		return nil, fmt.Errorf("relation %s.%s is not defined", entityType, relationName)
	}
	if rel.Options.NoInverse || rel.TargetType == "" {
		return nil, nil
	}
	target := s.GetEntity(rel.TargetType)
	if target == nil {
		return nil, nil
	}

	if rel.Options.Inverse != "" {
		inverse := target.GetRelation(rel.Options.Inverse)
		if inverse == nil {
			return nil, fmt.Errorf("inverse %s.%s of %s.%s is not defined",
				target.Name, rel.Options.Inverse, entityType, relationName)
		}
		return inverse, nil
	}

	var candidates []*Relation
	for _, r := range target.Relations {
		if r.TargetType != entityType || r.Options.NoInverse {
			continue
		}
		if r.Options.Inverse != "" && r.Options.Inverse != relationName {
			continue
		}
		candidates = append(candidates, r)
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("relation %s.%s has %d possible inverses on %s, declare one with inverse:",
			entityType, relationName, len(candidates), target.Name)
	}
}
