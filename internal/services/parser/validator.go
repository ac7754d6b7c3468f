package parser

import (
	"fmt"
	"strings"
)

var validOptions = map[string]bool{
	"async":       false,
	"polymorphic": false,
	"inverse":     true,
}

var validAttributeTypes = map[string]bool{
	"string":   true,
	"int":      true,
	"bool":     true,
	"float":    true,
	"string[]": true,
	"int[]":    true,
	"bool[]":   true,
	"float[]":  true,
}

// Validator validates the parsed schema AST
type Validator struct {
	schema   *SchemaAST
	errors   []string
	entities map[string]*EntityAST
}

// NewValidator creates a new Validator
func NewValidator(schema *SchemaAST) *Validator {
	entities := make(map[string]*EntityAST)
	for _, entity := range schema.Entities {
		entities[entity.Name] = entity
	}
	return &Validator{
		schema:   schema,
		errors:   []string{},
		entities: entities,
	}
}

// Validate validates the schema and returns error if invalid
func (v *Validator) Validate() error {
	v.validateUniqueEntityNames()
	v.validateEntityDefinitions()
	v.validateRelationTargets()
	v.validateRelationOptions()
	v.validateInverses()

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

// validateUniqueEntityNames checks for duplicate entity names
func (v *Validator) validateUniqueEntityNames() {
	seen := make(map[string]bool)
	for _, entity := range v.schema.Entities {
		if entity.Name == AnyType {
			v.addError("entity name %q is reserved", AnyType)
		}
		if seen[entity.Name] {
			v.addError("duplicate entity name: %s", entity.Name)
		}
		seen[entity.Name] = true
	}
}

// validateEntityDefinitions validates each entity's internal structure
func (v *Validator) validateEntityDefinitions() {
	for _, entity := range v.schema.Entities {
		relations := make(map[string]bool)
		for _, relation := range entity.Relations {
			if relations[relation.Name] {
				v.addError("entity %s: duplicate relation name: %s", entity.Name, relation.Name)
			}
			if strings.HasPrefix(relation.Name, "__") {
				v.addError("entity %s: relation name %s must not start with __", entity.Name, relation.Name)
			}
			relations[relation.Name] = true
		}

		attributes := make(map[string]bool)
		for _, attribute := range entity.Attributes {
			if attributes[attribute.Name] {
				v.addError("entity %s: duplicate attribute name: %s", entity.Name, attribute.Name)
			}
			attributes[attribute.Name] = true
			if relations[attribute.Name] {
				v.addError("entity %s: name conflict between relation and attribute: %s", entity.Name, attribute.Name)
			}
			if !validAttributeTypes[attribute.Type] {
				v.addError("entity %s: attribute %s has invalid type: %s", entity.Name, attribute.Name, attribute.Type)
			}
		}
	}
}

// validateRelationTargets checks that every relation points at a known entity
func (v *Validator) validateRelationTargets() {
	for _, entity := range v.schema.Entities {
		for _, relation := range entity.Relations {
			if relation.TargetType == AnyType {
				continue
			}
			if _, ok := v.entities[relation.TargetType]; !ok {
				v.addError("entity %s: relation %s references undefined entity: %s",
					entity.Name, relation.Name, relation.TargetType)
			}
		}
	}
}

// validateRelationOptions checks option names and values
func (v *Validator) validateRelationOptions() {
	for _, entity := range v.schema.Entities {
		for _, relation := range entity.Relations {
			seen := make(map[string]bool)
			for _, option := range relation.Options {
				needsValue, known := validOptions[option.Key]
				switch {
				case !known:
					v.addError("entity %s: relation %s has unknown option: %s", entity.Name, relation.Name, option.Key)
				case needsValue && option.Value == "":
					v.addError("entity %s: relation %s option %s requires a value", entity.Name, relation.Name, option.Key)
				case !needsValue && option.Value != "":
					v.addError("entity %s: relation %s option %s does not take a value", entity.Name, relation.Name, option.Key)
				}
				if seen[option.Key] {
					v.addError("entity %s: relation %s has duplicate option: %s", entity.Name, relation.Name, option.Key)
				}
				seen[option.Key] = true
			}
		}
	}
}

// validateInverses checks explicit inverses and rejects ambiguous implicit ones
func (v *Validator) validateInverses() {
	for _, entity := range v.schema.Entities {
		for _, relation := range entity.Relations {
			target, ok := v.entities[relation.TargetType]
			if !ok {
				continue
			}
			inverse := relation.Option("inverse")
			if inverse != nil && inverse.Value == "none" {
				continue
			}
			if inverse != nil && inverse.Value != "" {
				v.validateExplicitInverse(entity, relation, target, inverse.Value)
				continue
			}
			candidates := inverseCandidates(entity.Name, relation.Name, target)
			if len(candidates) > 1 {
				v.addError("entity %s: relation %s has ambiguous inverse on %s (%s), declare one with inverse:",
					entity.Name, relation.Name, target.Name, strings.Join(candidates, ", "))
			}
		}
	}
}

func (v *Validator) validateExplicitInverse(entity *EntityAST, relation *RelationAST, target *EntityAST, name string) {
	for _, other := range target.Relations {
		if other.Name != name {
			continue
		}
		if other.TargetType != entity.Name {
			v.addError("entity %s: relation %s declares inverse %s.%s which points at %s",
				entity.Name, relation.Name, target.Name, name, other.TargetType)
		}
		return
	}
	v.addError("entity %s: relation %s declares undefined inverse %s.%s",
		entity.Name, relation.Name, target.Name, name)
}

// inverseCandidates lists the relations on target that could mirror owner.relation
func inverseCandidates(owner, relation string, target *EntityAST) []string {
	var names []string
	for _, other := range target.Relations {
		if other.TargetType != owner {
			continue
		}
		if inverse := other.Option("inverse"); inverse != nil && inverse.Value != relation {
			continue
		}
		names = append(names, other.Name)
	}
	return names
}
