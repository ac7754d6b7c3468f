package parser

import (
	"fmt"

	"github.com/asakaida/kizuna/internal/entities"
)

// ASTToSchema converts SchemaAST to entities.Schema
func ASTToSchema(tenantID string, ast *SchemaAST) (*entities.Schema, error) {
	schema := &entities.Schema{
		TenantID: tenantID,
		Entities: make([]*entities.Entity, 0, len(ast.Entities)),
	}

	for _, entityAST := range ast.Entities {
		entity, err := convertEntity(entityAST)
		if err != nil {
			return nil, fmt.Errorf("failed to convert entity %s: %w", entityAST.Name, err)
		}
		schema.Entities = append(schema.Entities, entity)
	}

	return schema, nil
}

// SchemaToAST converts entities.Schema to SchemaAST
func SchemaToAST(schema *entities.Schema) *SchemaAST {
	ast := &SchemaAST{
		Entities: make([]*EntityAST, 0, len(schema.Entities)),
	}

	for _, entity := range schema.Entities {
		ast.Entities = append(ast.Entities, convertEntityToAST(entity))
	}

	return ast
}

// convertEntity converts EntityAST to entities.Entity
func convertEntity(ast *EntityAST) (*entities.Entity, error) {
	entity := &entities.Entity{
		Name:             ast.Name,
		Relations:        make([]*entities.Relation, 0, len(ast.Relations)),
		AttributeSchemas: make([]*entities.AttributeSchema, 0, len(ast.Attributes)),
	}

	for _, relAST := range ast.Relations {
		rel, err := convertRelation(ast.Name, relAST)
		if err != nil {
			return nil, err
		}
		entity.Relations = append(entity.Relations, rel)
	}

	for _, attrAST := range ast.Attributes {
		entity.AttributeSchemas = append(entity.AttributeSchemas, &entities.AttributeSchema{
			Name: attrAST.Name,
			Type: attrAST.Type,
		})
	}

	return entity, nil
}

func convertRelation(parent string, ast *RelationAST) (*entities.Relation, error) {
	rel := &entities.Relation{
		Name:       ast.Name,
		Kind:       entities.KindBelongsTo,
		TargetType: ast.TargetType,
		ParentType: parent,
	}
	if ast.Many {
		rel.Kind = entities.KindHasMany
	}
	if rel.TargetType == AnyType {
		rel.TargetType = ""
	}

	for _, option := range ast.Options {
		switch option.Key {
		case "async":
			rel.Options.Async = true
		case "polymorphic":
			rel.Options.Polymorphic = true
		case "inverse":
			if option.Value == "none" {
				rel.Options.NoInverse = true
			} else {
				rel.Options.Inverse = option.Value
			}
		default:
			return nil, fmt.Errorf("relation %s: unknown option %s", ast.Name, option.Key)
		}
	}

	return rel, nil
}

// convertEntityToAST converts entities.Entity to EntityAST
func convertEntityToAST(entity *entities.Entity) *EntityAST {
	ast := &EntityAST{
		Name:       entity.Name,
		Relations:  make([]*RelationAST, 0, len(entity.Relations)),
		Attributes: make([]*AttributeAST, 0, len(entity.AttributeSchemas)),
	}

	for _, rel := range entity.Relations {
		relAST := &RelationAST{
			Name:       rel.Name,
			TargetType: rel.TargetType,
			Many:       rel.Kind == entities.KindHasMany,
		}
		if relAST.TargetType == "" {
			relAST.TargetType = AnyType
		}
		if rel.Options.Async {
			relAST.Options = append(relAST.Options, &RelationOptionAST{Key: "async"})
		}
		if rel.Options.Polymorphic {
			relAST.Options = append(relAST.Options, &RelationOptionAST{Key: "polymorphic"})
		}
		switch {
		case rel.Options.NoInverse:
			relAST.Options = append(relAST.Options, &RelationOptionAST{Key: "inverse", Value: "none"})
		case rel.Options.Inverse != "":
			relAST.Options = append(relAST.Options, &RelationOptionAST{Key: "inverse", Value: rel.Options.Inverse})
		}
		ast.Relations = append(ast.Relations, relAST)
	}

	for _, attr := range entity.AttributeSchemas {
		ast.Attributes = append(ast.Attributes, &AttributeAST{
			Name: attr.Name,
			Type: attr.Type,
		})
	}

	return ast
}

// ParseSchema parses, validates and converts DSL in one step
func ParseSchema(tenantID, dsl string) (*entities.Schema, error) {
	ast, err := NewParser(NewLexer(dsl)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSL: %w", err)
	}
	if err := NewValidator(ast).Validate(); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	schema, err := ASTToSchema(tenantID, ast)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema: %w", err)
	}
	schema.DSL = dsl
	return schema, nil
}
