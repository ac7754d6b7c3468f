package parser

import (
	"fmt"
	"strings"
)

// Generator generates DSL from AST
type Generator struct {
	indent string
}

// NewGenerator creates a new Generator
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate generates DSL string from SchemaAST
func (g *Generator) Generate(schema *SchemaAST) string {
	var sb strings.Builder

	for i, entity := range schema.Entities {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(g.generateEntity(entity))
	}

	return sb.String()
}

// generateEntity generates DSL for an entity
func (g *Generator) generateEntity(entity *EntityAST) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("entity %s {\n", entity.Name))

	for _, relation := range entity.Relations {
		sb.WriteString(g.indent)
		sb.WriteString(g.generateRelation(relation))
		sb.WriteString("\n")
	}

	for _, attr := range entity.Attributes {
		sb.WriteString(g.indent)
		sb.WriteString(fmt.Sprintf("attribute %s: %s", attr.Name, attr.Type))
		sb.WriteString("\n")
	}

	sb.WriteString("}")

	return sb.String()
}

// generateRelation generates DSL for a relation
func (g *Generator) generateRelation(relation *RelationAST) string {
	target := "@" + relation.TargetType
	if relation.Many {
		target += "[]"
	}
	line := fmt.Sprintf("relation %s %s", relation.Name, target)
	if len(relation.Options) == 0 {
		return line
	}

	options := make([]string, 0, len(relation.Options))
	for _, o := range relation.Options {
		if o.Value != "" {
			options = append(options, o.Key+": "+o.Value)
		} else {
			options = append(options, o.Key)
		}
	}
	return fmt.Sprintf("%s (%s)", line, strings.Join(options, ", "))
}
