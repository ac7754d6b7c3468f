package parser

import (
	"fmt"
	"strings"
)

// Parser parses the DSL into an AST
type Parser struct {
	lexer   *Lexer
	current *Token
	peek    *Token
	errors  []string
}

// NewParser creates a new Parser
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer:  lexer,
		errors: []string{},
	}

	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()

	return p
}

// nextToken advances to the next token
func (p *Parser) nextToken() {
	p.current = p.peek
	tok, err := p.lexer.NextToken()
	if err != nil {
		p.errors = append(p.errors, err.Error())
		p.peek = &Token{Type: TOKEN_EOF}
	} else {
		p.peek = tok
	}
}

// currentTokenIs checks if the current token is of the given type
func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

// peekTokenIs checks if the peek token is of the given type
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peek != nil && p.peek.Type == t
}

// expectPeek checks if the next token is of the expected type and advances
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// peekError adds an error for unexpected peek token
func (p *Parser) peekError(t TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead at %d:%d",
		tokenNames[t], tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
	p.errors = append(p.errors, msg)
}

// Parse parses the entire schema
func (p *Parser) Parse() (*SchemaAST, error) {
	schema := &SchemaAST{
		Entities: []*EntityAST{},
	}

	for !p.currentTokenIs(TOKEN_EOF) {
		if p.currentTokenIs(TOKEN_ENTITY) {
			entity := p.parseEntity()
			if entity != nil {
				schema.Entities = append(schema.Entities, entity)
			} else {
				// If parseEntity failed, skip to next token to avoid infinite loop
				p.nextToken()
			}
		} else {
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s at %d:%d, expected 'entity'",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
	}

	return schema, nil
}

// parseEntity parses an entity definition
func (p *Parser) parseEntity() *EntityAST {
	entity := &EntityAST{
		Relations:  []*RelationAST{},
		Attributes: []*AttributeAST{},
	}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil
	}
	entity.Name = p.current.Value

	if !p.expectPeek(TOKEN_LBRACE) {
		return nil
	}

	p.nextToken()
	for !p.currentTokenIs(TOKEN_RBRACE) && !p.currentTokenIs(TOKEN_EOF) {
		switch {
		case p.currentTokenIs(TOKEN_RELATION):
			relation := p.parseRelation()
			if relation != nil {
				entity.Relations = append(entity.Relations, relation)
			}
		case p.currentTokenIs(TOKEN_ATTRIBUTE):
			attribute := p.parseAttribute()
			if attribute != nil {
				entity.Attributes = append(entity.Attributes, attribute)
			}
		default:
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s in entity at %d:%d",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	if !p.currentTokenIs(TOKEN_RBRACE) {
		p.errors = append(p.errors, fmt.Sprintf("expected '}' at end of entity, got %s at %d:%d",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
		return nil
	}

	p.nextToken()
	return entity
}

// parseRelation parses a relation definition
// Syntax: "relation name @type[] (option, key: value)"
func (p *Parser) parseRelation() *RelationAST {
	relation := &RelationAST{}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return p.skipDeclaration()
	}
	relation.Name = p.current.Value

	if !p.expectPeek(TOKEN_AT) {
		return p.skipDeclaration()
	}
	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return p.skipDeclaration()
	}
	relation.TargetType = p.current.Value

	if p.peekTokenIs(TOKEN_LBRACKET) {
		p.nextToken()
		if !p.expectPeek(TOKEN_RBRACKET) {
			return p.skipDeclaration()
		}
		relation.Many = true
	}

	if p.peekTokenIs(TOKEN_LPAREN) {
		p.nextToken()
		options, ok := p.parseOptions()
		if !ok {
			return p.skipDeclaration()
		}
		relation.Options = options
	}

	p.nextToken()
	return relation
}

// parseOptions parses "(async, inverse: post)"; current token is "("
func (p *Parser) parseOptions() ([]*RelationOptionAST, bool) {
	var options []*RelationOptionAST
	for {
		if !p.expectPeek(TOKEN_IDENTIFIER) {
			return nil, false
		}
		option := &RelationOptionAST{Key: p.current.Value}
		if p.peekTokenIs(TOKEN_COLON) {
			p.nextToken()
			if !p.expectPeek(TOKEN_IDENTIFIER) {
				return nil, false
			}
			option.Value = p.current.Value
		}
		options = append(options, option)

		if p.peekTokenIs(TOKEN_COMMA) {
			p.nextToken()
			continue
		}
		if !p.expectPeek(TOKEN_RPAREN) {
			return nil, false
		}
		return options, true
	}
}

// parseAttribute parses an attribute definition
func (p *Parser) parseAttribute() *AttributeAST {
	attribute := &AttributeAST{}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.skipDeclaration()
		return nil
	}
	attribute.Name = p.current.Value

	if !p.expectPeek(TOKEN_COLON) {
		p.skipDeclaration()
		return nil
	}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.skipDeclaration()
		return nil
	}
	attributeType := p.current.Value

	// Check for array type (e.g., string[])
	if p.peekTokenIs(TOKEN_LBRACKET) {
		p.nextToken()
		if !p.expectPeek(TOKEN_RBRACKET) {
			p.skipDeclaration()
			return nil
		}
		attributeType += "[]"
	}

	attribute.Type = attributeType

	p.nextToken()
	return attribute
}

// skipDeclaration skips to the next declaration so one error does not cascade
func (p *Parser) skipDeclaration() *RelationAST {
	for !p.currentTokenIs(TOKEN_EOF) &&
		!p.peekTokenIs(TOKEN_RELATION) && !p.peekTokenIs(TOKEN_ATTRIBUTE) &&
		!p.peekTokenIs(TOKEN_RBRACE) && !p.peekTokenIs(TOKEN_EOF) {
		p.nextToken()
	}
	p.nextToken()
	return nil
}
