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

// Parse is a shorthand for NewParser(NewLexer(input)).Parse()
func Parse(input string) (*SchemaAST, error) {
	return NewParser(NewLexer(input)).Parse()
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

func (p *Parser) currentTokenIs(t TokenType) bool {
	return p.current != nil && p.current.Type == t
}

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

// expectName advances to the next token if it can serve as a name.
// Keywords are accepted so a property may be called "model".
func (p *Parser) expectName() bool {
	switch p.peek.Type {
	case TOKEN_IDENTIFIER, TOKEN_MODEL, TOKEN_PROPERTY, TOKEN_RELATION:
		p.nextToken()
		return true
	}
	p.peekError(TOKEN_IDENTIFIER)
	return false
}

func (p *Parser) peekError(t TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead at %d:%d",
		tokenNames[t], tokenNames[p.peek.Type], p.peek.Line, p.peek.Column)
	p.errors = append(p.errors, msg)
}

// Parse parses the entire schema
func (p *Parser) Parse() (*SchemaAST, error) {
	schema := &SchemaAST{
		Models: []*ModelAST{},
	}

	for !p.currentTokenIs(TOKEN_EOF) {
		if p.currentTokenIs(TOKEN_MODEL) {
			m := p.parseModel()
			if m != nil {
				schema.Models = append(schema.Models, m)
			} else {
				// Skip a token so a broken model cannot loop forever
				p.nextToken()
			}
		} else {
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s at %d:%d, expected 'model'",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	if len(p.errors) > 0 {
		return nil, fmt.Errorf("parse errors:\n%s", strings.Join(p.errors, "\n"))
	}

	return schema, nil
}

// parseModel parses a model definition
func (p *Parser) parseModel() *ModelAST {
	m := &ModelAST{
		Properties: []*PropertyAST{},
		Relations:  []*RelationAST{},
	}

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		return nil
	}
	m.Name = p.current.Value

	if !p.expectPeek(TOKEN_LBRACE) {
		return nil
	}

	p.nextToken()
	for !p.currentTokenIs(TOKEN_RBRACE) && !p.currentTokenIs(TOKEN_EOF) {
		switch {
		case p.currentTokenIs(TOKEN_PROPERTY):
			if prop := p.parseProperty(); prop != nil {
				m.Properties = append(m.Properties, prop)
			}
		case p.currentTokenIs(TOKEN_RELATION):
			if rel := p.parseRelation(); rel != nil {
				m.Relations = append(m.Relations, rel)
			}
		case p.currentTokenIs(TOKEN_SEMICOLON):
			p.nextToken()
		default:
			p.errors = append(p.errors, fmt.Sprintf("unexpected token %s in model at %d:%d",
				tokenNames[p.current.Type], p.current.Line, p.current.Column))
			p.nextToken()
		}
	}

	if !p.currentTokenIs(TOKEN_RBRACE) {
		p.errors = append(p.errors, fmt.Sprintf("expected '}' at end of model, got %s at %d:%d",
			tokenNames[p.current.Type], p.current.Line, p.current.Column))
		return nil
	}

	p.nextToken()
	return m
}

// parseProperty parses "property name: type" with an optional modifier list.
// On return current is the first token after the declaration.
func (p *Parser) parseProperty() *PropertyAST {
	prop := &PropertyAST{}

	if !p.expectName() {
		p.nextToken()
		return nil
	}
	prop.Name = p.current.Value

	if !p.expectPeek(TOKEN_COLON) || !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	prop.Type = p.current.Value

	if p.peekTokenIs(TOKEN_LPAREN) {
		p.nextToken()
		for {
			if !p.expectPeek(TOKEN_IDENTIFIER) {
				p.nextToken()
				return nil
			}
			prop.Modifiers = append(prop.Modifiers, p.current.Value)
			if p.peekTokenIs(TOKEN_COMMA) {
				p.nextToken()
				continue
			}
			if !p.expectPeek(TOKEN_RPAREN) {
				p.nextToken()
				return nil
			}
			break
		}
	}

	p.nextToken()
	return prop
}

// parseRelation parses "relation name: kind Target" with an optional
// option list: (foreignKey = "ownerId", through = "Link")
func (p *Parser) parseRelation() *RelationAST {
	rel := &RelationAST{}

	if !p.expectName() {
		p.nextToken()
		return nil
	}
	rel.Name = p.current.Value

	if !p.expectPeek(TOKEN_COLON) || !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	rel.Kind = p.current.Value

	if !p.expectPeek(TOKEN_IDENTIFIER) {
		p.nextToken()
		return nil
	}
	rel.Target = p.current.Value

	if p.peekTokenIs(TOKEN_LPAREN) {
		p.nextToken()
		for {
			// Option keys may be keywords, e.g. property = "noteList"
			if !p.expectName() {
				p.nextToken()
				return nil
			}
			opt := &OptionAST{Key: p.current.Value}
			if !p.expectPeek(TOKEN_EQUALS) || !p.expectPeek(TOKEN_STRING) {
				p.nextToken()
				return nil
			}
			opt.Value = p.current.Value
			rel.Options = append(rel.Options, opt)

			if p.peekTokenIs(TOKEN_COMMA) {
				p.nextToken()
				continue
			}
			if !p.expectPeek(TOKEN_RPAREN) {
				p.nextToken()
				return nil
			}
			break
		}
	}

	p.nextToken()
	return rel
}
