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

	for i, m := range schema.Models {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(g.generateModel(m))
	}

	return sb.String()
}

func (g *Generator) generateModel(m *ModelAST) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("model %s {\n", m.Name))

	for _, p := range m.Properties {
		sb.WriteString(g.indent)
		sb.WriteString(g.generateProperty(p))
		sb.WriteString("\n")
	}

	for _, r := range m.Relations {
		sb.WriteString(g.indent)
		sb.WriteString(g.generateRelation(r))
		sb.WriteString("\n")
	}

	sb.WriteString("}")

	return sb.String()
}

// generateProperty generates "property name: type (modifiers)"
func (g *Generator) generateProperty(p *PropertyAST) string {
	out := fmt.Sprintf("property %s: %s", p.Name, p.Type)
	if len(p.Modifiers) > 0 {
		out += " (" + strings.Join(p.Modifiers, ", ") + ")"
	}
	return out
}

// generateRelation generates "relation name: kind Target (key = "value")"
func (g *Generator) generateRelation(r *RelationAST) string {
	out := fmt.Sprintf("relation %s: %s %s", r.Name, r.Kind, r.Target)
	if len(r.Options) > 0 {
		opts := make([]string, 0, len(r.Options))
		for _, o := range r.Options {
			opts = append(opts, fmt.Sprintf("%s = %s", o.Key, quote(o.Value)))
		}
		out += " (" + strings.Join(opts, ", ") + ")"
	}
	return out
}

// quote escapes the characters the lexer unescapes
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
