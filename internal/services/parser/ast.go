package parser

// SchemaAST represents the parsed schema AST
type SchemaAST struct {
	Models []*ModelAST
}

// ModelAST represents a model definition in the AST
type ModelAST struct {
	Name       string
	Properties []*PropertyAST
	Relations  []*RelationAST
}

// PropertyAST represents a property definition in the AST
// Syntax: property name: type (modifier, ...)
type PropertyAST struct {
	Name      string
	Type      string   // "string", "number", "boolean", ...
	Modifiers []string // "id", "required"
}

// HasModifier reports whether the property carries the given modifier
func (p *PropertyAST) HasModifier(name string) bool {
	for _, m := range p.Modifiers {
		if m == name {
			return true
		}
	}
	return false
}

// RelationAST represents a relation definition in the AST
// Syntax: relation name: kind Target (key = "value", ...)
type RelationAST struct {
	Name    string
	Kind    string
	Target  string
	Options []*OptionAST
}

// Option returns the value of the named option, or ""
func (r *RelationAST) Option(key string) string {
	for _, o := range r.Options {
		if o.Key == key {
			return o.Value
		}
	}
	return ""
}

// OptionAST is a key = "value" pair in a relation option list
type OptionAST struct {
	Key   string
	Value string
}

// Property modifiers
const (
	ModifierID       = "id"
	ModifierRequired = "required"
)

// Relation option keys
const (
	OptionForeignKey  = "foreignKey"
	OptionThrough     = "through"
	OptionPolymorphic = "polymorphic"
	OptionProperty    = "property"
	OptionScope       = "scope" // JSON encoded where clause
)
