package entities

import (
	"fmt"
	"strings"
)

// RelationKind identifies the shape of an association between two models
type RelationKind string

const (
	HasMany             RelationKind = "hasMany"
	BelongsTo           RelationKind = "belongsTo"
	HasOne              RelationKind = "hasOne"
	HasAndBelongsToMany RelationKind = "hasAndBelongsToMany"
	ReferencesMany      RelationKind = "referencesMany"
	EmbedsOne           RelationKind = "embedsOne"
	EmbedsMany          RelationKind = "embedsMany"
)

// RelationKinds lists every relation kind a model may declare
var RelationKinds = []RelationKind{
	HasMany,
	BelongsTo,
	HasOne,
	HasAndBelongsToMany,
	ReferencesMany,
	EmbedsOne,
	EmbedsMany,
}

// Valid reports whether k is a known relation kind
func (k RelationKind) Valid() bool {
	for _, known := range RelationKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsToMany reports whether the relation resolves to a list of instances
func (k RelationKind) IsToMany() bool {
	switch k {
	case HasMany, HasAndBelongsToMany, ReferencesMany, EmbedsMany:
		return true
	}
	return false
}

// RelationParams carries the options of a relation declaration.
// The remote relation adapter never inspects these; they are passed to the
// relation builder untouched.
type RelationParams struct {
	Name        string                 // Accessor name (e.g., "related", "owner")
	ForeignKey  string                 // Foreign key property (optional, derived when empty)
	Through     string                 // Join model name (hasAndBelongsToMany)
	Polymorphic string                 // Discriminator prefix (e.g., "imageable")
	Property    string                 // Embedding property (embedsOne, embedsMany)
	Scope       map[string]interface{} // Where clause merged into every target query
}

// RelationDefinition describes a relation installed on a source model
// Example: RelatedModel.related -> hasMany TestModel (relatedModelId)
type RelationDefinition struct {
	Name        string
	Kind        RelationKind
	Source      string // Source model name
	Target      string // Target model name
	ForeignKey  string
	Through     string
	Polymorphic string
	Property    string
	Scope       map[string]interface{}
}

// String returns a string representation of the relation definition
// Format: source.name -> kind target(foreign_key)
func (d *RelationDefinition) String() string {
	return fmt.Sprintf("%s.%s -> %s %s(%s)", d.Source, d.Name, d.Kind, d.Target, d.keyDescription())
}

func (d *RelationDefinition) keyDescription() string {
	switch d.Kind {
	case EmbedsOne, EmbedsMany:
		return d.Property
	case HasAndBelongsToMany:
		return d.Through
	}
	return d.ForeignKey
}

// Validate checks if the relation definition is complete
func (d *RelationDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("relation name is required")
	}
	if d.Kind == "" {
		return fmt.Errorf("relation kind is required")
	}
	if d.Source == "" {
		return fmt.Errorf("source model is required")
	}
	if d.Target == "" {
		return fmt.Errorf("target model is required")
	}
	if d.Kind == HasAndBelongsToMany && d.Through == "" {
		return fmt.Errorf("relation %s: through model is required for %s", d.Name, d.Kind)
	}
	return nil
}

// MethodName returns the accessor method name installed for an operation
// Example: MethodName("create") on "related" -> "prototype.__create__related"
func (d *RelationDefinition) MethodName(op string) string {
	return RelationMethodName(op, d.Name)
}

// RelationMethodName builds the accessor method name for a relation operation
func RelationMethodName(op, relation string) string {
	return "prototype.__" + op + "__" + relation
}

// ParseRelationMethodName splits an accessor method name into its operation and relation
func ParseRelationMethodName(name string) (op string, relation string, ok bool) {
	rest, found := strings.CutPrefix(name, "prototype.__")
	if !found {
		return "", "", false
	}
	i := strings.Index(rest, "__")
	if i <= 0 || i+2 >= len(rest) {
		return "", "", false
	}
	return rest[:i], rest[i+2:], true
}
