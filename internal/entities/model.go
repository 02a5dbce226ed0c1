package entities

import "fmt"

// DefaultIDProperty is the primary key property of models that declare none
const DefaultIDProperty = "id"

// ModelDefinition represents a model declaration
// Example: "model RelatedModel { property name: string; relation related: hasMany TestModel }"
type ModelDefinition struct {
	Name       string                 // Model name (e.g., "TestModel")
	Properties []*Property            // Property schema
	Relations  []*RelationDeclaration // Declared relations, built in order
}

// RelationDeclaration is a relation as written in a model definition,
// before the target is resolved to a model
type RelationDeclaration struct {
	Kind   RelationKind
	Target string // Target model name
	Params RelationParams
}

// GetProperty returns the property definition by name
func (m *ModelDefinition) GetProperty(name string) *Property {
	for _, p := range m.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// GetRelation returns the relation declaration by name
func (m *ModelDefinition) GetRelation(name string) *RelationDeclaration {
	for _, r := range m.Relations {
		if r.Params.Name == name {
			return r
		}
	}
	return nil
}

// IDProperty returns the name of the primary key property
func (m *ModelDefinition) IDProperty() string {
	for _, p := range m.Properties {
		if p.ID {
			return p.Name
		}
	}
	return DefaultIDProperty
}

// Validate checks the model definition for missing names
func (m *ModelDefinition) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	for i, p := range m.Properties {
		if p.Name == "" {
			return fmt.Errorf("model %s: property at index %d has no name", m.Name, i)
		}
	}
	for i, r := range m.Relations {
		if r.Params.Name == "" {
			return fmt.Errorf("model %s: relation at index %d has no name", m.Name, i)
		}
		if r.Target == "" {
			return fmt.Errorf("model %s: relation %s has no target", m.Name, r.Params.Name)
		}
	}
	return nil
}
