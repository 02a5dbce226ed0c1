package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asakaida/remotemodel/internal/entities"
)

var knownModifiers = map[string]bool{
	ModifierID:       true,
	ModifierRequired: true,
}

var knownOptions = map[string]bool{
	OptionForeignKey:  true,
	OptionThrough:     true,
	OptionPolymorphic: true,
	OptionProperty:    true,
	OptionScope:       true,
}

// Validator validates the parsed schema AST
type Validator struct {
	schema *SchemaAST
	errors []string
	models map[string]*ModelAST
	// external models may be referenced without being declared in the schema
	external map[string]bool
}

// NewValidator creates a new Validator. external names models defined
// elsewhere (e.g. already registered) that relations may target.
func NewValidator(schema *SchemaAST, external ...string) *Validator {
	models := make(map[string]*ModelAST)
	for _, m := range schema.Models {
		models[m.Name] = m
	}
	ext := make(map[string]bool, len(external))
	for _, name := range external {
		ext[name] = true
	}
	return &Validator{
		schema:   schema,
		errors:   []string{},
		models:   models,
		external: ext,
	}
}

// Validate validates the schema and returns error if invalid
func (v *Validator) Validate() error {
	v.validateUniqueModelNames()
	for _, m := range v.schema.Models {
		v.validateModelUniqueness(m)
		v.validateProperties(m)
		v.validateRelations(m)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *Validator) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *Validator) validateUniqueModelNames() {
	seen := make(map[string]bool)
	for _, m := range v.schema.Models {
		if seen[m.Name] {
			v.addError("duplicate model name: %s", m.Name)
		}
		seen[m.Name] = true
	}
}

// validateModelUniqueness checks for duplicate names within a model
func (v *Validator) validateModelUniqueness(m *ModelAST) {
	properties := make(map[string]bool)
	for _, p := range m.Properties {
		if properties[p.Name] {
			v.addError("model %s: duplicate property name: %s", m.Name, p.Name)
		}
		properties[p.Name] = true
	}

	relations := make(map[string]bool)
	for _, r := range m.Relations {
		if relations[r.Name] {
			v.addError("model %s: duplicate relation name: %s", m.Name, r.Name)
		}
		relations[r.Name] = true
	}

	// Embedded relations store their data in a property of the same name
	for _, r := range m.Relations {
		kind := entities.RelationKind(r.Kind)
		if kind == entities.EmbedsOne || kind == entities.EmbedsMany {
			continue
		}
		if properties[r.Name] {
			v.addError("model %s: name conflict between property and relation: %s", m.Name, r.Name)
		}
	}
}

func (v *Validator) validateProperties(m *ModelAST) {
	ids := 0
	for _, p := range m.Properties {
		if !entities.PropertyTypes[p.Type] {
			v.addError("model %s: invalid property type: %s (property: %s)", m.Name, p.Type, p.Name)
		}
		for _, mod := range p.Modifiers {
			if !knownModifiers[mod] {
				v.addError("model %s: unknown modifier %s on property %s", m.Name, mod, p.Name)
			}
		}
		if p.HasModifier(ModifierID) {
			ids++
		}
	}
	if ids > 1 {
		v.addError("model %s: only one property may be marked id", m.Name)
	}
}

func (v *Validator) validateRelations(m *ModelAST) {
	for _, r := range m.Relations {
		kind := entities.RelationKind(r.Kind)
		if !kind.Valid() {
			v.addError("model %s: relation %s has unknown kind: %s", m.Name, r.Name, r.Kind)
		}
		if !v.defined(r.Target) {
			v.addError("model %s: relation %s references undefined model: %s", m.Name, r.Name, r.Target)
		}

		seen := make(map[string]bool)
		for _, o := range r.Options {
			if !knownOptions[o.Key] {
				v.addError("model %s: relation %s has unknown option: %s", m.Name, r.Name, o.Key)
			}
			if seen[o.Key] {
				v.addError("model %s: relation %s repeats option: %s", m.Name, r.Name, o.Key)
			}
			seen[o.Key] = true
		}

		through := r.Option(OptionThrough)
		switch {
		case kind == entities.HasAndBelongsToMany && through == "":
			v.addError("model %s: relation %s: %s requires a through model", m.Name, r.Name, kind)
		case through != "" && !v.defined(through):
			v.addError("model %s: relation %s references undefined through model: %s", m.Name, r.Name, through)
		}

		if scope := r.Option(OptionScope); scope != "" {
			var where map[string]interface{}
			if err := json.Unmarshal([]byte(scope), &where); err != nil {
				v.addError("model %s: relation %s has invalid scope: %v", m.Name, r.Name, err)
			}
		}
	}
}

func (v *Validator) defined(name string) bool {
	_, ok := v.models[name]
	return ok || v.external[name]
}
