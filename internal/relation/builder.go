package relation

import (
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/model"
)

// contractVersion is the version of the Build contract this builder implements
const contractVersion = 1

// operations lists the accessor operations installed per kind
var operations = map[entities.RelationKind][]string{
	entities.HasMany:             {model.OpGet, model.OpCreate, model.OpCount, model.OpFindByID, model.OpDestroyByID, model.OpDelete},
	entities.BelongsTo:           {model.OpGet},
	entities.HasOne:              {model.OpGet, model.OpCreate},
	entities.HasAndBelongsToMany: {model.OpGet, model.OpCreate, model.OpLink, model.OpUnlink, model.OpCount},
	entities.ReferencesMany:      {model.OpGet, model.OpCount},
	entities.EmbedsOne:           {model.OpGet, model.OpCreate},
	entities.EmbedsMany:          {model.OpGet, model.OpCreate, model.OpCount},
}

// ModelLookup resolves a model by name. It is used to find the join model
// of hasAndBelongsToMany relations when an accessor runs.
type ModelLookup func(name string) (*model.Model, bool)

// Builder builds relations between models and installs their accessor methods
type Builder struct {
	lookup ModelLookup
	engine *filter.Engine
}

// Option configures a Builder
type Option func(*Builder)

// WithModelLookup sets how join models are resolved
func WithModelLookup(lookup ModelLookup) Option {
	return func(b *Builder) {
		b.lookup = lookup
	}
}

// WithEngine sets the filter engine used to query embedded lists
func WithEngine(e *filter.Engine) Option {
	return func(b *Builder) {
		b.engine = e
	}
}

// NewBuilder creates a relation builder
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.engine == nil {
		engine, err := filter.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("failed to create filter engine: %w", err)
		}
		b.engine = engine
	}
	return b, nil
}

// ContractVersion returns the version of the Build contract
func (b *Builder) ContractVersion() int {
	return contractVersion
}

// Kinds returns the supported relation kinds
func (b *Builder) Kinds() []entities.RelationKind {
	out := make([]entities.RelationKind, len(entities.RelationKinds))
	copy(out, entities.RelationKinds)
	return out
}

// Operations returns the accessor operations installed for a kind
func (b *Builder) Operations(kind entities.RelationKind) []string {
	ops := operations[kind]
	out := make([]string, len(ops))
	copy(out, ops)
	return out
}

// Build declares a relation on source, records its definition and installs
// the accessor methods for the kind
func (b *Builder) Build(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: relation %s: source model is required", model.ErrInvalid, params.Name)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: relation %s: target model is required", model.ErrInvalid, params.Name)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("%w: relation name is required", model.ErrInvalid)
	}
	ops, ok := operations[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported relation kind %q", model.ErrInvalid, kind)
	}

	def := &entities.RelationDefinition{
		Name:        params.Name,
		Kind:        kind,
		Source:      source.Name(),
		Target:      target.Name(),
		ForeignKey:  params.ForeignKey,
		Through:     params.Through,
		Polymorphic: params.Polymorphic,
		Property:    params.Property,
		Scope:       params.Scope,
	}
	applyConventions(def)
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}

	a := &accessors{builder: b, def: def, source: source, target: target}
	methods := make([]model.Method, 0, len(ops))
	for _, op := range ops {
		fn, err := a.method(op)
		if err != nil {
			return nil, err
		}
		methods = append(methods, model.Method{Name: def.MethodName(op), Func: fn, Relation: def.Name})
	}

	if err := source.AddRelation(def, target); err != nil {
		return nil, err
	}
	for _, method := range methods {
		if err := source.InstallMethod(method); err != nil {
			// A relation is declared with all of its accessors or not at all
			source.RemoveRelation(def.Name)
			return nil, fmt.Errorf("failed to install %s: %w", method.Name, err)
		}
	}
	return def, nil
}

func (b *Builder) lookupModel(name string) (*model.Model, error) {
	if b.lookup == nil {
		return nil, fmt.Errorf("%w: model %s: no model lookup configured", model.ErrNotFound, name)
	}
	m, ok := b.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: model %s", model.ErrNotFound, name)
	}
	return m, nil
}
