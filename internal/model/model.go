package model

import (
	"fmt"
	"sync"

	"github.com/asakaida/remotemodel/internal/entities"
)

// RelationFactory builds relations on behalf of a model.
// Build installs the relation's definition and accessor methods on source.
type RelationFactory interface {
	Kinds() []entities.RelationKind
	Build(kind entities.RelationKind, source, target *Model, params entities.RelationParams) (*entities.RelationDefinition, error)
}

// Model is a named entity type bound to a data source
type Model struct {
	def     *entities.ModelDefinition
	ds      *DataSource
	factory RelationFactory

	mu          sync.RWMutex
	methods     map[string]*Method
	methodOrder []string
	relations   map[string]*relation
	relOrder    []string
}

type relation struct {
	def    *entities.RelationDefinition
	target *Model
}

// Option configures a Model
type Option func(*Model)

// WithRelationFactory sets the factory Relate delegates to
func WithRelationFactory(f RelationFactory) Option {
	return func(m *Model) {
		m.factory = f
	}
}

// New creates a model, registers its schema with the data source's
// connector and installs the built-in methods
func New(def *entities.ModelDefinition, ds *DataSource, opts ...Option) (*Model, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: model definition is required", ErrInvalid)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if ds == nil || ds.Connector == nil {
		return nil, fmt.Errorf("%w: model %s: data source with a connector is required", ErrInvalid, def.Name)
	}

	m := &Model{
		def:       def,
		ds:        ds,
		methods:   make(map[string]*Method),
		relations: make(map[string]*relation),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := ds.Connector.Define(def); err != nil {
		return nil, fmt.Errorf("failed to define model %s on %s: %w", def.Name, ds.Connector.Name(), err)
	}
	if err := m.installBuiltins(); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the model name
func (m *Model) Name() string {
	return m.def.Name
}

// Definition returns the model definition
func (m *Model) Definition() *entities.ModelDefinition {
	return m.def
}

// DataSource returns the data source the model is attached to
func (m *Model) DataSource() *DataSource {
	return m.ds
}

// IDProperty returns the primary key property name
func (m *Model) IDProperty() string {
	return m.def.IDProperty()
}

// RelationFactory returns the factory relations are built with
func (m *Model) RelationFactory() RelationFactory {
	return m.factory
}

// Relate declares a relation from m to target through the model's factory
func (m *Model) Relate(kind entities.RelationKind, target *Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
	if m.factory == nil {
		return nil, fmt.Errorf("model %s has no relation factory", m.Name())
	}
	return m.factory.Build(kind, m, target, params)
}

// AddRelation records a built relation. Relation builders call it before
// installing the relation's accessor methods.
func (m *Model) AddRelation(def *entities.RelationDefinition, target *Model) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if def.Source != m.Name() {
		return fmt.Errorf("%w: relation %s belongs to %s, not %s", ErrInvalid, def.Name, def.Source, m.Name())
	}
	if target == nil || target.Name() != def.Target {
		return fmt.Errorf("%w: relation %s: target model %s is not attached", ErrInvalid, def.Name, def.Target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.relations[def.Name]; exists {
		return fmt.Errorf("%w: relation %s already defined on %s", ErrInvalid, def.Name, m.Name())
	}
	m.relations[def.Name] = &relation{def: def, target: target}
	m.relOrder = append(m.relOrder, def.Name)
	return nil
}

// RemoveRelation drops a relation and every method it owns. It reports
// whether the relation existed.
func (m *Model) RemoveRelation(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.relations[name]; !exists {
		return false
	}
	delete(m.relations, name)
	m.relOrder = removeName(m.relOrder, name)

	kept := m.methodOrder[:0]
	for _, methodName := range m.methodOrder {
		if m.methods[methodName].Relation == name {
			delete(m.methods, methodName)
			continue
		}
		kept = append(kept, methodName)
	}
	m.methodOrder = kept
	return true
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// Relation returns the named relation definition and its target model
func (m *Model) Relation(name string) (*entities.RelationDefinition, *Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.relations[name]
	if !ok {
		return nil, nil, false
	}
	return r.def, r.target, true
}

// Relations returns the relation definitions in declaration order
func (m *Model) Relations() []*entities.RelationDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*entities.RelationDefinition, 0, len(m.relOrder))
	for _, name := range m.relOrder {
		out = append(out, m.relations[name].def)
	}
	return out
}

// validate checks data against the property schema.
// Required properties are only enforced when full is set.
func (m *Model) validate(data entities.Record, full bool) error {
	for _, p := range m.def.Properties {
		v, present := data[p.Name]
		if full && p.Required && !p.ID && (!present || v == nil) {
			return fmt.Errorf("%w: %s.%s is required", ErrInvalid, m.Name(), p.Name)
		}
		if err := p.Check(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, m.Name(), err)
		}
	}
	return nil
}
