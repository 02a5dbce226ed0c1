// Package remoterelation adapts a relation builder to models whose data
// source forwards method calls to a remote server.
//
// Every relation kind offered by the builder is exposed through a Factory.
// Building a relation delegates to the builder and then asks the source
// model's connector to resolve the model, which rebinds the freshly
// installed accessor methods to remote dispatch. The relation definition
// produced by the builder is returned unchanged.
package remoterelation

import (
	"errors"
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
)

// SupportedContractVersion is the builder contract version the Factory wraps
const SupportedContractVersion = 1

var (
	// ErrUnknownKind is returned for kinds the wrapped builder does not offer
	ErrUnknownKind = errors.New("unknown relation kind")
	// ErrResolverUnavailable is returned when the source model's connector
	// has no resolve hook
	ErrResolverUnavailable = errors.New("data source connector cannot resolve models")
	// ErrUnsupportedContract is returned for builders of another contract version
	ErrUnsupportedContract = errors.New("unsupported relation builder contract")
)

// Builder is the relation framework being adapted
type Builder interface {
	ContractVersion() int
	Kinds() []entities.RelationKind
	Build(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error)
}

// BuildFunc builds one relation kind
type BuildFunc func(source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error)

// Factory builds relations and resolves the source model afterwards.
// It implements model.RelationFactory.
type Factory struct {
	builder Builder
	kinds   []entities.RelationKind
	known   map[entities.RelationKind]bool
}

// New wraps builder. The builder's kinds are captured once.
func New(builder Builder) (*Factory, error) {
	if builder == nil {
		return nil, fmt.Errorf("relation builder is required")
	}
	if v := builder.ContractVersion(); v != SupportedContractVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrUnsupportedContract, v, SupportedContractVersion)
	}

	kinds := builder.Kinds()
	f := &Factory{
		builder: builder,
		kinds:   make([]entities.RelationKind, 0, len(kinds)),
		known:   make(map[entities.RelationKind]bool, len(kinds)),
	}
	for _, k := range kinds {
		if f.known[k] {
			continue
		}
		f.known[k] = true
		f.kinds = append(f.kinds, k)
	}
	return f, nil
}

// Kinds returns the relation kinds captured from the builder
func (f *Factory) Kinds() []entities.RelationKind {
	out := make([]entities.RelationKind, len(f.kinds))
	copy(out, f.kinds)
	return out
}

// Operations returns one build operation per relation kind
func (f *Factory) Operations() map[entities.RelationKind]BuildFunc {
	ops := make(map[entities.RelationKind]BuildFunc, len(f.kinds))
	for _, k := range f.kinds {
		kind := k
		ops[kind] = func(source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
			return f.Build(kind, source, target, params)
		}
	}
	return ops
}

// Build delegates to the builder, then resolves source through its data
// source connector. Errors from either step are returned as is.
func (f *Factory) Build(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
	if !f.known[kind] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	def, err := f.builder.Build(kind, source, target, params)
	if err != nil {
		return nil, err
	}

	if source == nil {
		return nil, ErrResolverUnavailable
	}
	resolver, ok := source.DataSource().Resolver()
	if !ok {
		return nil, fmt.Errorf("%w: model %s", ErrResolverUnavailable, source.Name())
	}
	if err := resolver.Resolve(source); err != nil {
		return nil, err
	}
	return def, nil
}
