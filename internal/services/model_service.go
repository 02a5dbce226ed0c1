package services

import (
	"fmt"
	"sync"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/relation"
	"github.com/asakaida/remotemodel/internal/remoterelation"
	"github.com/asakaida/remotemodel/internal/services/parser"
	"go.uber.org/zap"
)

// ModelServiceInterface defines the interface for model registry operations
type ModelServiceInterface interface {
	Define(def *entities.ModelDefinition, ds *model.DataSource) (*model.Model, error)
	DefineSchema(schemaDSL string, ds *model.DataSource) ([]*model.Model, error)
	Model(name string) (*model.Model, bool)
	Models() []*model.Model
	Schema() (string, error)
}

// ModelService registers models, wires their relations and exposes them by name
type ModelService struct {
	builder       *relation.Builder
	remoteFactory *remoterelation.Factory
	logger        *zap.Logger

	mu      sync.RWMutex
	models  map[string]*model.Model
	order   []string
	pending []pendingRelation
}

// pendingRelation is a declared relation whose target is not defined yet
type pendingRelation struct {
	source *model.Model
	decl   *entities.RelationDeclaration
}

// ModelServiceOption configures a ModelService
type ModelServiceOption func(*modelServiceConfig)

type modelServiceConfig struct {
	logger *zap.Logger
	engine *filter.Engine
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) ModelServiceOption {
	return func(c *modelServiceConfig) {
		c.logger = logger
	}
}

// WithFilterEngine sets the engine relation accessors query embedded lists with
func WithFilterEngine(engine *filter.Engine) ModelServiceOption {
	return func(c *modelServiceConfig) {
		c.engine = engine
	}
}

// NewModelService creates a new ModelService
func NewModelService(opts ...ModelServiceOption) (*ModelService, error) {
	cfg := &modelServiceConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &ModelService{
		logger: cfg.logger,
		models: make(map[string]*model.Model),
	}

	builderOpts := []relation.Option{relation.WithModelLookup(s.Model)}
	if cfg.engine != nil {
		builderOpts = append(builderOpts, relation.WithEngine(cfg.engine))
	}
	builder, err := relation.NewBuilder(builderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation builder: %w", err)
	}
	remoteFactory, err := remoterelation.New(builder)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote relation factory: %w", err)
	}

	s.builder = builder
	s.remoteFactory = remoteFactory
	return s, nil
}

// Define creates a model on ds and declares its relations.
// Relations to models that are not defined yet are declared as soon as the
// target is defined.
func (s *ModelService) Define(def *entities.ModelDefinition, ds *model.DataSource) (*model.Model, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: model definition is required", model.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[def.Name]; exists {
		return nil, fmt.Errorf("%w: model %s is already defined", model.ErrInvalid, def.Name)
	}

	resolver, remote := ds.Resolver()
	var factory model.RelationFactory = s.builder
	if remote {
		factory = s.remoteFactory
	}

	m, err := model.New(def, ds, model.WithRelationFactory(factory))
	if err != nil {
		return nil, err
	}
	if remote {
		// Built-in methods must dispatch remotely even without relations
		if err := resolver.Resolve(m); err != nil {
			return nil, fmt.Errorf("failed to resolve model %s: %w", def.Name, err)
		}
	}

	saved := append([]pendingRelation(nil), s.pending...)
	s.models[def.Name] = m
	s.order = append(s.order, def.Name)

	for _, decl := range def.Relations {
		s.pending = append(s.pending, pendingRelation{source: m, decl: decl})
	}
	declared, err := s.declarePending()
	if err != nil {
		// Undo everything this call did so the definition can be retried
		for _, p := range declared {
			p.source.RemoveRelation(p.decl.Params.Name)
		}
		delete(s.models, def.Name)
		s.order = s.order[:len(s.order)-1]
		s.pending = saved
		return nil, err
	}

	s.logger.Info("model defined",
		zap.String("model", def.Name),
		zap.String("datasource", ds.Name),
		zap.String("connector", ds.Connector.Name()),
		zap.Bool("remote", remote),
	)
	return m, nil
}

// declarePending builds every pending relation whose target is now defined.
// It stops at the first failure and returns the relations it declared.
// Callers must hold s.mu.
func (s *ModelService) declarePending() ([]pendingRelation, error) {
	var declared []pendingRelation
	remaining := make([]pendingRelation, 0, len(s.pending))
	for i, p := range s.pending {
		target, ok := s.models[p.decl.Target]
		if !ok {
			remaining = append(remaining, p)
			continue
		}
		_, _, existed := p.source.Relation(p.decl.Params.Name)
		def, err := p.source.Relate(p.decl.Kind, target, p.decl.Params)
		if err != nil {
			if !existed {
				// Built but not resolved
				p.source.RemoveRelation(p.decl.Params.Name)
			}
			s.pending = append(remaining, s.pending[i:]...)
			return declared, fmt.Errorf("failed to declare relation %s.%s: %w", p.source.Name(), p.decl.Params.Name, err)
		}
		declared = append(declared, p)
		s.logger.Debug("relation declared", zap.String("relation", def.String()))
	}
	s.pending = remaining
	return declared, nil
}

// DefineSchema parses schemaDSL and defines every model in it on ds.
// Relations may target models defined earlier or later, in this schema or
// a previous one.
func (s *ModelService) DefineSchema(schemaDSL string, ds *model.DataSource) ([]*model.Model, error) {
	if schemaDSL == "" {
		return nil, fmt.Errorf("%w: schema DSL is required", model.ErrInvalid)
	}

	defs, err := parser.ParseModels(schemaDSL, s.modelNames()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalid, err)
	}

	models := make([]*model.Model, 0, len(defs))
	for _, def := range defs {
		m, err := s.Define(def, ds)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// Model returns the named model
func (s *ModelService) Model(name string) (*model.Model, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	return m, ok
}

// Models returns the defined models in definition order
func (s *ModelService) Models() []*model.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Model, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.models[name])
	}
	return out
}

// PendingRelations lists relations still waiting for their target model,
// as "Source.relation -> Target"
func (s *ModelService) PendingRelations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, fmt.Sprintf("%s.%s -> %s", p.source.Name(), p.decl.Params.Name, p.decl.Target))
	}
	return out
}

// Schema renders the defined models back to DSL
func (s *ModelService) Schema() (string, error) {
	models := s.Models()
	defs := make([]*entities.ModelDefinition, 0, len(models))
	for _, m := range models {
		defs = append(defs, m.Definition())
	}
	ast, err := parser.ModelsToAST(defs)
	if err != nil {
		return "", fmt.Errorf("failed to convert models: %w", err)
	}
	return parser.NewGenerator().Generate(ast), nil
}

func (s *ModelService) modelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}
