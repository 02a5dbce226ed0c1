package remoterelation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/asakaida/remotemodel/internal/connectors/memory"
	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/relation"
)

// resolvingConnector is an in-memory connector with a recording resolve hook
type resolvingConnector struct {
	*memory.Connector

	resolveFunc func(m *model.Model) error
	resolved    []string
	// method names present on the model at each resolve
	methodsSeen [][]string
}

func (c *resolvingConnector) Resolve(m *model.Model) error {
	c.resolved = append(c.resolved, m.Name())
	names := make([]string, 0)
	for _, method := range m.Methods() {
		names = append(names, method.Name)
	}
	c.methodsSeen = append(c.methodsSeen, names)
	if c.resolveFunc != nil {
		return c.resolveFunc(m)
	}
	return nil
}

// mockBuilder is a relation builder with overridable behavior
type mockBuilder struct {
	version   int
	kinds     []entities.RelationKind
	buildFunc func(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error)
	calls     int
}

func (b *mockBuilder) ContractVersion() int {
	if b.version == 0 {
		return SupportedContractVersion
	}
	return b.version
}

func (b *mockBuilder) Kinds() []entities.RelationKind {
	return b.kinds
}

func (b *mockBuilder) Build(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
	b.calls++
	if b.buildFunc != nil {
		return b.buildFunc(kind, source, target, params)
	}
	return &entities.RelationDefinition{Name: params.Name, Kind: kind, Source: source.Name(), Target: target.Name()}, nil
}

// recordingBuilder wraps the real builder and keeps the definitions it returned
type recordingBuilder struct {
	*relation.Builder
	built []*entities.RelationDefinition
}

func (b *recordingBuilder) Build(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
	def, err := b.Builder.Build(kind, source, target, params)
	if err == nil {
		b.built = append(b.built, def)
	}
	return def, err
}

func newResolvingConnector(t *testing.T) *resolvingConnector {
	t.Helper()
	mem, err := memory.New()
	if err != nil {
		t.Fatalf("failed to create memory connector: %v", err)
	}
	return &resolvingConnector{Connector: mem}
}

func newModels(t *testing.T, conn model.Connector, factory model.RelationFactory) (*model.Model, *model.Model) {
	t.Helper()
	ds := model.NewDataSource("remote", conn)
	source, err := model.New(&entities.ModelDefinition{Name: "RelatedModel"}, ds, model.WithRelationFactory(factory))
	if err != nil {
		t.Fatalf("failed to create source model: %v", err)
	}
	target, err := model.New(&entities.ModelDefinition{Name: "TestModel"}, ds, model.WithRelationFactory(factory))
	if err != nil {
		t.Fatalf("failed to create target model: %v", err)
	}
	return source, target
}

func newRelationBuilder(t *testing.T) *relation.Builder {
	t.Helper()
	b, err := relation.NewBuilder()
	if err != nil {
		t.Fatalf("failed to create relation builder: %v", err)
	}
	return b
}

func TestNew_CapturesBuilderKinds(t *testing.T) {
	builder := newRelationBuilder(t)
	f, err := New(builder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(f.Kinds(), builder.Kinds()) {
		t.Errorf("expected kinds %v, got %v", builder.Kinds(), f.Kinds())
	}

	ops := f.Operations()
	if len(ops) != len(builder.Kinds()) {
		t.Errorf("expected %d operations, got %d", len(builder.Kinds()), len(ops))
	}
	for _, k := range builder.Kinds() {
		if ops[k] == nil {
			t.Errorf("missing operation for kind %s", k)
		}
	}
}

func TestNew_RejectsOtherContractVersions(t *testing.T) {
	_, err := New(&mockBuilder{version: 2, kinds: []entities.RelationKind{entities.HasMany}})
	if !errors.Is(err, ErrUnsupportedContract) {
		t.Fatalf("expected ErrUnsupportedContract, got %v", err)
	}
}

func TestNew_RequiresBuilder(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil builder")
	}
}

func TestNew_KindsSnapshot(t *testing.T) {
	builder := &mockBuilder{kinds: []entities.RelationKind{entities.HasMany, entities.BelongsTo, entities.HasMany}}
	f, err := New(builder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// later changes to the builder's list are not observed
	builder.kinds = append(builder.kinds, entities.EmbedsOne)

	want := []entities.RelationKind{entities.HasMany, entities.BelongsTo}
	if !reflect.DeepEqual(f.Kinds(), want) {
		t.Errorf("expected kinds %v, got %v", want, f.Kinds())
	}
}

func TestFactory_Build_EveryKind(t *testing.T) {
	params := map[entities.RelationKind]entities.RelationParams{
		entities.HasMany:             {Name: "related", ForeignKey: "relatedModelId"},
		entities.BelongsTo:           {Name: "owner"},
		entities.HasOne:              {Name: "profile"},
		entities.HasAndBelongsToMany: {Name: "tags", Through: "RelatedModelTag"},
		entities.ReferencesMany:      {Name: "items"},
		entities.EmbedsOne:           {Name: "address"},
		entities.EmbedsMany:          {Name: "notes", Property: "noteList"},
	}

	for _, kind := range newRelationBuilder(t).Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			builder := &recordingBuilder{Builder: newRelationBuilder(t)}
			f, err := New(builder)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			conn := newResolvingConnector(t)
			source, target := newModels(t, conn, f)

			p, ok := params[kind]
			if !ok {
				t.Fatalf("no test params for kind %s", kind)
			}

			def, err := f.Build(kind, source, target, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(builder.built) != 1 {
				t.Fatalf("expected builder to be called once, got %d", len(builder.built))
			}
			if def != builder.built[0] {
				t.Error("expected the builder's definition to be returned as is")
			}
			if def.Kind != kind || def.Name != p.Name || def.Source != "RelatedModel" || def.Target != "TestModel" {
				t.Errorf("unexpected definition: %s", def)
			}

			if !reflect.DeepEqual(conn.resolved, []string{"RelatedModel"}) {
				t.Fatalf("expected one resolve of RelatedModel, got %v", conn.resolved)
			}
			getter := def.MethodName(model.OpGet)
			found := false
			for _, name := range conn.methodsSeen[0] {
				if name == getter {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %s to be installed before resolve, saw %v", getter, conn.methodsSeen[0])
			}
		})
	}
}

func TestFactory_Operations_Build(t *testing.T) {
	f, err := New(newRelationBuilder(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := newResolvingConnector(t)
	source, target := newModels(t, conn, f)

	def, err := f.Operations()[entities.HasMany](source, target, entities.RelationParams{Name: "related"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Kind != entities.HasMany {
		t.Errorf("expected hasMany, got %s", def.Kind)
	}
	if def.ForeignKey != "relatedModelId" {
		t.Errorf("expected foreign key relatedModelId, got %s", def.ForeignKey)
	}
	if len(conn.resolved) != 1 {
		t.Errorf("expected one resolve, got %d", len(conn.resolved))
	}
}

func TestFactory_Build_BuilderErrorPropagates(t *testing.T) {
	buildErr := errors.New("through model is required")
	builder := &mockBuilder{
		kinds: []entities.RelationKind{entities.HasAndBelongsToMany},
		buildFunc: func(kind entities.RelationKind, source, target *model.Model, params entities.RelationParams) (*entities.RelationDefinition, error) {
			return nil, buildErr
		},
	}
	f, err := New(builder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := newResolvingConnector(t)
	source, target := newModels(t, conn, f)

	def, err := f.Build(entities.HasAndBelongsToMany, source, target, entities.RelationParams{Name: "tags"})
	if err != buildErr {
		t.Fatalf("expected builder error unchanged, got %v", err)
	}
	if def != nil {
		t.Errorf("expected no definition, got %s", def)
	}
	if len(conn.resolved) != 0 {
		t.Errorf("expected no resolve after a failed build, got %v", conn.resolved)
	}
}

func TestFactory_Build_ResolveErrorPropagates(t *testing.T) {
	resolveErr := errors.New("remote unavailable")
	f, err := New(newRelationBuilder(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := newResolvingConnector(t)
	conn.resolveFunc = func(m *model.Model) error { return resolveErr }
	source, target := newModels(t, conn, f)

	_, err = f.Build(entities.HasMany, source, target, entities.RelationParams{Name: "related"})
	if err != resolveErr {
		t.Fatalf("expected resolve error unchanged, got %v", err)
	}
}

func TestFactory_Build_UnknownKind(t *testing.T) {
	builder := &mockBuilder{kinds: []entities.RelationKind{entities.HasMany}}
	f, err := New(builder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := newResolvingConnector(t)
	source, target := newModels(t, conn, f)

	tests := []entities.RelationKind{entities.BelongsTo, "hasFew", ""}
	for _, kind := range tests {
		_, err := f.Build(kind, source, target, entities.RelationParams{Name: "x"})
		if !errors.Is(err, ErrUnknownKind) {
			t.Errorf("kind %q: expected ErrUnknownKind, got %v", kind, err)
		}
	}
	if builder.calls != 0 {
		t.Errorf("expected builder not to be called, got %d calls", builder.calls)
	}
	if len(conn.resolved) != 0 {
		t.Errorf("expected no resolve, got %v", conn.resolved)
	}
}

func TestFactory_Build_ResolverUnavailable(t *testing.T) {
	f, err := New(newRelationBuilder(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mem, err := memory.New()
	if err != nil {
		t.Fatalf("failed to create memory connector: %v", err)
	}
	source, target := newModels(t, mem, f)

	_, err = f.Build(entities.HasMany, source, target, entities.RelationParams{Name: "related"})
	if !errors.Is(err, ErrResolverUnavailable) {
		t.Fatalf("expected ErrResolverUnavailable, got %v", err)
	}
}

func TestFactory_RepeatedResolveIsIdempotent(t *testing.T) {
	f, err := New(newRelationBuilder(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := newResolvingConnector(t)
	remoteCalls := map[string]int{}
	conn.resolveFunc = func(m *model.Model) error {
		for _, method := range m.Methods() {
			name := method.Name
			static := method.Static
			if err := m.Rebind(name, func(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
				remoteCalls[name]++
				if static {
					return nil, nil
				}
				return []entities.Record{}, nil
			}, true); err != nil {
				return err
			}
		}
		return nil
	}
	source, target := newModels(t, conn, f)

	// resolve once at definition time, then once per relation
	if err := conn.Resolve(source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := len(source.Methods())

	relations := []entities.RelationParams{
		{Name: "related"},
		{Name: "others", ForeignKey: "otherId"},
		{Name: "more", ForeignKey: "moreId"},
	}
	for _, p := range relations {
		if _, err := source.Relate(entities.HasMany, target, p); err != nil {
			t.Fatalf("relation %s: unexpected error: %v", p.Name, err)
		}
	}

	if got, want := len(conn.resolved), len(relations)+1; got != want {
		t.Errorf("expected %d resolves, got %d", want, got)
	}

	methods := source.Methods()
	if got, want := len(methods), before+len(relations)*len(newRelationBuilder(t).Operations(entities.HasMany)); got != want {
		t.Errorf("expected %d methods, got %d", want, got)
	}
	seen := map[string]bool{}
	for _, m := range methods {
		if seen[m.Name] {
			t.Errorf("duplicate method %s", m.Name)
		}
		seen[m.Name] = true
		if !m.Remote {
			t.Errorf("method %s is not bound remotely", m.Name)
		}
	}

	inst := source.NewInstance(entities.Record{"id": int64(1)})
	acc, err := inst.Relation("related")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := acc.Get(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remoteCalls[entities.RelationMethodName(model.OpGet, "related")] != 1 {
		t.Errorf("expected the accessor to dispatch remotely once, got %v", remoteCalls)
	}
}
