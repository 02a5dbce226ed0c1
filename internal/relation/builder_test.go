package relation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/asakaida/remotemodel/internal/connectors/memory"
	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/asakaida/remotemodel/internal/relation"
)

// testEnv holds models sharing one memory connector and one builder
type testEnv struct {
	t       *testing.T
	builder *relation.Builder
	ds      *model.DataSource
	models  map[string]*model.Model
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := memory.New()
	if err != nil {
		t.Fatalf("failed to create connector: %v", err)
	}
	env := &testEnv{
		t:      t,
		ds:     model.NewDataSource("db", conn),
		models: make(map[string]*model.Model),
	}
	env.builder, err = relation.NewBuilder(relation.WithModelLookup(func(name string) (*model.Model, bool) {
		m, ok := env.models[name]
		return m, ok
	}))
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	return env
}

func (e *testEnv) define(name string, props ...string) *model.Model {
	e.t.Helper()
	def := &entities.ModelDefinition{Name: name}
	for _, p := range props {
		def.Properties = append(def.Properties, &entities.Property{Name: p, Type: "any"})
	}
	m, err := model.New(def, e.ds, model.WithRelationFactory(e.builder))
	if err != nil {
		e.t.Fatalf("failed to define %s: %v", name, err)
	}
	e.models[name] = m
	return m
}

func (e *testEnv) relate(source *model.Model, kind entities.RelationKind, target *model.Model, params entities.RelationParams) *entities.RelationDefinition {
	e.t.Helper()
	def, err := source.Relate(kind, target, params)
	if err != nil {
		e.t.Fatalf("failed to relate %s.%s: %v", source.Name(), params.Name, err)
	}
	return def
}

func (e *testEnv) create(m *model.Model, data entities.Record) *model.Instance {
	e.t.Helper()
	inst, err := m.Create(context.Background(), data)
	if err != nil {
		e.t.Fatalf("failed to create %s: %v", m.Name(), err)
	}
	return inst
}

func accessor(t *testing.T, inst *model.Instance, name string) *model.RelationAccessor {
	t.Helper()
	a, err := inst.Relation(name)
	if err != nil {
		t.Fatalf("Relation(%s) error = %v", name, err)
	}
	return a
}

func instanceIDs(list []*model.Instance) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.ID())
	}
	return out
}

func sameIDs(got []interface{}, want ...int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestBuilder_Contract(t *testing.T) {
	b, err := relation.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}
	if b.ContractVersion() != 1 {
		t.Errorf("expected contract version 1, got %d", b.ContractVersion())
	}
	kinds := b.Kinds()
	if len(kinds) != len(entities.RelationKinds) {
		t.Fatalf("expected %d kinds, got %d", len(entities.RelationKinds), len(kinds))
	}
	for i, k := range kinds {
		if k != entities.RelationKinds[i] {
			t.Errorf("kind %d: expected %s, got %s", i, entities.RelationKinds[i], k)
		}
		if len(b.Operations(k)) == 0 {
			t.Errorf("%s installs no operations", k)
		}
	}

	// Kinds returns a copy
	kinds[0] = "mutated"
	if b.Kinds()[0] != entities.HasMany {
		t.Error("Kinds() exposed internal state")
	}
}

func TestBuilder_InstallsAccessors(t *testing.T) {
	env := newTestEnv(t)
	customer := env.define("Customer", "name")
	order := env.define("Order", "customerId")
	before := len(customer.Methods())

	def := env.relate(customer, entities.HasMany, order, entities.RelationParams{Name: "orders"})
	if def.ForeignKey != "customerId" {
		t.Errorf("expected derived foreign key customerId, got %s", def.ForeignKey)
	}

	ops := env.builder.Operations(entities.HasMany)
	if got := len(customer.Methods()); got != before+len(ops) {
		t.Errorf("expected %d methods, got %d", before+len(ops), got)
	}
	for _, op := range ops {
		method, ok := customer.Method("prototype.__" + op + "__orders")
		if !ok {
			t.Errorf("missing accessor for %s", op)
			continue
		}
		if method.Static || method.Relation != "orders" {
			t.Errorf("unexpected accessor entry: %+v", method)
		}
	}
	if _, _, ok := customer.Relation("orders"); !ok {
		t.Error("relation was not recorded on the source model")
	}
}

func TestBuilder_Errors(t *testing.T) {
	env := newTestEnv(t)
	customer := env.define("Customer")
	order := env.define("Order")
	env.relate(customer, entities.HasMany, order, entities.RelationParams{Name: "orders"})

	tests := []struct {
		name   string
		kind   entities.RelationKind
		source *model.Model
		target *model.Model
		params entities.RelationParams
	}{
		{name: "missing source", kind: entities.HasMany, target: order, params: entities.RelationParams{Name: "x"}},
		{name: "missing target", kind: entities.HasMany, source: customer, params: entities.RelationParams{Name: "x"}},
		{name: "missing name", kind: entities.HasMany, source: customer, target: order},
		{name: "unknown kind", kind: "hasSome", source: customer, target: order, params: entities.RelationParams{Name: "x"}},
		{name: "through required", kind: entities.HasAndBelongsToMany, source: customer, target: order, params: entities.RelationParams{Name: "x"}},
		{name: "duplicate name", kind: entities.HasMany, source: customer, target: order, params: entities.RelationParams{Name: "orders"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.builder.Build(tt.kind, tt.source, tt.target, tt.params)
			if !errors.Is(err, model.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestBuilder_InstallFailureLeavesNoRelation(t *testing.T) {
	env := newTestEnv(t)
	customer := env.define("Customer")
	order := env.define("Order")

	// Occupy the name of the third hasMany accessor
	custom := entities.RelationMethodName(model.OpCount, "orders")
	if err := customer.InstallMethod(model.Method{
		Name: custom,
		Func: func(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
			return 42, nil
		},
	}); err != nil {
		t.Fatalf("InstallMethod() error = %v", err)
	}
	before := len(customer.Methods())

	_, err := env.builder.Build(entities.HasMany, customer, order, entities.RelationParams{Name: "orders"})
	if !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	if _, _, ok := customer.Relation("orders"); ok {
		t.Error("expected the relation to be rolled back")
	}
	if _, ok := customer.Method(entities.RelationMethodName(model.OpGet, "orders")); ok {
		t.Error("expected the installed accessors to be rolled back")
	}
	if got := len(customer.Methods()); got != before {
		t.Errorf("expected %d methods, got %d", before, got)
	}
	if _, ok := customer.Method(custom); !ok {
		t.Error("expected the pre-existing method to survive")
	}
}

func TestBuilder_ForeignKeyConventions(t *testing.T) {
	env := newTestEnv(t)
	customer := env.define("Customer")
	account := env.define("Account")
	address := env.define("Address")

	tests := []struct {
		name   string
		kind   entities.RelationKind
		target *model.Model
		params entities.RelationParams
		want   string
		key    func(*entities.RelationDefinition) string
	}{
		{name: "hasMany", kind: entities.HasMany, target: account, params: entities.RelationParams{Name: "accounts"}, want: "customerId"},
		{name: "hasMany polymorphic", kind: entities.HasMany, target: account, params: entities.RelationParams{Name: "owned", Polymorphic: "owner"}, want: "ownerId"},
		{name: "belongsTo", kind: entities.BelongsTo, target: account, params: entities.RelationParams{Name: "primary"}, want: "primaryId"},
		{name: "referencesMany", kind: entities.ReferencesMany, target: account, params: entities.RelationParams{Name: "linkedAccounts"}, want: "linkedAccountIds"},
		{name: "explicit key", kind: entities.HasOne, target: account, params: entities.RelationParams{Name: "main", ForeignKey: "mainOwner"}, want: "mainOwner"},
		{
			name: "embedsOne property", kind: entities.EmbedsOne, target: address, params: entities.RelationParams{Name: "billing"}, want: "billing",
			key: func(d *entities.RelationDefinition) string { return d.Property },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := env.relate(customer, tt.kind, tt.target, tt.params)
			key := def.ForeignKey
			if tt.key != nil {
				key = tt.key(def)
			}
			if key != tt.want {
				t.Errorf("expected %s, got %s", tt.want, key)
			}
		})
	}
}
