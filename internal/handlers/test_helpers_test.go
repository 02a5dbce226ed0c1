package handlers

import (
	"testing"

	"github.com/asakaida/remotemodel/internal/connectors/memory"
	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
)

// Mock ModelRegistry
type mockModelRegistry struct {
	modelFunc func(name string) (*model.Model, bool)
	models    map[string]*model.Model
}

func (r *mockModelRegistry) Model(name string) (*model.Model, bool) {
	if r.modelFunc != nil {
		return r.modelFunc(name)
	}
	m, ok := r.models[name]
	return m, ok
}

// newTestModels defines TestModel on an in-memory connector
func newTestModels(t *testing.T) (*mockModelRegistry, *memory.Connector) {
	t.Helper()

	conn, err := memory.New()
	if err != nil {
		t.Fatalf("failed to create memory connector: %v", err)
	}
	ds := model.NewDataSource("db", conn)
	m, err := model.New(&entities.ModelDefinition{
		Name: "TestModel",
		Properties: []*entities.Property{
			{Name: "first", Type: "string"},
			{Name: "last", Type: "string"},
			{Name: "age", Type: "number"},
		},
	}, ds)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	return &mockModelRegistry{models: map[string]*model.Model{"TestModel": m}}, conn
}
