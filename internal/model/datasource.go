package model

import (
	"context"
	"errors"

	"github.com/asakaida/remotemodel/internal/entities"
)

var (
	// ErrNotFound is returned when a record or model does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for malformed arguments or data
	ErrInvalid = errors.New("invalid argument")
	// ErrMethodNotFound is returned when a method is not installed on a model
	ErrMethodNotFound = errors.New("method not found")
)

// Connector is the persistence backend a data source delegates to.
// FindByID returns nil and no error when the record does not exist.
type Connector interface {
	// Name identifies the connector kind (e.g., "memory", "remote")
	Name() string

	// Define registers a model's schema with the connector
	Define(def *entities.ModelDefinition) error

	Create(ctx context.Context, model string, data entities.Record) (entities.Record, error)
	Upsert(ctx context.Context, model string, data entities.Record) (entities.Record, error)
	FindByID(ctx context.Context, model string, id interface{}) (entities.Record, error)
	Find(ctx context.Context, model string, filter *entities.Filter) ([]entities.Record, error)
	Count(ctx context.Context, model string, where map[string]interface{}) (int, error)
	UpdateAttributes(ctx context.Context, model string, id interface{}, data entities.Record) (entities.Record, error)
	DeleteByID(ctx context.Context, model string, id interface{}) (int, error)
}

// Resolver is implemented by connectors that proxy model methods elsewhere.
// Resolve rebinds every method currently installed on the model and must be
// safe to call repeatedly.
type Resolver interface {
	Resolve(m *Model) error
}

// DataSource binds a name to a connector
type DataSource struct {
	Name      string
	Connector Connector
}

// NewDataSource creates a data source backed by connector
func NewDataSource(name string, connector Connector) *DataSource {
	return &DataSource{Name: name, Connector: connector}
}

// Resolver returns the connector's resolve hook, if it has one
func (ds *DataSource) Resolver() (Resolver, bool) {
	if ds == nil || ds.Connector == nil {
		return nil, false
	}
	r, ok := ds.Connector.(Resolver)
	return r, ok
}
