package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/model"
)

// ConnectorName identifies the in-memory connector
const ConnectorName = "memory"

// Connector implements model.Connector with per-model maps held in memory.
// Ids are generated per model as increasing integers.
type Connector struct {
	engine *filter.Engine

	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	def    *entities.ModelDefinition
	nextID int64
	rows   map[string]entities.Record
	order  []string // insertion order of row keys
}

// Option configures a Connector
type Option func(*Connector)

// WithEngine sets the filter engine used to evaluate queries
func WithEngine(e *filter.Engine) Option {
	return func(c *Connector) {
		c.engine = e
	}
}

// New creates an empty in-memory connector
func New(opts ...Option) (*Connector, error) {
	c := &Connector{tables: make(map[string]*table)}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		engine, err := filter.NewEngine()
		if err != nil {
			return nil, fmt.Errorf("failed to create filter engine: %w", err)
		}
		c.engine = engine
	}
	return c, nil
}

// Name returns the connector name
func (c *Connector) Name() string {
	return ConnectorName
}

// Define registers a model. Redefining a model keeps its records.
func (c *Connector) Define(def *entities.ModelDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[def.Name]; ok {
		t.def = def
		return nil
	}
	c.tables[def.Name] = &table{def: def, rows: make(map[string]entities.Record)}
	return nil
}

// Create stores a new record. A supplied id must not be in use.
func (c *Connector) Create(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(modelName)
	if err != nil {
		return nil, err
	}
	return t.create(modelName, data)
}

// Upsert merges data into the record with the same id, creating it when absent
func (c *Connector) Upsert(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(modelName)
	if err != nil {
		return nil, err
	}
	idProp := t.def.IDProperty()
	id := data[idProp]
	if entities.IsEmptyID(id) {
		return t.create(modelName, data)
	}

	id = entities.NormalizeID(id)
	key := entities.IDKey(id)
	rec, exists := t.rows[key]
	if !exists {
		rec = entities.Record{}
		t.observeID(id)
	}
	rec = rec.Clone()
	rec.Merge(data)
	rec[idProp] = id
	t.put(key, rec)
	return rec.Clone(), nil
}

// FindByID returns the record with the given id, or nil
func (c *Connector) FindByID(ctx context.Context, modelName string, id interface{}) (entities.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.table(modelName)
	if err != nil {
		return nil, err
	}
	rec, ok := t.rows[entities.IDKey(id)]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Find returns the records matching f in insertion order unless f orders them
func (c *Connector) Find(ctx context.Context, modelName string, f *entities.Filter) ([]entities.Record, error) {
	records, err := c.snapshot(modelName)
	if err != nil {
		return nil, err
	}
	return c.engine.Apply(ctx, records, f)
}

// Count returns the number of records matching where
func (c *Connector) Count(ctx context.Context, modelName string, where map[string]interface{}) (int, error) {
	records, err := c.snapshot(modelName)
	if err != nil {
		return 0, err
	}
	return c.engine.Count(ctx, records, where)
}

// UpdateAttributes merges data into an existing record
func (c *Connector) UpdateAttributes(ctx context.Context, modelName string, id interface{}, data entities.Record) (entities.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(modelName)
	if err != nil {
		return nil, err
	}
	key := entities.IDKey(id)
	rec, ok := t.rows[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s with id %s", model.ErrNotFound, modelName, key)
	}
	rec = rec.Clone()
	idProp := t.def.IDProperty()
	for k, v := range data {
		if k == idProp {
			continue
		}
		rec[k] = v
	}
	t.rows[key] = rec
	return rec.Clone(), nil
}

// DeleteByID removes the record with the given id and returns the number removed
func (c *Connector) DeleteByID(ctx context.Context, modelName string, id interface{}) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(modelName)
	if err != nil {
		return 0, err
	}
	key := entities.IDKey(id)
	if _, ok := t.rows[key]; !ok {
		return 0, nil
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

// Records returns a copy of every record stored for a model
func (c *Connector) Records(modelName string) []entities.Record {
	records, _ := c.snapshot(modelName)
	return records
}

// Reset drops every stored record but keeps model definitions
func (c *Connector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.tables {
		t.rows = make(map[string]entities.Record)
		t.order = nil
		t.nextID = 0
	}
}

func (c *Connector) snapshot(modelName string) ([]entities.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, err := c.table(modelName)
	if err != nil {
		return nil, err
	}
	out := make([]entities.Record, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, t.rows[key].Clone())
	}
	return out, nil
}

// table must be called with c.mu held
func (c *Connector) table(modelName string) (*table, error) {
	t, ok := c.tables[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: model %s is not defined on the %s connector", model.ErrNotFound, modelName, ConnectorName)
	}
	return t, nil
}

func (t *table) create(modelName string, data entities.Record) (entities.Record, error) {
	rec := data.Clone()
	if rec == nil {
		rec = entities.Record{}
	}
	idProp := t.def.IDProperty()
	id := rec[idProp]
	if entities.IsEmptyID(id) {
		t.nextID++
		id = t.nextID
	}
	id = entities.NormalizeID(id)
	key := entities.IDKey(id)
	if _, exists := t.rows[key]; exists {
		return nil, fmt.Errorf("%w: %s with id %s already exists", model.ErrInvalid, modelName, key)
	}
	t.observeID(id)
	rec[idProp] = id
	t.put(key, rec)
	return rec.Clone(), nil
}

func (t *table) put(key string, rec entities.Record) {
	if _, exists := t.rows[key]; !exists {
		t.order = append(t.order, key)
	}
	t.rows[key] = rec
}

// observeID keeps generated ids above any explicitly supplied integer id
func (t *table) observeID(id interface{}) {
	if n, ok := id.(int64); ok && n > t.nextID {
		t.nextID = n
	}
}
