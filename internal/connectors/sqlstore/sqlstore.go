// Package sqlstore stores model records as JSON documents in a SQL database.
// Postgres (lib/pq) and sqlite (ncruces/go-sqlite3) share one table layout,
// model_records(model, id, data), created by the database package.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/infrastructure/database"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/google/uuid"
)

// Connector implements model.Connector on a database.DB
type Connector struct {
	db     *database.DB
	engine *filter.Engine
	newID  func() string

	mu   sync.RWMutex
	defs map[string]*entities.ModelDefinition
}

// Option configures a Connector
type Option func(*Connector)

// WithEngine sets the filter engine where clauses are evaluated with
func WithEngine(e *filter.Engine) Option {
	return func(c *Connector) {
		c.engine = e
	}
}

// WithIDGenerator replaces the uuid generator used for records created without an id
func WithIDGenerator(fn func() string) Option {
	return func(c *Connector) {
		c.newID = fn
	}
}

// New creates a connector. The model_records table must exist; see
// database.DB.RunMigrations.
func New(db *database.DB, opts ...Option) (*Connector, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	c := &Connector{
		db:    db,
		newID: uuid.NewString,
		defs:  make(map[string]*entities.ModelDefinition),
	}
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

// Name returns the dialect the connector talks to
func (c *Connector) Name() string {
	return string(c.db.Dialect)
}

// Define registers a model's schema
func (c *Connector) Define(def *entities.ModelDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.Name] = def
	return nil
}

func (c *Connector) idProperty(modelName string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[modelName]
	if !ok {
		return "", fmt.Errorf("%w: model %s is not defined on %s", model.ErrNotFound, modelName, c.Name())
	}
	return def.IDProperty(), nil
}

// Create inserts a new record. Records without an id get a uuid.
func (c *Connector) Create(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}

	rec := data.Clone()
	if rec == nil {
		rec = entities.Record{}
	}
	if entities.IsEmptyID(rec[idProp]) {
		rec[idProp] = c.newID()
	}
	rec[idProp] = entities.NormalizeID(rec[idProp])

	var out entities.Record
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.get(ctx, tx, modelName, idProp, rec[idProp])
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s with id %s already exists", model.ErrInvalid, modelName, entities.IDKey(rec[idProp]))
		}
		if err := c.insert(ctx, tx, modelName, rec[idProp], rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.roundTrip(out, idProp)
}

// Upsert merges data into the record with the same id, creating it when absent
func (c *Connector) Upsert(ctx context.Context, modelName string, data entities.Record) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	if entities.IsEmptyID(data[idProp]) {
		return c.Create(ctx, modelName, data)
	}
	id := entities.NormalizeID(data[idProp])

	var out entities.Record
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := c.get(ctx, tx, modelName, idProp, id)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = entities.Record{}
			rec.Merge(data)
			rec[idProp] = id
			out = rec
			return c.insert(ctx, tx, modelName, id, rec)
		}
		rec.Merge(data)
		rec[idProp] = id
		out = rec
		return c.update(ctx, tx, modelName, id, rec)
	})
	if err != nil {
		return nil, err
	}
	return c.roundTrip(out, idProp)
}

// FindByID returns the record with the given id, or nil
func (c *Connector) FindByID(ctx context.Context, modelName string, id interface{}) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.db, modelName, idProp, id)
}

// Find returns the records matching f in insertion order unless f orders them
func (c *Connector) Find(ctx context.Context, modelName string, f *entities.Filter) ([]entities.Record, error) {
	records, err := c.all(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return c.engine.Apply(ctx, records, f)
}

// Count returns the number of records matching where
func (c *Connector) Count(ctx context.Context, modelName string, where map[string]interface{}) (int, error) {
	records, err := c.all(ctx, modelName)
	if err != nil {
		return 0, err
	}
	return c.engine.Count(ctx, records, where)
}

// UpdateAttributes merges data into an existing record. The id is never changed.
func (c *Connector) UpdateAttributes(ctx context.Context, modelName string, id interface{}, data entities.Record) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	id = entities.NormalizeID(id)

	var out entities.Record
	err = c.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := c.get(ctx, tx, modelName, idProp, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s with id %s", model.ErrNotFound, modelName, entities.IDKey(id))
		}
		for k, v := range data {
			if k != idProp {
				rec[k] = v
			}
		}
		out = rec
		return c.update(ctx, tx, modelName, id, rec)
	})
	if err != nil {
		return nil, err
	}
	return c.roundTrip(out, idProp)
}

// DeleteByID removes the record with the given id and returns the number removed
func (c *Connector) DeleteByID(ctx context.Context, modelName string, id interface{}) (int, error) {
	if _, err := c.idProperty(modelName); err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx,
		c.db.Rebind(`DELETE FROM model_records WHERE model = ? AND id = ?`),
		modelName, entities.IDKey(id),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", modelName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", modelName, err)
	}
	return int(n), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (c *Connector) get(ctx context.Context, q queryer, modelName, idProp string, id interface{}) (entities.Record, error) {
	var data []byte
	err := q.QueryRowContext(ctx,
		c.db.Rebind(`SELECT data FROM model_records WHERE model = ? AND id = ?`),
		modelName, entities.IDKey(id),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelName, err)
	}
	return entities.DecodeRecord(data, idProp)
}

func (c *Connector) all(ctx context.Context, modelName string) ([]entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		c.db.Rebind(`SELECT data FROM model_records WHERE model = ? ORDER BY seq`),
		modelName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", modelName, err)
	}
	defer rows.Close()

	records := []entities.Record{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", modelName, err)
		}
		rec, err := entities.DecodeRecord(data, idProp)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", modelName, err)
	}
	return records, nil
}

func (c *Connector) insert(ctx context.Context, tx *sql.Tx, modelName string, id interface{}, rec entities.Record) error {
	data, err := entities.EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrInvalid, modelName, err)
	}
	_, err = tx.ExecContext(ctx,
		c.db.Rebind(`INSERT INTO model_records (model, id, data) VALUES (?, ?, ?)`),
		modelName, entities.IDKey(id), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", modelName, err)
	}
	return nil
}

func (c *Connector) update(ctx context.Context, tx *sql.Tx, modelName string, id interface{}, rec entities.Record) error {
	data, err := entities.EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrInvalid, modelName, err)
	}
	_, err = tx.ExecContext(ctx,
		c.db.Rebind(`UPDATE model_records SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE model = ? AND id = ?`),
		string(data), modelName, entities.IDKey(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", modelName, err)
	}
	return nil
}

func (c *Connector) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// roundTrip returns rec as it reads back from storage, so that writes and
// reads yield the same value types
func (c *Connector) roundTrip(rec entities.Record, idProp string) (entities.Record, error) {
	data, err := entities.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return entities.DecodeRecord(data, idProp)
}
