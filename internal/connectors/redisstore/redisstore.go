// Package redisstore keeps model records in redis.
//
// Each model uses three keys under the configured prefix:
//
//	<prefix><model>:records  hash of id -> JSON record
//	<prefix><model>:order    sorted set of ids scored by insertion sequence
//	<prefix><model>:seq      insertion sequence counter
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/filter"
	"github.com/asakaida/remotemodel/internal/infrastructure/config"
	"github.com/asakaida/remotemodel/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ConnectorName identifies the redis connector
const ConnectorName = "redis"

const defaultKeyPrefix = "remotemodel:"

// maxTxRetries bounds optimistic transaction retries on contended keys
const maxTxRetries = 10

// Connector implements model.Connector on a redis client
type Connector struct {
	client    *redis.Client
	keyPrefix string
	engine    *filter.Engine
	newID     func() string

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

// Dial connects to the redis server described by cfg
func Dial(cfg *config.RedisConfig, opts ...Option) (*Connector, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, cfg.KeyPrefix, opts...)
}

// New creates a connector with an existing client
func New(client *redis.Client, keyPrefix string, opts ...Option) (*Connector, error) {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	c := &Connector{
		client:    client,
		keyPrefix: keyPrefix,
		newID:     uuid.NewString,
		defs:      make(map[string]*entities.ModelDefinition),
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

// Close closes the redis client
func (c *Connector) Close() error {
	return c.client.Close()
}

// Name returns the connector name
func (c *Connector) Name() string {
	return ConnectorName
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
		return "", fmt.Errorf("%w: model %s is not defined on redis", model.ErrNotFound, modelName)
	}
	return def.IDProperty(), nil
}

func (c *Connector) recordsKey(modelName string) string {
	return c.keyPrefix + modelName + ":records"
}

func (c *Connector) orderKey(modelName string) string {
	return c.keyPrefix + modelName + ":order"
}

func (c *Connector) seqKey(modelName string) string {
	return c.keyPrefix + modelName + ":seq"
}

// Create stores a new record. Records without an id get a uuid.
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
	key := entities.IDKey(rec[idProp])

	encoded, err := entities.EncodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalid, modelName, err)
	}

	// HSETNX claims the id atomically
	created, err := c.client.HSetNX(ctx, c.recordsKey(modelName), key, encoded).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", modelName, err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s with id %s already exists", model.ErrInvalid, modelName, key)
	}
	if err := c.appendOrder(ctx, modelName, key); err != nil {
		return nil, err
	}
	return entities.DecodeRecord(encoded, idProp)
}

func (c *Connector) appendOrder(ctx context.Context, modelName, key string) error {
	seq, err := c.client.Incr(ctx, c.seqKey(modelName)).Result()
	if err != nil {
		return fmt.Errorf("failed to order %s: %w", modelName, err)
	}
	if err := c.client.ZAddNX(ctx, c.orderKey(modelName), redis.Z{Score: float64(seq), Member: key}).Err(); err != nil {
		return fmt.Errorf("failed to order %s: %w", modelName, err)
	}
	return nil
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

	var created bool
	out, err := c.modify(ctx, modelName, idProp, id, func(rec entities.Record) (entities.Record, error) {
		if rec == nil {
			created = true
			rec = entities.Record{}
		}
		rec.Merge(data)
		rec[idProp] = id
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		if err := c.appendOrder(ctx, modelName, entities.IDKey(id)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateAttributes merges data into an existing record. The id is never changed.
func (c *Connector) UpdateAttributes(ctx context.Context, modelName string, id interface{}, data entities.Record) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	id = entities.NormalizeID(id)

	return c.modify(ctx, modelName, idProp, id, func(rec entities.Record) (entities.Record, error) {
		if rec == nil {
			return nil, fmt.Errorf("%w: %s with id %s", model.ErrNotFound, modelName, entities.IDKey(id))
		}
		for k, v := range data {
			if k != idProp {
				rec[k] = v
			}
		}
		return rec, nil
	})
}

// modify runs a read-modify-write of one record under WATCH
func (c *Connector) modify(ctx context.Context, modelName, idProp string, id interface{}, fn func(entities.Record) (entities.Record, error)) (entities.Record, error) {
	recordsKey := c.recordsKey(modelName)
	key := entities.IDKey(id)

	var encoded []byte
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, recordsKey, key).Bytes()
		var rec entities.Record
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to load %s: %w", modelName, err)
		default:
			if rec, err = entities.DecodeRecord(raw, idProp); err != nil {
				return err
			}
		}

		rec, err = fn(rec)
		if err != nil {
			return err
		}
		encoded, err = entities.EncodeRecord(rec)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", model.ErrInvalid, modelName, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, recordsKey, key, encoded)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := c.client.Watch(ctx, txf, recordsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return entities.DecodeRecord(encoded, idProp)
	}
	return nil, fmt.Errorf("failed to update %s: too much contention", modelName)
}

// FindByID returns the record with the given id, or nil
func (c *Connector) FindByID(ctx context.Context, modelName string, id interface{}) (entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.HGet(ctx, c.recordsKey(modelName), entities.IDKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", modelName, err)
	}
	return entities.DecodeRecord(raw, idProp)
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
	if len(where) == 0 {
		if _, err := c.idProperty(modelName); err != nil {
			return 0, err
		}
		n, err := c.client.HLen(ctx, c.recordsKey(modelName)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count %s: %w", modelName, err)
		}
		return int(n), nil
	}
	records, err := c.all(ctx, modelName)
	if err != nil {
		return 0, err
	}
	return c.engine.Count(ctx, records, where)
}

// DeleteByID removes the record with the given id and returns the number removed
func (c *Connector) DeleteByID(ctx context.Context, modelName string, id interface{}) (int, error) {
	if _, err := c.idProperty(modelName); err != nil {
		return 0, err
	}
	key := entities.IDKey(id)

	var del *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.HDel(ctx, c.recordsKey(modelName), key)
		pipe.ZRem(ctx, c.orderKey(modelName), key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", modelName, err)
	}
	return int(del.Val()), nil
}

func (c *Connector) all(ctx context.Context, modelName string) ([]entities.Record, error) {
	idProp, err := c.idProperty(modelName)
	if err != nil {
		return nil, err
	}
	keys, err := c.client.ZRange(ctx, c.orderKey(modelName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", modelName, err)
	}
	records := []entities.Record{}
	if len(keys) == 0 {
		return records, nil
	}

	values, err := c.client.HMGet(ctx, c.recordsKey(modelName), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", modelName, err)
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// deleted between the two reads
			continue
		}
		rec, err := entities.DecodeRecord([]byte(s), idProp)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
