package model

import (
	"context"

	"github.com/asakaida/remotemodel/internal/entities"
)

// Create persists a new record and returns it as an instance
func (m *Model) Create(ctx context.Context, data entities.Record) (*Instance, error) {
	return m.invokeOne(ctx, MethodCreate, Args{"data": data})
}

// Upsert creates the record or replaces the one with the same id
func (m *Model) Upsert(ctx context.Context, data entities.Record) (*Instance, error) {
	return m.invokeOne(ctx, MethodUpsert, Args{"data": data})
}

// Find returns the instances matching filter. A nil filter matches everything.
func (m *Model) Find(ctx context.Context, filter *entities.Filter) ([]*Instance, error) {
	result, err := m.Invoke(ctx, MethodFind, nil, Args{"filter": filter})
	if err != nil {
		return nil, err
	}
	records, err := ToRecords(result)
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, 0, len(records))
	for _, rec := range records {
		out = append(out, m.NewInstance(rec))
	}
	return out, nil
}

// FindByID returns the instance with the given id, or nil when it does not exist
func (m *Model) FindByID(ctx context.Context, id interface{}, filter *entities.Filter) (*Instance, error) {
	return m.invokeOne(ctx, MethodFindByID, Args{"id": id, "filter": filter})
}

// FindOne returns the first instance matching filter, or nil
func (m *Model) FindOne(ctx context.Context, filter *entities.Filter) (*Instance, error) {
	return m.invokeOne(ctx, MethodFindOne, Args{"filter": filter})
}

// Count returns the number of records matching where
func (m *Model) Count(ctx context.Context, where map[string]interface{}) (int, error) {
	result, err := m.Invoke(ctx, MethodCount, nil, Args{"where": where})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

// Exists reports whether a record with the given id exists
func (m *Model) Exists(ctx context.Context, id interface{}) (bool, error) {
	result, err := m.Invoke(ctx, MethodExists, nil, Args{"id": id})
	if err != nil {
		return false, err
	}
	return ToBool(result)
}

// DeleteByID removes the record with the given id and returns the number of deleted records
func (m *Model) DeleteByID(ctx context.Context, id interface{}) (int, error) {
	result, err := m.Invoke(ctx, MethodDeleteByID, nil, Args{"id": id})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

func (m *Model) invokeOne(ctx context.Context, name string, args Args) (*Instance, error) {
	result, err := m.Invoke(ctx, name, nil, args)
	if err != nil {
		return nil, err
	}
	rec, err := ToRecord(result)
	if err != nil || rec == nil {
		return nil, err
	}
	return m.NewInstance(rec), nil
}
