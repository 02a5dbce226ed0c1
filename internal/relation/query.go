package relation

import (
	"context"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
)

// and combines where clauses, skipping empty ones
func and(clauses ...map[string]interface{}) map[string]interface{} {
	parts := make([]interface{}, 0, len(clauses))
	for _, c := range clauses {
		if len(c) > 0 {
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0].(map[string]interface{})
	}
	return map[string]interface{}{"and": parts}
}

// scoped returns a copy of f whose where clause also requires the given clauses
func scoped(f *entities.Filter, clauses ...map[string]interface{}) *entities.Filter {
	out := &entities.Filter{}
	if f != nil {
		*out = *f
	}
	out.Where = and(append(clauses, out.Where)...)
	return out
}

// Target queries go through the target's method table so that the target's
// own bindings apply.

func find(ctx context.Context, m *model.Model, f *entities.Filter) ([]entities.Record, error) {
	result, err := m.Invoke(ctx, model.MethodFind, nil, model.Args{"filter": f})
	if err != nil {
		return nil, err
	}
	records, err := model.ToRecords(result)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []entities.Record{}
	}
	return records, nil
}

func findOne(ctx context.Context, m *model.Model, where map[string]interface{}) (entities.Record, error) {
	result, err := m.Invoke(ctx, model.MethodFindOne, nil, model.Args{"filter": &entities.Filter{Where: where}})
	if err != nil {
		return nil, err
	}
	return model.ToRecord(result)
}

func count(ctx context.Context, m *model.Model, where map[string]interface{}) (int, error) {
	result, err := m.Invoke(ctx, model.MethodCount, nil, model.Args{"where": where})
	if err != nil {
		return 0, err
	}
	return model.ToInt(result)
}

func create(ctx context.Context, m *model.Model, data entities.Record) (entities.Record, error) {
	result, err := m.Invoke(ctx, model.MethodCreate, nil, model.Args{"data": data})
	if err != nil {
		return nil, err
	}
	return model.ToRecord(result)
}

func deleteByID(ctx context.Context, m *model.Model, id interface{}) (int, error) {
	result, err := m.Invoke(ctx, model.MethodDeleteByID, nil, model.Args{"id": id})
	if err != nil {
		return 0, err
	}
	return model.ToInt(result)
}
