package model

import (
	"context"
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
)

// Built-in method names
const (
	MethodCreate           = "create"
	MethodUpsert           = "upsert"
	MethodFind             = "find"
	MethodFindByID         = "findById"
	MethodFindOne          = "findOne"
	MethodCount            = "count"
	MethodExists           = "exists"
	MethodDeleteByID       = "deleteById"
	MethodUpdateAttributes = "prototype.updateAttributes"
	MethodDelete           = "prototype.delete"
)

func (m *Model) installBuiltins() error {
	builtins := []Method{
		{Name: MethodCreate, Static: true, Func: m.localCreate},
		{Name: MethodUpsert, Static: true, Func: m.localUpsert},
		{Name: MethodFind, Static: true, Func: m.localFind},
		{Name: MethodFindByID, Static: true, Func: m.localFindByID},
		{Name: MethodFindOne, Static: true, Func: m.localFindOne},
		{Name: MethodCount, Static: true, Func: m.localCount},
		{Name: MethodExists, Static: true, Func: m.localExists},
		{Name: MethodDeleteByID, Static: true, Func: m.localDeleteByID},
		{Name: MethodUpdateAttributes, Func: m.localUpdateAttributes},
		{Name: MethodDelete, Func: m.localDelete},
	}
	for _, b := range builtins {
		if err := m.InstallMethod(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) connector() Connector {
	return m.ds.Connector
}

func (m *Model) localCreate(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	data, err := RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	if err := m.validate(data, true); err != nil {
		return nil, err
	}
	return m.connector().Create(ctx, m.Name(), data.Clone())
}

func (m *Model) localUpsert(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	data, err := RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	if err := m.validate(data, true); err != nil {
		return nil, err
	}
	return m.connector().Upsert(ctx, m.Name(), data.Clone())
}

func (m *Model) localFind(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	f, err := FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	records, err := m.connector().Find(ctx, m.Name(), f.WithoutInclude())
	if err != nil {
		return nil, err
	}
	if f != nil && len(f.Include) > 0 {
		if err := m.includeRelated(ctx, records, f.Include); err != nil {
			return nil, err
		}
	}
	if records == nil {
		records = []entities.Record{}
	}
	return records, nil
}

func (m *Model) localFindByID(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	id, err := IDArg(args, "id")
	if err != nil {
		return nil, err
	}
	f, err := FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	rec, err := m.connector().FindByID(ctx, m.Name(), id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if f != nil && len(f.Include) > 0 {
		if err := m.includeRelated(ctx, []entities.Record{rec}, f.Include); err != nil {
			return nil, err
		}
	}
	if f != nil && len(f.Fields) > 0 {
		projected := make(entities.Record, len(f.Fields)+len(f.Include))
		for _, list := range [][]string{f.Fields, f.Include} {
			for _, field := range list {
				if v, ok := rec[field]; ok {
					projected[field] = v
				}
			}
		}
		rec = projected
	}
	return rec, nil
}

func (m *Model) localFindOne(ctx context.Context, inst *Instance, args Args) (interface{}, error) {
	f, err := FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	one := entities.Filter{Limit: 1}
	if f != nil {
		one = *f
		one.Limit = 1
	}
	result, err := m.localFind(ctx, inst, Args{"filter": &one})
	if err != nil {
		return nil, err
	}
	records := result.([]entities.Record)
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (m *Model) localCount(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	where, err := WhereArg(args, "where")
	if err != nil {
		return nil, err
	}
	return m.connector().Count(ctx, m.Name(), where)
}

func (m *Model) localExists(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	id, err := IDArg(args, "id")
	if err != nil {
		return nil, err
	}
	rec, err := m.connector().FindByID(ctx, m.Name(), id)
	if err != nil {
		return nil, err
	}
	return rec != nil, nil
}

func (m *Model) localDeleteByID(ctx context.Context, _ *Instance, args Args) (interface{}, error) {
	id, err := IDArg(args, "id")
	if err != nil {
		return nil, err
	}
	return m.connector().DeleteByID(ctx, m.Name(), id)
}

func (m *Model) localUpdateAttributes(ctx context.Context, inst *Instance, args Args) (interface{}, error) {
	data, err := RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	if err := m.validate(data, false); err != nil {
		return nil, err
	}
	id := inst.ID()
	if entities.IsEmptyID(id) {
		return nil, fmt.Errorf("%w: %s instance has no id", ErrInvalid, m.Name())
	}
	patch := data.Clone()
	delete(patch, m.IDProperty())
	return m.connector().UpdateAttributes(ctx, m.Name(), id, patch)
}

func (m *Model) localDelete(ctx context.Context, inst *Instance, _ Args) (interface{}, error) {
	id := inst.ID()
	if entities.IsEmptyID(id) {
		return nil, fmt.Errorf("%w: %s instance has no id", ErrInvalid, m.Name())
	}
	return m.connector().DeleteByID(ctx, m.Name(), id)
}

// includeRelated resolves each named relation for every record and nests the
// result under the relation name
func (m *Model) includeRelated(ctx context.Context, records []entities.Record, include []string) error {
	for _, name := range include {
		def, _, ok := m.Relation(name)
		if !ok {
			return fmt.Errorf("%w: relation %s is not defined on %s", ErrInvalid, name, m.Name())
		}
		getter := def.MethodName("get")
		for _, rec := range records {
			inst := m.instanceFromRecord(rec)
			related, err := m.Invoke(ctx, getter, inst, Args{})
			if err != nil {
				return fmt.Errorf("failed to include %s.%s: %w", m.Name(), name, err)
			}
			rec[name] = related
		}
	}
	return nil
}
