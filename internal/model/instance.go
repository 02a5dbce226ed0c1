package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/asakaida/remotemodel/internal/entities"
)

// Instance is a single record of a model
type Instance struct {
	model *Model

	mu      sync.RWMutex
	data    entities.Record
	related map[string]interface{} // *Instance or []*Instance
}

// NewInstance wraps a record. Keys naming a non-embedded relation of the
// model are moved into the related cache as instances of the target model.
func (m *Model) NewInstance(rec entities.Record) *Instance {
	inst := &Instance{
		model:   m,
		data:    make(entities.Record, len(rec)),
		related: make(map[string]interface{}),
	}
	for k, v := range rec {
		inst.data[k] = v
	}
	idProp := m.IDProperty()
	if id, ok := inst.data[idProp]; ok {
		inst.data[idProp] = entities.NormalizeID(id)
	}

	for _, def := range m.Relations() {
		if def.Kind == entities.EmbedsOne || def.Kind == entities.EmbedsMany {
			continue
		}
		v, ok := inst.data[def.Name]
		if !ok {
			continue
		}
		delete(inst.data, def.Name)
		_, target, _ := m.Relation(def.Name)
		inst.related[def.Name] = relatedInstances(target, def.Kind, v)
	}
	return inst
}

func (m *Model) instanceFromRecord(rec entities.Record) *Instance {
	return m.NewInstance(rec)
}

func relatedInstances(target *Model, kind entities.RelationKind, v interface{}) interface{} {
	if kind.IsToMany() {
		records, err := ToRecords(v)
		if err != nil {
			return []*Instance{}
		}
		out := make([]*Instance, 0, len(records))
		for _, r := range records {
			out = append(out, target.NewInstance(r))
		}
		return out
	}
	rec, err := ToRecord(v)
	if err != nil || rec == nil {
		return (*Instance)(nil)
	}
	return target.NewInstance(rec)
}

// Model returns the model the instance belongs to
func (i *Instance) Model() *Model {
	return i.model
}

// ID returns the primary key value, nil when the instance is not persisted
func (i *Instance) ID() interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data[i.model.IDProperty()]
}

// Get returns a property value
func (i *Instance) Get(name string) interface{} {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data[name]
}

// Set assigns a property value locally. Call Save to persist it.
func (i *Instance) Set(name string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if name == i.model.IDProperty() {
		value = entities.NormalizeID(value)
	}
	i.data[name] = value
}

// Data returns a copy of the instance's properties
func (i *Instance) Data() entities.Record {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.Clone()
}

// Related returns the cached result of an included relation:
// *Instance for to-one relations, []*Instance for to-many relations
func (i *Instance) Related(name string) (interface{}, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.related[name]
	return v, ok
}

// RelatedList returns the cached to-many relation as a list
func (i *Instance) RelatedList(name string) []*Instance {
	v, _ := i.Related(name)
	list, _ := v.([]*Instance)
	return list
}

// Invoke calls an instance method of the model on this instance
func (i *Instance) Invoke(ctx context.Context, name string, args Args) (interface{}, error) {
	return i.model.Invoke(ctx, name, i, args)
}

// Save persists the instance. New instances are created, persisted ones upserted.
func (i *Instance) Save(ctx context.Context) error {
	method := MethodUpsert
	if entities.IsEmptyID(i.ID()) {
		method = MethodCreate
	}
	result, err := i.model.Invoke(ctx, method, nil, Args{"data": i.Data()})
	if err != nil {
		return err
	}
	return i.refresh(result)
}

// UpdateAttributes patches the given properties and persists them
func (i *Instance) UpdateAttributes(ctx context.Context, data entities.Record) error {
	result, err := i.Invoke(ctx, MethodUpdateAttributes, Args{"data": data})
	if err != nil {
		return err
	}
	return i.refresh(result)
}

// Delete removes the persisted record and returns the number of deleted records
func (i *Instance) Delete(ctx context.Context) (int, error) {
	result, err := i.Invoke(ctx, MethodDelete, nil)
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

// Relation returns the accessor of a relation declared on the instance's model
func (i *Instance) Relation(name string) (*RelationAccessor, error) {
	def, target, ok := i.model.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: relation %s is not defined on %s", ErrNotFound, name, i.model.Name())
	}
	return &RelationAccessor{inst: i, def: def, target: target}, nil
}

func (i *Instance) refresh(result interface{}) error {
	rec, err := ToRecord(result)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, i.model.Name())
	}
	fresh := i.model.NewInstance(rec)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.data = fresh.data
	for k, v := range fresh.related {
		i.related[k] = v
	}
	return nil
}
