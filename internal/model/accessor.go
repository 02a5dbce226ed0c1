package model

import (
	"context"

	"github.com/asakaida/remotemodel/internal/entities"
)

// Relation accessor operations. Each is installed as prototype.__<op>__<relation>.
const (
	OpGet         = "get"
	OpCreate      = "create"
	OpCount       = "count"
	OpFindByID    = "findById"
	OpDestroyByID = "destroyById"
	OpDelete      = "delete"
	OpLink        = "link"
	OpUnlink      = "unlink"
)

// RelationAccessor calls the accessor methods of one relation on one instance.
// Operations the relation kind does not install fail with ErrMethodNotFound.
type RelationAccessor struct {
	inst   *Instance
	def    *entities.RelationDefinition
	target *Model
}

// Definition returns the relation definition
func (a *RelationAccessor) Definition() *entities.RelationDefinition {
	return a.def
}

// Target returns the related model
func (a *RelationAccessor) Target() *Model {
	return a.target
}

// Get returns the related instances of a to-many relation
func (a *RelationAccessor) Get(ctx context.Context, filter *entities.Filter) ([]*Instance, error) {
	result, err := a.call(ctx, OpGet, Args{"filter": filter})
	if err != nil {
		return nil, err
	}
	records, err := ToRecords(result)
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, 0, len(records))
	for _, rec := range records {
		out = append(out, a.target.NewInstance(rec))
	}
	return out, nil
}

// GetOne returns the related instance of a to-one relation, or nil
func (a *RelationAccessor) GetOne(ctx context.Context) (*Instance, error) {
	return a.one(ctx, OpGet, Args{})
}

// Create creates a related instance with the relation's keys filled in
func (a *RelationAccessor) Create(ctx context.Context, data entities.Record) (*Instance, error) {
	return a.one(ctx, OpCreate, Args{"data": data})
}

// Count returns the number of related instances matching where
func (a *RelationAccessor) Count(ctx context.Context, where map[string]interface{}) (int, error) {
	result, err := a.call(ctx, OpCount, Args{"where": where})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

// FindByID returns the related instance with the given id, or nil
func (a *RelationAccessor) FindByID(ctx context.Context, fk interface{}) (*Instance, error) {
	return a.one(ctx, OpFindByID, Args{"fk": fk})
}

// DestroyByID deletes the related instance with the given id
func (a *RelationAccessor) DestroyByID(ctx context.Context, fk interface{}) (int, error) {
	result, err := a.call(ctx, OpDestroyByID, Args{"fk": fk})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

// Delete deletes every related instance
func (a *RelationAccessor) Delete(ctx context.Context) (int, error) {
	result, err := a.call(ctx, OpDelete, Args{})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

// Link associates an existing target instance and returns it
func (a *RelationAccessor) Link(ctx context.Context, fk interface{}) (*Instance, error) {
	return a.one(ctx, OpLink, Args{"fk": fk})
}

// Unlink removes the association with a target instance
func (a *RelationAccessor) Unlink(ctx context.Context, fk interface{}) (int, error) {
	result, err := a.call(ctx, OpUnlink, Args{"fk": fk})
	if err != nil {
		return 0, err
	}
	return ToInt(result)
}

func (a *RelationAccessor) call(ctx context.Context, op string, args Args) (interface{}, error) {
	return a.inst.Invoke(ctx, a.def.MethodName(op), args)
}

func (a *RelationAccessor) one(ctx context.Context, op string, args Args) (*Instance, error) {
	result, err := a.call(ctx, op, args)
	if err != nil {
		return nil, err
	}
	rec, err := ToRecord(result)
	if err != nil || rec == nil {
		return nil, err
	}
	return a.target.NewInstance(rec), nil
}
