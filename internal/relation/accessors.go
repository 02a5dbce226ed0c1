package relation

import (
	"context"
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/internal/model"
)

// accessors implements the accessor methods of a single relation
type accessors struct {
	builder *Builder
	def     *entities.RelationDefinition
	source  *model.Model
	target  *model.Model
}

func (a *accessors) method(op string) (model.MethodFunc, error) {
	var table map[string]model.MethodFunc
	switch a.def.Kind {
	case entities.HasMany:
		table = map[string]model.MethodFunc{
			model.OpGet:         a.ownedGet,
			model.OpCreate:      a.ownedCreate,
			model.OpCount:       a.ownedCount,
			model.OpFindByID:    a.ownedFindByID,
			model.OpDestroyByID: a.ownedDestroyByID,
			model.OpDelete:      a.ownedDelete,
		}
	case entities.BelongsTo:
		table = map[string]model.MethodFunc{
			model.OpGet: a.ownerGet,
		}
	case entities.HasOne:
		table = map[string]model.MethodFunc{
			model.OpGet:    a.singleGet,
			model.OpCreate: a.singleCreate,
		}
	case entities.HasAndBelongsToMany:
		table = map[string]model.MethodFunc{
			model.OpGet:    a.throughGet,
			model.OpCreate: a.throughCreate,
			model.OpLink:   a.throughLink,
			model.OpUnlink: a.throughUnlink,
			model.OpCount:  a.throughCount,
		}
	case entities.ReferencesMany:
		table = map[string]model.MethodFunc{
			model.OpGet:   a.referencesGet,
			model.OpCount: a.referencesCount,
		}
	case entities.EmbedsOne:
		table = map[string]model.MethodFunc{
			model.OpGet:    a.embeddedOneGet,
			model.OpCreate: a.embeddedOneCreate,
		}
	case entities.EmbedsMany:
		table = map[string]model.MethodFunc{
			model.OpGet:    a.embeddedManyGet,
			model.OpCreate: a.embeddedManyCreate,
			model.OpCount:  a.embeddedManyCount,
		}
	}
	fn, ok := table[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s operation", model.ErrInvalid, a.def.Kind, op)
	}
	return fn, nil
}

// hasMany

func (a *accessors) ownedGet(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	f, err := model.FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	return find(ctx, a.target, scoped(f, owner, a.def.Scope))
}

func (a *accessors) ownedCreate(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	data, err := model.RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	rec := data.Clone()
	for k, v := range owner {
		rec[k] = v
	}
	return create(ctx, a.target, rec)
}

func (a *accessors) ownedCount(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	where, err := model.WhereArg(args, "where")
	if err != nil {
		return nil, err
	}
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	return count(ctx, a.target, and(owner, a.def.Scope, where))
}

func (a *accessors) ownedFindByID(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	rec, err := a.ownedRecord(ctx, inst, args)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}

func (a *accessors) ownedDestroyByID(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	rec, err := a.ownedRecord(ctx, inst, args)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s.%s has no %s with id %v", model.ErrNotFound, a.def.Source, a.def.Name, a.def.Target, args["fk"])
	}
	return deleteByID(ctx, a.target, rec[a.target.IDProperty()])
}

func (a *accessors) ownedDelete(ctx context.Context, inst *model.Instance, _ model.Args) (interface{}, error) {
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	records, err := find(ctx, a.target, scoped(nil, owner, a.def.Scope))
	if err != nil {
		return nil, err
	}
	deleted := 0
	for _, rec := range records {
		n, err := deleteByID(ctx, a.target, rec[a.target.IDProperty()])
		if err != nil {
			return nil, err
		}
		deleted += n
	}
	return deleted, nil
}

func (a *accessors) ownedRecord(ctx context.Context, inst *model.Instance, args model.Args) (entities.Record, error) {
	fk, err := model.IDArg(args, "fk")
	if err != nil {
		return nil, err
	}
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	return findOne(ctx, a.target, and(owner, a.def.Scope, map[string]interface{}{a.target.IDProperty(): fk}))
}

// ownerWhere matches target records owned by inst
func (a *accessors) ownerWhere(inst *model.Instance) (map[string]interface{}, error) {
	id := inst.ID()
	if entities.IsEmptyID(id) {
		return nil, fmt.Errorf("%w: %s.%s requires a persisted %s", model.ErrInvalid, a.def.Source, a.def.Name, a.def.Source)
	}
	where := map[string]interface{}{a.def.ForeignKey: id}
	if d := discriminator(a.def); d != "" {
		where[d] = a.def.Source
	}
	return where, nil
}

// belongsTo

func (a *accessors) ownerGet(ctx context.Context, inst *model.Instance, _ model.Args) (interface{}, error) {
	fk := inst.Get(a.def.ForeignKey)
	if entities.IsEmptyID(fk) {
		return nil, nil
	}
	if d := discriminator(a.def); d != "" && inst.Get(d) != a.def.Target {
		return nil, nil
	}
	rec, err := findOne(ctx, a.target, and(map[string]interface{}{a.target.IDProperty(): entities.NormalizeID(fk)}, a.def.Scope))
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}

// hasOne

func (a *accessors) singleGet(ctx context.Context, inst *model.Instance, _ model.Args) (interface{}, error) {
	owner, err := a.ownerWhere(inst)
	if err != nil {
		return nil, err
	}
	rec, err := findOne(ctx, a.target, and(owner, a.def.Scope))
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}

func (a *accessors) singleCreate(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	existing, err := a.singleGet(ctx, inst, args)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s.%s already has a %s", model.ErrInvalid, a.def.Source, a.def.Name, a.def.Target)
	}
	return a.ownedCreate(ctx, inst, args)
}

// hasAndBelongsToMany

func (a *accessors) throughGet(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	f, err := model.FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	ids, err := a.linkedIDs(ctx, inst)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []entities.Record{}, nil
	}
	return find(ctx, a.target, scoped(f, a.idIn(ids), a.def.Scope))
}

func (a *accessors) throughCreate(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	data, err := model.RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	through, err := a.builder.lookupModel(a.def.Through)
	if err != nil {
		return nil, err
	}
	if entities.IsEmptyID(inst.ID()) {
		return nil, fmt.Errorf("%w: %s.%s requires a persisted %s", model.ErrInvalid, a.def.Source, a.def.Name, a.def.Source)
	}
	rec, err := create(ctx, a.target, data)
	if err != nil {
		return nil, err
	}
	if _, err := create(ctx, through, entities.Record{
		a.def.ForeignKey:  inst.ID(),
		throughKey(a.def): rec[a.target.IDProperty()],
	}); err != nil {
		return nil, fmt.Errorf("failed to link %s.%s: %w", a.def.Source, a.def.Name, err)
	}
	return rec, nil
}

func (a *accessors) throughLink(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	fk, err := model.IDArg(args, "fk")
	if err != nil {
		return nil, err
	}
	through, err := a.builder.lookupModel(a.def.Through)
	if err != nil {
		return nil, err
	}
	if entities.IsEmptyID(inst.ID()) {
		return nil, fmt.Errorf("%w: %s.%s requires a persisted %s", model.ErrInvalid, a.def.Source, a.def.Name, a.def.Source)
	}
	rec, err := findOne(ctx, a.target, map[string]interface{}{a.target.IDProperty(): fk})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s with id %v", model.ErrNotFound, a.def.Target, fk)
	}
	link := map[string]interface{}{a.def.ForeignKey: inst.ID(), throughKey(a.def): fk}
	existing, err := findOne(ctx, through, link)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if _, err := create(ctx, through, entities.Record(link)); err != nil {
			return nil, fmt.Errorf("failed to link %s.%s: %w", a.def.Source, a.def.Name, err)
		}
	}
	return rec, nil
}

func (a *accessors) throughUnlink(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	fk, err := model.IDArg(args, "fk")
	if err != nil {
		return nil, err
	}
	through, err := a.builder.lookupModel(a.def.Through)
	if err != nil {
		return nil, err
	}
	rows, err := find(ctx, through, &entities.Filter{Where: map[string]interface{}{
		a.def.ForeignKey:  inst.ID(),
		throughKey(a.def): fk,
	}})
	if err != nil {
		return nil, err
	}
	removed := 0
	for _, row := range rows {
		n, err := deleteByID(ctx, through, row[through.IDProperty()])
		if err != nil {
			return nil, err
		}
		removed += n
	}
	return removed, nil
}

func (a *accessors) throughCount(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	where, err := model.WhereArg(args, "where")
	if err != nil {
		return nil, err
	}
	ids, err := a.linkedIDs(ctx, inst)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return count(ctx, a.target, and(a.idIn(ids), a.def.Scope, where))
}

// linkedIDs returns the target ids joined to inst through the join model
func (a *accessors) linkedIDs(ctx context.Context, inst *model.Instance) ([]interface{}, error) {
	id := inst.ID()
	if entities.IsEmptyID(id) {
		return nil, fmt.Errorf("%w: %s.%s requires a persisted %s", model.ErrInvalid, a.def.Source, a.def.Name, a.def.Source)
	}
	through, err := a.builder.lookupModel(a.def.Through)
	if err != nil {
		return nil, err
	}
	rows, err := find(ctx, through, &entities.Filter{Where: map[string]interface{}{a.def.ForeignKey: id}})
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if v := row[throughKey(a.def)]; !entities.IsEmptyID(v) {
			ids = append(ids, entities.NormalizeID(v))
		}
	}
	return ids, nil
}

// referencesMany

func (a *accessors) referencesGet(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	f, err := model.FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	ids := referencedIDs(inst.Get(a.def.ForeignKey))
	if len(ids) == 0 {
		return []entities.Record{}, nil
	}
	records, err := find(ctx, a.target, scoped(f, a.idIn(ids), a.def.Scope))
	if err != nil {
		return nil, err
	}
	if f == nil || len(f.Order) == 0 {
		records = orderByIDs(records, ids, a.target.IDProperty())
	}
	return records, nil
}

func (a *accessors) referencesCount(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	where, err := model.WhereArg(args, "where")
	if err != nil {
		return nil, err
	}
	ids := referencedIDs(inst.Get(a.def.ForeignKey))
	if len(ids) == 0 {
		return 0, nil
	}
	return count(ctx, a.target, and(a.idIn(ids), a.def.Scope, where))
}

func referencedIDs(v interface{}) []interface{} {
	var raw []interface{}
	switch list := v.(type) {
	case []interface{}:
		raw = list
	case []string:
		for _, s := range list {
			raw = append(raw, s)
		}
	case []int64:
		for _, n := range list {
			raw = append(raw, n)
		}
	}
	ids := make([]interface{}, 0, len(raw))
	for _, id := range raw {
		if !entities.IsEmptyID(id) {
			ids = append(ids, entities.NormalizeID(id))
		}
	}
	return ids
}

func orderByIDs(records []entities.Record, ids []interface{}, idProp string) []entities.Record {
	byKey := make(map[string]entities.Record, len(records))
	for _, rec := range records {
		byKey[entities.IDKey(rec[idProp])] = rec
	}
	out := make([]entities.Record, 0, len(records))
	for _, id := range ids {
		key := entities.IDKey(id)
		if rec, ok := byKey[key]; ok {
			out = append(out, rec)
			delete(byKey, key)
		}
	}
	return out
}

// embedsOne

func (a *accessors) embeddedOneGet(_ context.Context, inst *model.Instance, _ model.Args) (interface{}, error) {
	rec, err := model.ToRecord(inst.Get(a.def.Property))
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", a.def.Source, a.def.Property, err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (a *accessors) embeddedOneCreate(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	data, err := model.RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	rec := data.Clone()
	if err := a.persistEmbedded(ctx, inst, map[string]interface{}(rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

// embedsMany

func (a *accessors) embeddedManyGet(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	f, err := model.FilterArg(args, "filter")
	if err != nil {
		return nil, err
	}
	list, err := a.embeddedList(inst)
	if err != nil {
		return nil, err
	}
	return a.builder.engine.Apply(ctx, list, f)
}

func (a *accessors) embeddedManyCreate(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	data, err := model.RecordArg(args, "data")
	if err != nil {
		return nil, err
	}
	list, err := a.embeddedList(inst)
	if err != nil {
		return nil, err
	}
	rec := data.Clone()
	idProp := a.target.IDProperty()
	if entities.IsEmptyID(rec[idProp]) {
		rec[idProp] = nextEmbeddedID(list, idProp)
	}
	stored := make([]interface{}, 0, len(list)+1)
	for _, item := range list {
		stored = append(stored, map[string]interface{}(item))
	}
	stored = append(stored, map[string]interface{}(rec))
	if err := a.persistEmbedded(ctx, inst, stored); err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *accessors) embeddedManyCount(ctx context.Context, inst *model.Instance, args model.Args) (interface{}, error) {
	where, err := model.WhereArg(args, "where")
	if err != nil {
		return nil, err
	}
	list, err := a.embeddedList(inst)
	if err != nil {
		return nil, err
	}
	return a.builder.engine.Count(ctx, list, where)
}

func (a *accessors) embeddedList(inst *model.Instance) ([]entities.Record, error) {
	list, err := model.ToRecords(inst.Get(a.def.Property))
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", a.def.Source, a.def.Property, err)
	}
	out := make([]entities.Record, 0, len(list))
	for _, rec := range list {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (a *accessors) persistEmbedded(ctx context.Context, inst *model.Instance, value interface{}) error {
	if entities.IsEmptyID(inst.ID()) {
		inst.Set(a.def.Property, value)
		return nil
	}
	if err := inst.UpdateAttributes(ctx, entities.Record{a.def.Property: value}); err != nil {
		return fmt.Errorf("failed to store %s.%s: %w", a.def.Source, a.def.Property, err)
	}
	return nil
}

func nextEmbeddedID(list []entities.Record, idProp string) int64 {
	var max int64
	for _, rec := range list {
		if n, ok := entities.NormalizeID(rec[idProp]).(int64); ok && n > max {
			max = n
		}
	}
	return max + 1
}

func (a *accessors) idIn(ids []interface{}) map[string]interface{} {
	return map[string]interface{}{a.target.IDProperty(): map[string]interface{}{"inq": ids}}
}
