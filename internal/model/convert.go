package model

import (
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
)

// ToRecord converts a method result into a record. nil converts to nil.
func ToRecord(v interface{}) (entities.Record, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case entities.Record:
		return r, nil
	case map[string]interface{}:
		return entities.Record(r), nil
	}
	return nil, fmt.Errorf("%w: expected a record, got %T", ErrInvalid, v)
}

// ToRecords converts a method result into a list of records
func ToRecords(v interface{}) ([]entities.Record, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []entities.Record:
		return list, nil
	case []map[string]interface{}:
		out := make([]entities.Record, len(list))
		for i, r := range list {
			out[i] = entities.Record(r)
		}
		return out, nil
	case []interface{}:
		out := make([]entities.Record, 0, len(list))
		for i, item := range list {
			r, err := ToRecord(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a list of records, got %T", ErrInvalid, v)
}

// ToInt converts a numeric method result into an int
func ToInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: expected a number, got %T", ErrInvalid, v)
}

// ToBool converts a boolean method result
func ToBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected a boolean, got %T", ErrInvalid, v)
	}
	return b, nil
}

// RecordArg reads a record argument. A missing argument yields an empty record.
func RecordArg(args Args, name string) (entities.Record, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return entities.Record{}, nil
	}
	r, err := ToRecord(v)
	if err != nil {
		return nil, fmt.Errorf("argument %s: %w", name, err)
	}
	return r, nil
}

// FilterArg reads a filter argument given either as *entities.Filter or in wire form
func FilterArg(args Args, name string) (*entities.Filter, error) {
	switch f := args[name].(type) {
	case nil:
		return nil, nil
	case *entities.Filter:
		return f, nil
	case map[string]interface{}:
		parsed, err := entities.FilterFromMap(f)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %s: %v", ErrInvalid, name, err)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("%w: argument %s: expected a filter, got %T", ErrInvalid, name, f)
	}
}

// WhereArg reads a where-clause argument
func WhereArg(args Args, name string) (map[string]interface{}, error) {
	switch w := args[name].(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return w, nil
	case entities.Record:
		return map[string]interface{}(w), nil
	default:
		return nil, fmt.Errorf("%w: argument %s: expected a where clause, got %T", ErrInvalid, name, w)
	}
}

// IDArg reads a required id argument
func IDArg(args Args, name string) (interface{}, error) {
	id := args[name]
	if entities.IsEmptyID(id) {
		return nil, fmt.Errorf("%w: argument %s is required", ErrInvalid, name)
	}
	return entities.NormalizeID(id), nil
}
