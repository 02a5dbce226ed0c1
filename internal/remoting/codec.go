package remoting

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/asakaida/remotemodel/internal/entities"
	"google.golang.org/protobuf/types/known/structpb"
)

// Request is a decoded ModelService.Invoke request
type Request struct {
	Model  string
	Method string
	ID     interface{} // Instance id for prototype methods
	Args   map[string]interface{}
}

// ToStruct encodes the request
func (r *Request) ToStruct() (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		"model":  structpb.NewStringValue(r.Model),
		"method": structpb.NewStringValue(r.Method),
	}
	if !entities.IsEmptyID(r.ID) {
		id, err := ToValue(r.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
		fields["id"] = id
	}
	args, err := ToValue(r.Args)
	if err != nil {
		return nil, fmt.Errorf("invalid args: %w", err)
	}
	fields["args"] = args
	return &structpb.Struct{Fields: fields}, nil
}

// RequestFromStruct decodes a request
func RequestFromStruct(s *structpb.Struct) (*Request, error) {
	if s == nil {
		return nil, fmt.Errorf("request is required")
	}
	fields := s.GetFields()

	req := &Request{
		Model:  fields["model"].GetStringValue(),
		Method: fields["method"].GetStringValue(),
		Args:   map[string]interface{}{},
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if req.Method == "" {
		return nil, fmt.Errorf("method is required")
	}
	if v, ok := fields["id"]; ok {
		req.ID = entities.NormalizeID(FromValue(v))
	}
	if v, ok := fields["args"]; ok {
		switch args := FromValue(v).(type) {
		case nil:
		case map[string]interface{}:
			req.Args = args
		default:
			return nil, fmt.Errorf("args: expected object, got %T", args)
		}
	}
	return req, nil
}

// ResponseToStruct encodes a method result
func ResponseToStruct(result interface{}) (*structpb.Struct, error) {
	v, err := ToValue(result)
	if err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"result": v}}, nil
}

// ResultFromStruct decodes a method result
func ResultFromStruct(s *structpb.Struct) interface{} {
	v, ok := s.GetFields()["result"]
	if !ok {
		return nil
	}
	return FromValue(v)
}

// maxExactInt is the largest magnitude a float64 holds without rounding
const maxExactInt = 1 << 53

// ErrIntegerPrecision is returned for integers a protobuf number cannot carry exactly
var ErrIntegerPrecision = errors.New("integer exceeds 2^53 and would lose precision")

func intValue(v int64) (*structpb.Value, error) {
	if v > maxExactInt || v < -maxExactInt {
		return nil, fmt.Errorf("%w: %d", ErrIntegerPrecision, v)
	}
	return structpb.NewNumberValue(float64(v)), nil
}

func uintValue(v uint64) (*structpb.Value, error) {
	if v > maxExactInt {
		return nil, fmt.Errorf("%w: %d", ErrIntegerPrecision, v)
	}
	return structpb.NewNumberValue(float64(v)), nil
}

// ToValue converts a Go value into a protobuf Value.
// Integers beyond 2^53 are rejected with ErrIntegerPrecision; send such
// values as strings.
// Records, filters, integers and times are accepted in addition to the
// JSON-like types structpb.NewValue handles.
func ToValue(v interface{}) (*structpb.Value, error) {
	if v == nil {
		return structpb.NewNullValue(), nil
	}

	switch val := v.(type) {
	case *structpb.Value:
		return val, nil
	case bool:
		return structpb.NewBoolValue(val), nil
	case int:
		return intValue(int64(val))
	case int32:
		return structpb.NewNumberValue(float64(val)), nil
	case int64:
		return intValue(val)
	case uint:
		return uintValue(uint64(val))
	case uint32:
		return structpb.NewNumberValue(float64(val)), nil
	case uint64:
		return uintValue(val)
	case float32:
		return structpb.NewNumberValue(float64(val)), nil
	case float64:
		return structpb.NewNumberValue(val), nil
	case string:
		return structpb.NewStringValue(val), nil
	case time.Time:
		return structpb.NewStringValue(val.UTC().Format(time.RFC3339Nano)), nil
	case []byte:
		return structpb.NewStringValue(string(val)), nil
	case *entities.Filter:
		if val == nil {
			return structpb.NewNullValue(), nil
		}
		return ToValue(val.ToMap())
	case entities.Record:
		if val == nil {
			return structpb.NewNullValue(), nil
		}
		return mapToValue(val)
	case map[string]interface{}:
		if val == nil {
			return structpb.NewNullValue(), nil
		}
		return mapToValue(val)
	case []entities.Record:
		items := make([]interface{}, len(val))
		for i, r := range val {
			items[i] = r
		}
		return listToValue(items)
	case []interface{}:
		return listToValue(val)
	}

	// Named map and slice types (e.g. model.Args, []string)
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return structpb.NewNullValue(), nil
		}
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return mapToValue(m)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return structpb.NewListValue(&structpb.ListValue{}), nil
		}
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return listToValue(items)
	case reflect.Ptr:
		if rv.IsNil() {
			return structpb.NewNullValue(), nil
		}
		return ToValue(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("unsupported value type: %T", v)
}

func mapToValue(m map[string]interface{}) (*structpb.Value, error) {
	fields := make(map[string]*structpb.Value, len(m))
	for k, item := range m {
		pv, err := ToValue(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		fields[k] = pv
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

func listToValue(items []interface{}) (*structpb.Value, error) {
	values := make([]*structpb.Value, len(items))
	for i, item := range items {
		pv, err := ToValue(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		values[i] = pv
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
}

// FromValue converts a protobuf Value into plain Go data.
// Numbers decode as float64, objects as map[string]interface{}.
func FromValue(v *structpb.Value) interface{} {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *structpb.Value_NumberValue:
		return kind.NumberValue
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_BoolValue:
		return kind.BoolValue
	case *structpb.Value_StructValue:
		fields := kind.StructValue.GetFields()
		m := make(map[string]interface{}, len(fields))
		for k, item := range fields {
			m[k] = FromValue(item)
		}
		return m
	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]interface{}, len(values))
		for i, item := range values {
			list[i] = FromValue(item)
		}
		return list
	}
	return nil
}
