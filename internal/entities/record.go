package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is the stored form of a model instance: property name to value
type Record map[string]interface{}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every key of patch into the record
func (r Record) Merge(patch Record) {
	for k, v := range patch {
		r[k] = v
	}
}

// NormalizeID converts an id into its canonical Go form.
// Integral numbers of any numeric type become int64 so that ids which
// crossed the wire as doubles compare equal to locally generated ones.
func NormalizeID(id interface{}) interface{} {
	switch v := id.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	}
	return id
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// IDKey returns the string key an id is stored under
func IDKey(id interface{}) string {
	switch v := NormalizeID(id).(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// IsEmptyID reports whether an id is absent
func IsEmptyID(id interface{}) bool {
	if id == nil {
		return true
	}
	if s, ok := id.(string); ok {
		return s == ""
	}
	return false
}

// EncodeRecord serializes a record for storage
func EncodeRecord(r Record) ([]byte, error) {
	if r == nil {
		r = Record{}
	}
	return json.Marshal(r)
}

// DecodeRecord parses a stored record. Numbers decode as float64 except the
// id property, which is normalized.
func DecodeRecord(data []byte, idProp string) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if r == nil {
		r = Record{}
	}
	if id, ok := r[idProp]; ok {
		r[idProp] = NormalizeID(id)
	}
	return r, nil
}
