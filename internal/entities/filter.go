package entities

import (
	"fmt"
	"strings"
)

// Filter is a query over a model's records
// Example: {where: {age: {gt: 99}}, include: ["related"], order: ["age DESC"], limit: 10}
type Filter struct {
	Where   map[string]interface{}
	Include []string
	Order   []string
	Fields  []string
	Limit   int
	Skip    int
}

// ToMap converts the filter into its wire form
func (f *Filter) ToMap() map[string]interface{} {
	if f == nil {
		return nil
	}
	out := make(map[string]interface{})
	if len(f.Where) > 0 {
		out["where"] = f.Where
	}
	if len(f.Include) > 0 {
		out["include"] = toInterfaceSlice(f.Include)
	}
	if len(f.Order) > 0 {
		out["order"] = toInterfaceSlice(f.Order)
	}
	if len(f.Fields) > 0 {
		out["fields"] = toInterfaceSlice(f.Fields)
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	if f.Skip > 0 {
		out["skip"] = f.Skip
	}
	return out
}

// FilterFromMap parses the wire form of a filter.
// include, order and fields accept either a single string or a list.
func FilterFromMap(m map[string]interface{}) (*Filter, error) {
	if m == nil {
		return nil, nil
	}
	f := &Filter{}
	for key, raw := range m {
		switch key {
		case "where":
			if raw == nil {
				continue
			}
			where, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("filter where: expected object, got %T", raw)
			}
			f.Where = where
		case "include":
			list, err := stringList(raw)
			if err != nil {
				return nil, fmt.Errorf("filter include: %w", err)
			}
			f.Include = list
		case "order":
			list, err := stringList(raw)
			if err != nil {
				return nil, fmt.Errorf("filter order: %w", err)
			}
			f.Order = list
		case "fields":
			list, err := stringList(raw)
			if err != nil {
				return nil, fmt.Errorf("filter fields: %w", err)
			}
			f.Fields = list
		case "limit":
			n, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("filter limit: %w", err)
			}
			f.Limit = n
		case "skip", "offset":
			n, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("filter skip: %w", err)
			}
			f.Skip = n
		default:
			return nil, fmt.Errorf("unknown filter key: %s", key)
		}
	}
	return f, nil
}

// HasInclude reports whether the filter includes the named relation
func (f *Filter) HasInclude(name string) bool {
	if f == nil {
		return false
	}
	for _, inc := range f.Include {
		if inc == name {
			return true
		}
	}
	return false
}

// WithoutInclude returns a copy of the filter that includes nothing
func (f *Filter) WithoutInclude() *Filter {
	if f == nil {
		return nil
	}
	c := *f
	c.Include = nil
	return &c
}

// OrderClause is a parsed element of Filter.Order
type OrderClause struct {
	Property   string
	Descending bool
}

// ParseOrder parses "prop", "prop ASC" and "prop DESC" order entries
func ParseOrder(order []string) ([]OrderClause, error) {
	clauses := make([]OrderClause, 0, len(order))
	for _, o := range order {
		parts := strings.Fields(o)
		switch len(parts) {
		case 1:
			clauses = append(clauses, OrderClause{Property: parts[0]})
		case 2:
			switch strings.ToUpper(parts[1]) {
			case "ASC":
				clauses = append(clauses, OrderClause{Property: parts[0]})
			case "DESC":
				clauses = append(clauses, OrderClause{Property: parts[0], Descending: true})
			default:
				return nil, fmt.Errorf("invalid order direction %q in %q", parts[1], o)
			}
		default:
			return nil, fmt.Errorf("invalid order clause: %q", o)
		}
	}
	return clauses, nil
}

func stringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", raw)
	}
}

func toInt(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
