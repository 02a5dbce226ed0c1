package filter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// recordVar is the CEL variable a where clause is evaluated against
const recordVar = "r"

var operators = map[string]bool{
	"eq": true, "neq": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"inq": true, "nin": true, "between": true,
	"like": true, "nlike": true,
}

// Expression translates a where clause into a CEL boolean expression over
// the record variable.
// Example: {age: {gt: 99}} -> ("age" in r && type(r["age"]) == double && r["age"] > 99.0)
func Expression(where map[string]interface{}) (string, error) {
	if len(where) == 0 {
		return "true", nil
	}

	// Sorted keys keep the expression stable, which keeps the program cache warm.
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var (
			part string
			err  error
		)
		switch key {
		case "and", "or":
			part, err = logicalExpression(key, where[key])
		default:
			part, err = propertyExpression(key, where[key])
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinExpressions(parts, " && "), nil
}

func logicalExpression(op string, raw interface{}) (string, error) {
	clauses, ok := raw.([]interface{})
	if !ok {
		return "", fmt.Errorf("where %s: expected a list of clauses, got %T", op, raw)
	}
	parts := make([]string, 0, len(clauses))
	for i, c := range clauses {
		clause, ok := c.(map[string]interface{})
		if !ok {
			return "", fmt.Errorf("where %s: clause %d is %T, expected object", op, i, c)
		}
		expr, err := Expression(clause)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+expr+")")
	}
	if len(parts) == 0 {
		if op == "and" {
			return "true", nil
		}
		return "false", nil
	}
	sep := " && "
	if op == "or" {
		sep = " || "
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func propertyExpression(prop string, raw interface{}) (string, error) {
	cond, ok := raw.(map[string]interface{})
	if !ok || !isOperatorMap(cond) {
		return comparison(prop, "eq", raw)
	}

	ops := make([]string, 0, len(cond))
	for op := range cond {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		part, err := comparison(prop, op, cond[op])
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinExpressions(parts, " && "), nil
}

func isOperatorMap(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !operators[k] {
			return false
		}
	}
	return true
}

func comparison(prop, op string, value interface{}) (string, error) {
	field := fmt.Sprintf("%s[%s]", recordVar, strconv.Quote(prop))
	present := fmt.Sprintf("%s in %s", strconv.Quote(prop), recordVar)

	switch op {
	case "eq":
		if value == nil {
			return fmt.Sprintf("(!(%s) || %s == null)", present, field), nil
		}
		lit, err := literal(value)
		if err != nil {
			return "", fmt.Errorf("where %s: %w", prop, err)
		}
		return fmt.Sprintf("(%s && %s == %s)", present, field, lit), nil

	case "neq":
		eq, err := comparison(prop, "eq", value)
		if err != nil {
			return "", err
		}
		return "!" + eq, nil

	case "gt", "gte", "lt", "lte":
		lit, err := literal(value)
		if err != nil {
			return "", fmt.Errorf("where %s.%s: %w", prop, op, err)
		}
		celType, err := orderedType(value)
		if err != nil {
			return "", fmt.Errorf("where %s.%s: %w", prop, op, err)
		}
		return fmt.Sprintf("(%s && type(%s) == %s && %s %s %s)",
			present, field, celType, field, comparisonOperator(op), lit), nil

	case "inq", "nin":
		list, ok := value.([]interface{})
		if !ok {
			return "", fmt.Errorf("where %s.%s: expected a list, got %T", prop, op, value)
		}
		lit, err := literal(list)
		if err != nil {
			return "", fmt.Errorf("where %s.%s: %w", prop, op, err)
		}
		expr := fmt.Sprintf("(%s && %s in %s)", present, field, lit)
		if op == "nin" {
			return "!" + expr, nil
		}
		return expr, nil

	case "between":
		bounds, ok := value.([]interface{})
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("where %s.between: expected [low, high]", prop)
		}
		low, err := comparison(prop, "gte", bounds[0])
		if err != nil {
			return "", err
		}
		high, err := comparison(prop, "lte", bounds[1])
		if err != nil {
			return "", err
		}
		return "(" + low + " && " + high + ")", nil

	case "like", "nlike":
		pattern, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("where %s.%s: expected a string pattern, got %T", prop, op, value)
		}
		expr := fmt.Sprintf("(%s && type(%s) == string && %s.matches(%s))",
			present, field, field, strconv.Quote(likeToRegexp(pattern)))
		if op == "nlike" {
			return "!" + expr, nil
		}
		return expr, nil
	}

	return "", fmt.Errorf("where %s: unsupported operator %q", prop, op)
}

func comparisonOperator(op string) string {
	switch op {
	case "gt":
		return ">"
	case "gte":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}

func orderedType(value interface{}) (string, error) {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return "double", nil
	case string, time.Time:
		return "string", nil
	}
	return "", fmt.Errorf("cannot order by %T", value)
}

// literal renders a Go value as a CEL literal. Numbers are always doubles
// because records are normalized to doubles before evaluation.
func literal(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		return strconv.Quote(v), nil
	case time.Time:
		return strconv.Quote(v.UTC().Format(time.RFC3339Nano)), nil
	case int:
		return doubleLiteral(float64(v)), nil
	case int32:
		return doubleLiteral(float64(v)), nil
	case int64:
		return doubleLiteral(float64(v)), nil
	case float32:
		return doubleLiteral(float64(v)), nil
	case float64:
		return doubleLiteral(v), nil
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			lit, err := literal(item)
			if err != nil {
				return "", err
			}
			items = append(items, lit)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	}
	return "", fmt.Errorf("unsupported literal type %T", value)
}

func doubleLiteral(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Sprintf("double(%q)", strconv.FormatFloat(f, 'g', -1, 64))
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// likeToRegexp converts a SQL LIKE pattern (% and _) into an anchored regexp
func likeToRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}

func joinExpressions(parts []string, sep string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts, sep)
}
