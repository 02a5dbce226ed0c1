package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/asakaida/remotemodel/internal/entities"
	"github.com/asakaida/remotemodel/pkg/cache"
	"github.com/asakaida/remotemodel/pkg/cache/memorycache"
	"github.com/google/cel-go/cel"
)

// Engine evaluates where clauses against records using CEL.
// Compiled programs are kept in a cache keyed by expression text.
type Engine struct {
	env      *cel.Env
	programs cache.Cache
	ttl      time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithProgramCache replaces the default in-memory program cache
func WithProgramCache(c cache.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.programs = c
		e.ttl = ttl
	}
}

// NewEngine creates a filter engine
func NewEngine(opts ...Option) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(recordVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, opt := range opts {
		opt(e)
	}
	if e.programs == nil {
		e.programs = memorycache.New(&memorycache.Config{MaxSizeBytes: 10 * 1024 * 1024})
	}
	return e, nil
}

// Programs returns the compiled program cache
func (e *Engine) Programs() cache.Cache {
	return e.programs
}

// Compile returns the program for a where clause
func (e *Engine) Compile(ctx context.Context, where map[string]interface{}) (cel.Program, error) {
	expr, err := Expression(where)
	if err != nil {
		return nil, err
	}

	v, err := cache.Fetch(ctx, e.programs, expr, e.ttl, func() (any, error) {
		ast, issues := e.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile where clause: %w", issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("where clause must be boolean, got: %s", ast.OutputType())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL program: %w", err)
		}
		return prg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cel.Program), nil
}

// Matcher reports whether a record satisfies a compiled where clause
type Matcher func(entities.Record) (bool, error)

// Matcher compiles a where clause into a record predicate
func (e *Engine) Matcher(ctx context.Context, where map[string]interface{}) (Matcher, error) {
	if len(where) == 0 {
		return func(entities.Record) (bool, error) { return true, nil }, nil
	}
	prg, err := e.Compile(ctx, where)
	if err != nil {
		return nil, err
	}
	return func(rec entities.Record) (bool, error) {
		out, _, err := prg.Eval(map[string]interface{}{recordVar: activation(rec)})
		if err != nil {
			return false, fmt.Errorf("failed to evaluate where clause: %w", err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("where clause did not evaluate to boolean, got: %T", out.Value())
		}
		return matched, nil
	}, nil
}

// Match evaluates a where clause against a single record
func (e *Engine) Match(ctx context.Context, where map[string]interface{}, rec entities.Record) (bool, error) {
	m, err := e.Matcher(ctx, where)
	if err != nil {
		return false, err
	}
	return m(rec)
}

// Count returns the number of records matching where
func (e *Engine) Count(ctx context.Context, records []entities.Record, where map[string]interface{}) (int, error) {
	m, err := e.Matcher(ctx, where)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range records {
		ok, err := m(rec)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Apply filters, orders, pages and projects records. Include is ignored:
// relations are resolved by the model layer, not by storage.
func (e *Engine) Apply(ctx context.Context, records []entities.Record, f *entities.Filter) ([]entities.Record, error) {
	if f == nil {
		f = &entities.Filter{}
	}

	m, err := e.Matcher(ctx, f.Where)
	if err != nil {
		return nil, err
	}
	matched := make([]entities.Record, 0, len(records))
	for _, rec := range records {
		ok, err := m(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	if err := Sort(matched, f.Order); err != nil {
		return nil, err
	}
	matched = Page(matched, f.Skip, f.Limit)
	if len(f.Fields) > 0 {
		for i, rec := range matched {
			matched[i] = Project(rec, f.Fields)
		}
	}
	return matched, nil
}

// activation normalizes a record for CEL: every number becomes a double and
// nil values are dropped so presence tests treat them as missing.
func activation(rec entities.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if v == nil {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case time.Time:
		return n.UTC().Format(time.RFC3339Nano)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, item := range n {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k, item := range n {
			out[k] = normalizeValue(item)
		}
		return out
	}
	return v
}
