package repository

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-ports/ports"
)

// Predicate narrows a select query.
type Predicate func(q *bun.SelectQuery) *bun.SelectQuery

// FilterMode decides what List does with conditions that fail to build.
type FilterMode int

const (
	// Lenient skips invalid conditions and logs a diagnostic.
	Lenient FilterMode = iota
	// Strict fails the List call on the first invalid condition.
	Strict
)

// ParseFilterMode maps "lenient" and "strict" to a FilterMode.
func ParseFilterMode(s string) (FilterMode, error) {
	switch s {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return Lenient, fmt.Errorf("unknown filter mode %q", s)
}

// Evaluator translates filter conditions into predicates against a registry.
// It performs no I/O.
type Evaluator struct {
	registry *Registry
}

func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Build translates a single condition.
func (e *Evaluator) Build(c ports.FilterCondition) (Predicate, error) {
	field, ok := e.registry.Lookup(c.Attribute)
	if !ok {
		return nil, unknownAttributeError(c.Attribute)
	}
	col := bun.Ident(field.Name)

	switch c.Operator {
	case ports.OpEq, ports.OpNe:
		if c.Value == nil {
			expr := "?TableAlias.? IS NULL"
			if c.Operator == ports.OpNe {
				expr = "?TableAlias.? IS NOT NULL"
			}
			return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where(expr, col) }, nil
		}
		v, err := coerceScalar(field, c.Operator, c.Value)
		if err != nil {
			return nil, err
		}
		expr := "?TableAlias.? = ?"
		if c.Operator == ports.OpNe {
			expr = "?TableAlias.? <> ?"
		}
		return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where(expr, col, v) }, nil

	case ports.OpGt, ports.OpGte, ports.OpLt, ports.OpLte:
		if c.Value == nil {
			return nil, invalidValueError(field.Name, c.Operator, "value is required")
		}
		v, err := coerceScalar(field, c.Operator, c.Value)
		if err != nil {
			return nil, err
		}
		expr := "?TableAlias.? " + comparison[c.Operator] + " ?"
		return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where(expr, col, v) }, nil

	case ports.OpLike, ports.OpILike:
		if field.Kind != KindText {
			return nil, invalidValueError(field.Name, c.Operator, "attribute is not text")
		}
		pattern, ok := c.Value.(string)
		if !ok {
			return nil, invalidValueError(field.Name, c.Operator, "pattern must be a string")
		}
		if c.Operator == ports.OpLike {
			return func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("?TableAlias.? LIKE ?", col, pattern)
			}, nil
		}
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.?) LIKE LOWER(?)", col, pattern)
		}, nil

	case ports.OpIn, ports.OpNotIn:
		values, err := coerceList(field, c.Operator, c.Value)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			if c.Operator == ports.OpIn {
				return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where("1 = 0") }, nil
			}
			return func(q *bun.SelectQuery) *bun.SelectQuery { return q }, nil
		}
		expr := "?TableAlias.? IN (?)"
		if c.Operator == ports.OpNotIn {
			expr = "?TableAlias.? NOT IN (?)"
		}
		return func(q *bun.SelectQuery) *bun.SelectQuery { return q.Where(expr, col, bun.In(values)) }, nil
	}

	return nil, unsupportedOperatorError(c.Operator)
}

// BuildAll translates every condition in filters. In Lenient mode failing
// conditions are reported to onSkip and dropped; in Strict mode the first
// failure is returned.
func (e *Evaluator) BuildAll(filters ports.FilterList, mode FilterMode, onSkip func(ports.FilterCondition, error)) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(filters))
	for _, c := range filters {
		p, err := e.Build(c)
		if err != nil {
			if mode == Strict {
				return nil, err
			}
			if onSkip != nil {
				onSkip(c, err)
			}
			continue
		}
		preds = append(preds, p)
	}
	return preds, nil
}

var comparison = map[ports.Operator]string{
	ports.OpGt:  ">",
	ports.OpGte: ">=",
	ports.OpLt:  "<",
	ports.OpLte: "<=",
}

func coerceList(field Field, op ports.Operator, value any) ([]any, error) {
	if value == nil {
		return nil, invalidValueError(field.Name, op, "expected a list")
	}
	rv := reflect.ValueOf(value)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, invalidValueError(field.Name, op, "expected a list")
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := coerceScalar(field, op, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// coerceScalar converts value to the Go type matching the column kind.
// Strings are parsed so values coming from query strings compare correctly.
func coerceScalar(field Field, op ports.Operator, value any) (any, error) {
	if value == nil {
		return nil, invalidValueError(field.Name, op, "null is not allowed here")
	}
	rv := reflect.ValueOf(value)
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array || k == reflect.Map || (k == reflect.Struct && field.Kind != KindTime) {
		return nil, invalidValueError(field.Name, op, fmt.Sprintf("unexpected %T", value))
	}

	fail := func() (any, error) {
		return nil, invalidValueError(field.Name, op, fmt.Sprintf("%v is not a valid %s", value, field.Kind))
	}

	switch field.Kind {
	case KindText:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
		return fail()

	case KindInt:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return fail()
			}
			return int64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
				return fail()
			}
			return int64(f), nil
		case reflect.String:
			n, err := strconv.ParseInt(rv.String(), 10, 64)
			if err != nil {
				return fail()
			}
			return n, nil
		}
		return fail()

	case KindFloat:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		case reflect.String:
			f, err := strconv.ParseFloat(rv.String(), 64)
			if err != nil {
				return fail()
			}
			return f, nil
		}
		return fail()

	case KindBool:
		switch rv.Kind() {
		case reflect.Bool:
			return rv.Bool(), nil
		case reflect.String:
			b, err := strconv.ParseBool(rv.String())
			if err != nil {
				return fail()
			}
			return b, nil
		}
		return fail()

	case KindTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return fail()
			}
			return t, nil
		}
		return fail()
	}
	return fail()
}
