package literecord

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Predicate represents a part of a query's WHERE clause.
// It's a "closed" interface, meaning only types within this package can implement it.
type Predicate interface {
	sq.Sqlizer
	isPredicate()
}

// Comparison is a Predicate comparing a column against a value (e.g. 'users.level >= 10').
type Comparison struct {
	Column   string
	Operator Operator
	Value    any
}

func (Comparison) isPredicate() {}

// ToSql renders the comparison with squirrel's expression types.
func (c Comparison) ToSql() (string, []any, error) {
	switch c.Operator {
	case OpEq, OpIn:
		return sq.Eq{c.Column: c.Value}.ToSql()
	case OpNot, OpNotIn:
		return sq.NotEq{c.Column: c.Value}.ToSql()
	case OpGTE:
		return sq.GtOrEq{c.Column: c.Value}.ToSql()
	case OpLTE:
		return sq.LtOrEq{c.Column: c.Value}.ToSql()
	case OpLike:
		return sq.Like{c.Column: c.Value}.ToSql()
	case OpMatchNoCase:
		return sq.Expr(c.Column+" ~* ?", c.Value).ToSql()
	case OpJSONContains:
		doc, err := jsonDocument(c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encoding %s value: %w", c.Column, err)
		}
		return sq.Expr(c.Column+" @> ?", doc).ToSql()
	default:
		return "", nil, fmt.Errorf("unsupported query operator: %s", c.Operator)
	}
}

// IsNull is a Predicate matching rows where Column IS NULL.
type IsNull struct {
	Column string
}

func (IsNull) isPredicate() {}

func (n IsNull) ToSql() (string, []any, error) {
	return sq.Eq{n.Column: nil}.ToSql()
}

// Raw allows for raw SQL clauses in a query, such as a spliced relation filter.
// Use with caution, as it can be a source of SQL injection if not used with parameterized queries.
type Raw struct {
	Clause string
	Args   []any
}

func (Raw) isPredicate() {}

func (r Raw) ToSql() (string, []any, error) {
	clause := strings.TrimSpace(r.Clause)
	if clause == "" {
		return "", nil, nil
	}
	return "(" + clause + ")", r.Args, nil
}

// And is a Predicate that joins multiple predicates with AND.
type And []Predicate

func (And) isPredicate() {}

func (a And) ToSql() (string, []any, error) {
	return joinPredicates(a, "AND")
}

// Or is a Predicate that joins multiple predicates with OR.
type Or []Predicate

func (Or) isPredicate() {}

func (o Or) ToSql() (string, []any, error) {
	return joinPredicates(o, "OR")
}

func joinPredicates(preds []Predicate, joiner string) (string, []any, error) {
	var clauses []string
	var allArgs []any

	for _, pred := range preds {
		clause, args, err := pred.ToSql()
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		allArgs = append(allArgs, args...)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}

	return "(" + strings.Join(clauses, " "+joiner+" ") + ")", allArgs, nil
}

// Compare builds a Comparison, coercing scalars to a one-element list for the
// set operators so that IN and NOT IN never receive a bare value.
func Compare(column string, op Operator, value any) Comparison {
	if (op == OpIn || op == OpNotIn) && !isList(value) {
		value = []any{value}
	}
	return Comparison{Column: column, Operator: op, Value: value}
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		_, isBytes := v.([]byte)
		return !isBytes
	}
	return false
}

func jsonDocument(v any) (any, error) {
	switch doc := v.(type) {
	case string, []byte:
		return v, nil
	case Filters:
		v = doc.Map()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
