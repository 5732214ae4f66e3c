package literecord

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Conjunction selects how a predicate attaches to the ones before it.
type Conjunction int

const (
	ConjAnd Conjunction = iota
	ConjOr
)

func (c Conjunction) String() string {
	if c == ConjOr {
		return "OR"
	}
	return "AND"
}

// OrderDirection defines the sorting direction.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// OrderBy specifies a column to sort the results by.
type OrderBy struct {
	Column    string
	Direction OrderDirection
}

// Join is a LEFT JOIN of Table on Left = Right.
type Join struct {
	Table string
	Left  string
	Right string
}

func (j Join) clause() string {
	return fmt.Sprintf("%s ON %s = %s", j.Table, j.Left, j.Right)
}

type whereClause struct {
	conj Conjunction
	pred Predicate
}

// Query accumulates the clauses of a SELECT on one table.
//
// A Query belongs to a single compilation: it is created per call and never
// stored on a Schema. Every mutator returns the receiver so clauses can be
// chained after compilation.
type Query struct {
	table      string
	columns    []string
	joins      []Join
	where      []whereClause
	scopes     []Predicate
	groupBy    []string
	orderBy    []OrderBy
	distinctOn []string
	limit      uint64
	offset     uint64
	hasLimit   bool
	hasOffset  bool
}

// NewQuery starts an empty query over table.
func NewQuery(table string) *Query {
	return &Query{table: table}
}

// Table returns the table the query selects from.
func (q *Query) Table() string { return q.table }

// Joins returns the joins added so far.
func (q *Query) Joins() []Join {
	out := make([]Join, len(q.joins))
	copy(out, q.joins)
	return out
}

// Columns replaces the selected columns. The default is "<table>.*".
func (q *Query) Columns(cols ...string) *Query {
	q.columns = append([]string(nil), cols...)
	return q
}

func (q *Query) add(conj Conjunction, p Predicate) *Query {
	q.where = append(q.where, whereClause{conj: conj, pred: p})
	return q
}

// Where adds "column op value" joined with AND.
func (q *Query) Where(column string, op Operator, value any) *Query {
	return q.add(ConjAnd, Compare(column, op, value))
}

// OrWhere adds "column op value" joined with OR.
func (q *Query) OrWhere(column string, op Operator, value any) *Query {
	return q.add(ConjOr, Compare(column, op, value))
}

// WhereNull adds "column IS NULL" joined with AND.
func (q *Query) WhereNull(column string) *Query {
	return q.add(ConjAnd, IsNull{Column: column})
}

// OrWhereNull adds "column IS NULL" joined with OR.
func (q *Query) OrWhereNull(column string) *Query {
	return q.add(ConjOr, IsNull{Column: column})
}

// WhereRaw adds a parenthesised raw fragment joined with AND.
// Empty fragments are ignored.
func (q *Query) WhereRaw(clause string, args ...any) *Query {
	if strings.TrimSpace(clause) == "" {
		return q
	}
	return q.add(ConjAnd, Raw{Clause: clause, Args: args})
}

// OrWhereRaw adds a parenthesised raw fragment joined with OR.
func (q *Query) OrWhereRaw(clause string, args ...any) *Query {
	if strings.TrimSpace(clause) == "" {
		return q
	}
	return q.add(ConjOr, Raw{Clause: clause, Args: args})
}

// WherePredicate adds any predicate joined with AND.
func (q *Query) WherePredicate(p Predicate) *Query {
	return q.add(ConjAnd, p)
}

// OrWherePredicate adds any predicate joined with OR.
func (q *Query) OrWherePredicate(p Predicate) *Query {
	return q.add(ConjOr, p)
}

func (q *Query) whereWith(conj Conjunction, column string, op Operator, value any) *Query {
	return q.add(conj, Compare(column, op, value))
}

func (q *Query) whereNullWith(conj Conjunction, column string) *Query {
	return q.add(conj, IsNull{Column: column})
}

func (q *Query) whereRawWith(conj Conjunction, clause string, args ...any) *Query {
	if conj == ConjOr {
		return q.OrWhereRaw(clause, args...)
	}
	return q.WhereRaw(clause, args...)
}

// LeftJoin adds "LEFT JOIN table ON left = right". A join identical to one
// already present is not added twice.
func (q *Query) LeftJoin(table, left, right string) *Query {
	j := Join{Table: table, Left: left, Right: right}
	for _, existing := range q.joins {
		if existing == j {
			return q
		}
	}
	q.joins = append(q.joins, j)
	return q
}

// Offset skips n rows.
func (q *Query) Offset(n uint64) *Query {
	q.offset, q.hasOffset = n, true
	return q
}

// Limit caps the result at n rows.
func (q *Query) Limit(n uint64) *Query {
	q.limit, q.hasLimit = n, true
	return q
}

// OrderBy appends a sort column.
func (q *Query) OrderBy(column string, dir OrderDirection) *Query {
	q.orderBy = append(q.orderBy, OrderBy{Column: column, Direction: dir})
	return q
}

// GroupBy appends grouping columns.
func (q *Query) GroupBy(cols ...string) *Query {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

// DistinctOn projects one row per distinct combination of cols (PostgreSQL).
func (q *Query) DistinctOn(cols ...string) *Query {
	q.distinctOn = append(q.distinctOn, cols...)
	return q
}

// Scope adds a predicate ANDed with the whole WHERE chain, whatever
// connectives the chain itself uses.
func (q *Query) Scope(p Predicate) *Query {
	q.scopes = append(q.scopes, p)
	return q
}

// HasWhere reports whether any predicate was added.
func (q *Query) HasWhere() bool { return len(q.where) > 0 || len(q.scopes) > 0 }

// whereSqlizer renders the WHERE chain in call order, like a fluent builder:
// "a AND b OR c". Predicates rendering to nothing are skipped.
type whereSqlizer []whereClause

func (w whereSqlizer) ToSql() (string, []any, error) {
	var b strings.Builder
	var args []any
	for _, c := range w {
		clause, cArgs, err := c.pred.ToSql()
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" " + c.conj.String() + " ")
		}
		b.WriteString(clause)
		args = append(args, cArgs...)
	}
	return b.String(), args, nil
}

type parenthesised struct{ sq.Sqlizer }

func (p parenthesised) ToSql() (string, []any, error) {
	text, args, err := p.Sqlizer.ToSql()
	if err != nil || text == "" {
		return text, args, err
	}
	return "(" + text + ")", args, nil
}

func (q *Query) base(columns ...string) sq.SelectBuilder {
	sb := sq.Select(columns...).From(q.table)
	for _, j := range q.joins {
		sb = sb.LeftJoin(j.clause())
	}
	if w := whereSqlizer(q.where); len(w) > 0 {
		if text, _, err := w.ToSql(); err != nil || text != "" {
			if len(q.scopes) > 0 {
				sb = sb.Where(parenthesised{w})
			} else {
				sb = sb.Where(w)
			}
		}
	}
	for _, p := range q.scopes {
		sb = sb.Where(p)
	}
	return sb
}

func (q *Query) selectBuilder() sq.SelectBuilder {
	cols := q.columns
	if len(cols) == 0 {
		cols = []string{q.table + ".*"}
	}
	sb := q.base(cols...)
	if len(q.distinctOn) > 0 {
		sb = sb.Options(fmt.Sprintf("DISTINCT ON (%s)", strings.Join(q.distinctOn, ",")))
	}
	if len(q.groupBy) > 0 {
		sb = sb.GroupBy(q.groupBy...)
	}
	for _, o := range q.orderBy {
		sb = sb.OrderBy(o.Column + " " + string(o.Direction))
	}
	if q.hasLimit {
		sb = sb.Limit(q.limit)
	}
	if q.hasOffset {
		sb = sb.Offset(q.offset)
	}
	return sb
}

// ToSql renders the SELECT with "?" placeholders.
func (q *Query) ToSql() (string, []any, error) {
	for _, o := range q.orderBy {
		if o.Direction != OrderAsc && o.Direction != OrderDesc {
			return "", nil, fmt.Errorf("invalid order direction: %s", o.Direction)
		}
	}
	return q.selectBuilder().ToSql()
}

// CountSql renders "SELECT count(*)" over the query's joins and predicates.
func (q *Query) CountSql() (string, []any, error) {
	return q.base("count(*)").ToSql()
}

// CountDistinctSql renders "SELECT count(DISTINCT cols)".
func (q *Query) CountDistinctSql(cols ...string) (string, []any, error) {
	return q.base(fmt.Sprintf("count(DISTINCT %s)", strings.Join(cols, ", "))).ToSql()
}

// WhereSql returns everything after the first " WHERE " of the rendered
// query, with its arguments. It is empty when the query has no predicates.
func (q *Query) WhereSql() (string, []any, error) {
	text, args, err := q.base(q.table + ".*").ToSql()
	if err != nil {
		return "", nil, err
	}
	_, fragment, found := strings.Cut(text, " WHERE ")
	if !found {
		return "", nil, nil
	}
	return fragment, args, nil
}

// String renders the query with its arguments inlined. It is meant for
// logs, tests and tooling, never for execution.
func (q *Query) String() string {
	text, args, err := q.ToSql()
	if err != nil {
		return "!" + err.Error()
	}
	return Inline(text, args)
}

// Inline substitutes "?" placeholders in text with SQL literals for args.
func Inline(text string, args []any) string {
	var b strings.Builder
	i := 0
	for _, r := range text {
		if r == '?' && i < len(args) {
			b.WriteString(literal(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(val)
	case []byte:
		return quote(string(val))
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", val)
	case time.Time:
		return quote(val.Format(time.RFC3339Nano))
	default:
		return quote(fmt.Sprintf("%v", val))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
