package literecord

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// KeyGeneratorUUID makes Insert fill an empty simple key with a random UUID.
const KeyGeneratorUUID = "uuid"

// Store reads and writes the records of one schema.
type Store struct {
	db       *sqlx.DB
	schema   *Schema
	compiler *Compiler

	logger   *zap.Logger
	now      func() time.Time
	pageSize uint64
}

// NewStore creates a Store for schema. The schema is expected to be
// registered with the compiler's registry so relation filters resolve.
func NewStore(db *sqlx.DB, compiler *Compiler, schema *Schema, opts ...Option) *Store {
	o := newOptions(opts)
	return &Store{
		db:       db,
		schema:   schema,
		compiler: compiler,
		logger:   o.logger.With(zap.String("schema", schema.Name)),
		now:      o.now,
		pageSize: o.pageSize,
	}
}

// Schema returns the schema the store serves.
func (s *Store) Schema() *Schema { return s.schema }

// Query compiles filters on a fresh query, joined with conj.
func (s *Store) Query(filters Filters, conj Conjunction) (*Query, error) {
	return s.compiler.Compile(s.schema, filters, nil, conj)
}

// ListQuery builds the query List runs: compiled filters, generic search,
// soft-delete exclusion, distinct, ordering, grouping and paging.
func (s *Store) ListQuery(p ListParams) (*Query, error) {
	p = p.withDefaults(s.pageSize)

	q, err := s.baseQuery(p.Filters, p.GenericSearch, p.WithDeleted)
	if err != nil {
		return nil, err
	}

	if len(p.Distinct) > 0 {
		cols, err := s.columns("distinct", p.Distinct)
		if err != nil {
			return nil, err
		}
		q.DistinctOn(cols...)
		for _, col := range cols {
			q.OrderBy(col, OrderAsc)
		}
	}
	for _, o := range p.OrderBy {
		cols, err := s.columns("order by", []string{o.Column})
		if err != nil {
			return nil, err
		}
		dir := o.Direction
		if dir == "" {
			dir = OrderAsc
		}
		if dir != OrderAsc && dir != OrderDesc {
			return nil, fmt.Errorf("%w: invalid order direction: %s", ErrInvalidParams, dir)
		}
		q.OrderBy(cols[0], dir)
	}
	if len(p.GroupBy) > 0 {
		cols, err := s.columns("group by", p.GroupBy)
		if err != nil {
			return nil, err
		}
		q.GroupBy(cols...)
	}

	return q.Offset((p.Page - 1) * p.PageSize).Limit(p.PageSize), nil
}

// CountQuery builds the query Count runs. Reserved list keys in filters
// are honoured where they affect the count (genericSearch, withDeleted)
// and ignored otherwise.
func (s *Store) CountQuery(filters Filters) (*Query, error) {
	p, err := ListParamsFromFilters(filters)
	if err != nil {
		return nil, err
	}
	return s.baseQuery(p.Filters, p.GenericSearch, p.WithDeleted)
}

func (s *Store) baseQuery(filters Filters, search string, withDeleted bool) (*Query, error) {
	q, err := s.Query(filters, ConjAnd)
	if err != nil {
		return nil, err
	}
	if search != "" {
		q = s.applySearch(q, search)
	}
	if s.schema.SoftDelete && !withDeleted {
		q.Scope(s.notDeleted())
	}
	return q, nil
}

func (s *Store) applySearch(q *Query, term string) *Query {
	if s.schema.Search != nil {
		return s.schema.Search(q, term)
	}
	if len(s.schema.SearchColumns) == 0 {
		return q
	}
	matches := make(Or, 0, len(s.schema.SearchColumns))
	for _, attr := range s.schema.SearchColumns {
		matches = append(matches, Compare(s.schema.Column(attr), OpLike, "%"+term+"%"))
	}
	return q.Scope(matches)
}

func (s *Store) notDeleted() Predicate {
	deletedAt := s.schema.Column(ColDeletedAt)
	restoredAt := s.schema.Column(ColRestoredAt)
	return Or{
		IsNull{Column: deletedAt},
		Raw{Clause: restoredAt + " >= " + deletedAt},
	}
}

func (s *Store) columns(what string, attrs []string) ([]string, error) {
	cols := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if !s.schema.HasAttribute(attr) {
			return nil, fmt.Errorf("%w: cannot %s undeclared attribute %q", ErrInvalidParams, what, attr)
		}
		cols = append(cols, s.schema.Column(attr))
	}
	return cols, nil
}

// List returns the records matching p, with the relations named in
// p.WithRelated loaded.
func (s *Store) List(ctx context.Context, p ListParams) ([]*Record, error) {
	seq, err := s.Iter(ctx, p)
	if err != nil {
		return nil, err
	}
	var records []*Record
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := s.LoadRelated(ctx, records, p.WithRelated...); err != nil {
		return nil, err
	}
	return records, nil
}

// Iter returns an iterator over the records matching p.
// The iterator yields a record and an error for each item.
func (s *Store) Iter(ctx context.Context, p ListParams) (iter.Seq2[*Record, error], error) {
	q, err := s.ListQuery(p)
	if err != nil {
		return nil, err
	}
	return s.iterQuery(ctx, s.schema, q)
}

func (s *Store) iterQuery(ctx context.Context, schema *Schema, q *Query) (iter.Seq2[*Record, error], error) {
	text, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.queryx(ctx, "list", text, args)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(*Record, error) bool) {
		defer func() {
			_ = rows.Close()
		}()

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			values, err := scanRow(rows)
			if err != nil {
				yield(nil, persistenceError("scanning row", err))
				return
			}
			if !yield(NewRecord(schema, values), nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, persistenceError("iterating rows", err))
		}
	}
	return seq, nil
}

// Count returns how many records match filters. With joins in play and a
// simple key, distinct keys are counted so joined rows are not counted
// twice.
func (s *Store) Count(ctx context.Context, filters Filters) (int64, error) {
	q, err := s.CountQuery(filters)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, q)
}

func (s *Store) count(ctx context.Context, q *Query) (int64, error) {
	var (
		text string
		args []any
		err  error
	)
	if len(q.Joins()) > 0 && !s.schema.IsComposite() {
		text, args, err = q.CountDistinctSql(s.schema.Column(s.schema.PrimaryKey()))
	} else {
		text, args, err = q.CountSql()
	}
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	text = s.conn(ctx).Rebind(text)
	s.logger.Debug("count", zap.String("sql", text), zap.Any("args", args))

	var n int64
	if err := s.conn(ctx).QueryRowxContext(ctx, text, args...).Scan(&n); err != nil {
		s.logger.Error("count failed", zap.Error(err))
		return 0, persistenceError("counting "+s.schema.Name, err)
	}
	return n, nil
}

// FindOne returns the first record matching filters, or nil when none does.
// Reserved list keys in filters (orderBy, distinct, ...) apply.
func (s *Store) FindOne(ctx context.Context, filters Filters) (*Record, error) {
	p, err := ListParamsFromFilters(filters)
	if err != nil {
		return nil, err
	}
	return s.First(ctx, p)
}

// First returns the first record List would return for p, or nil when none
// matches. Paging in p is ignored.
func (s *Store) First(ctx context.Context, p ListParams) (*Record, error) {
	p.Page, p.PageSize = 1, 1

	records, err := s.List(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// IsUnique reports whether no other record shares r's constraint
// attributes. Records are told apart by id; an unset id attribute is
// compared against 0.
func (s *Store) IsUnique(ctx context.Context, r *Record) (bool, error) {
	constraints := make(Filters, 0, len(s.schema.Constraints))
	for _, attr := range s.schema.Constraints {
		constraints = append(constraints, Param{Key: attr, Value: r.Get(attr)})
	}

	q, err := s.Query(constraints, ConjAnd)
	if err != nil {
		return false, err
	}
	for _, attr := range s.schema.ID {
		v := r.Get(attr)
		if v == nil {
			v = 0
		}
		q.Where(s.schema.Column(attr), OpNot, v)
	}

	n, err := s.count(ctx, q)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// IsPersisted reports whether exactly one row has id. For composite keys id
// is a map keyed by id attribute; a missing or nil part means false.
func (s *Store) IsPersisted(ctx context.Context, id any) (bool, error) {
	q, ok, err := s.idQuery(id)
	if err != nil || !ok {
		return false, err
	}
	n, err := s.count(ctx, q)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FindByID returns the record with id, or nil when there is none. Soft
// deleted records are returned too.
func (s *Store) FindByID(ctx context.Context, id any) (*Record, error) {
	q, ok, err := s.idQuery(id)
	if err != nil || !ok {
		return nil, err
	}
	seq, err := s.iterQuery(ctx, s.schema, q.Limit(1))
	if err != nil {
		return nil, err
	}
	for rec, err := range seq {
		return rec, err
	}
	return nil, nil
}

// idQuery matches every id attribute. ok is false when id cannot match any
// row because part of it is nil.
func (s *Store) idQuery(id any) (q *Query, ok bool, err error) {
	values, err := s.idValues(id)
	if err != nil {
		return nil, false, err
	}
	q = NewQuery(s.schema.Table)
	for _, attr := range s.schema.ID {
		v := values[attr]
		if v == nil {
			return nil, false, nil
		}
		q.Where(s.schema.Column(attr), OpEq, v)
	}
	return q, true, nil
}

func (s *Store) idValues(id any) (map[string]any, error) {
	switch v := id.(type) {
	case map[string]any:
		return v, nil
	case Filters:
		return v.Map(), nil
	}
	if s.schema.IsComposite() {
		return nil, fmt.Errorf("schema %s has a composite key, id must be a map, got %T", s.schema.Name, id)
	}
	return map[string]any{s.schema.PrimaryKey(): id}, nil
}

// Insert validates r and writes it, returning the stored row.
func (s *Store) Insert(ctx context.Context, r *Record) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	values := s.persistable(r)
	if s.schema.KeyGenerator == KeyGeneratorUUID && !s.schema.IsComposite() {
		pk := s.schema.PrimaryKey()
		if v, _ := values[pk].(string); v == "" {
			values[pk] = uuid.NewString()
		}
	}
	if s.schema.Timestamps {
		now := s.now()
		values[ColCreatedAt] = now
		values[ColUpdatedAt] = now
	}

	text, args, err := sq.Insert(s.schema.Table).SetMap(values).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert: %w", err)
	}
	return s.returning(ctx, "inserting into "+s.schema.Table, text, args)
}

// Update validates r and writes its non-key attributes, returning the
// stored row.
func (s *Store) Update(ctx context.Context, r *Record) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	values := s.persistable(r)
	for _, attr := range s.schema.ID {
		delete(values, attr)
	}
	if s.schema.Timestamps {
		values[ColUpdatedAt] = s.now()
		delete(values, ColCreatedAt)
	}
	if len(values) == 0 {
		return r, nil
	}

	where, err := s.idWhere(r)
	if err != nil {
		return nil, err
	}
	text, args, err := sq.Update(s.schema.Table).SetMap(values).Where(where).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building update: %w", err)
	}
	return s.returning(ctx, "updating "+s.schema.Table, text, args)
}

// Delete removes r. Soft-delete schemas set deleted_at and updated_at
// instead.
func (s *Store) Delete(ctx context.Context, r *Record) error {
	where, err := s.idWhere(r)
	if err != nil {
		return err
	}

	var b sq.Sqlizer
	if s.schema.SoftDelete {
		now := s.now()
		b = sq.Update(s.schema.Table).
			Set(ColDeletedAt, now).
			Set(ColUpdatedAt, now).
			Where(where)
		r.Set(ColDeletedAt, now).Set(ColUpdatedAt, now)
	} else {
		b = sq.Delete(s.schema.Table).Where(where)
	}
	return s.exec(ctx, "deleting from "+s.schema.Table, b)
}

// Restore undoes a soft delete by setting restored_at.
func (s *Store) Restore(ctx context.Context, r *Record) error {
	if !s.schema.SoftDelete {
		return fmt.Errorf("schema %s does not soft delete", s.schema.Name)
	}
	where, err := s.idWhere(r)
	if err != nil {
		return err
	}
	now := s.now()
	b := sq.Update(s.schema.Table).
		Set(ColRestoredAt, now).
		Set(ColUpdatedAt, now).
		Where(where)
	r.Set(ColRestoredAt, now).Set(ColUpdatedAt, now)
	return s.exec(ctx, "restoring "+s.schema.Table, b)
}

func (s *Store) idWhere(r *Record) (sq.Eq, error) {
	where := sq.Eq{}
	for _, attr := range s.schema.ID {
		v := r.Get(attr)
		if v == nil {
			return nil, fmt.Errorf("record of %s has no %s", s.schema.Name, attr)
		}
		where[attr] = v
	}
	return where, nil
}

// persistable returns the attributes to write: declared ones, without pivots.
func (s *Store) persistable(r *Record) map[string]any {
	values := make(map[string]any)
	for k, v := range r.attrs {
		if strings.HasPrefix(k, pivotPrefix) {
			continue
		}
		values[k] = v
	}
	return values
}

func (s *Store) returning(ctx context.Context, op, text string, args []any) (*Record, error) {
	rows, err := s.queryx(ctx, op, text, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, persistenceError(op, err)
		}
		return nil, persistenceError(op, sql.ErrNoRows)
	}
	values, err := scanRow(rows)
	if err != nil {
		return nil, persistenceError(op, err)
	}
	return NewRecord(s.schema, values), nil
}

func (s *Store) queryx(ctx context.Context, op, text string, args []any) (*sqlx.Rows, error) {
	conn := s.conn(ctx)
	text = conn.Rebind(text)
	s.logger.Debug(op, zap.String("sql", text), zap.Any("args", args))

	rows, err := conn.QueryxContext(ctx, text, args...)
	if err != nil {
		s.logger.Error(op+" failed", zap.Error(err))
		return nil, persistenceError(op, err)
	}
	return rows, nil
}

func (s *Store) exec(ctx context.Context, op string, b sq.Sqlizer) error {
	text, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building statement: %w", err)
	}
	conn := s.conn(ctx)
	text = conn.Rebind(text)
	s.logger.Debug(op, zap.String("sql", text), zap.Any("args", args))

	if _, err := conn.ExecContext(ctx, text, args...); err != nil {
		s.logger.Error(op+" failed", zap.Error(err))
		return persistenceError(op, err)
	}
	return nil
}

func scanRow(rows *sqlx.Rows) (map[string]any, error) {
	values := make(map[string]any)
	if err := rows.MapScan(values); err != nil {
		return nil, err
	}
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			values[k] = string(b)
		}
	}
	return values, nil
}

// IsNotFound reports whether err means no row was there to act on.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
