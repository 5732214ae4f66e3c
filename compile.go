package literecord

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Compiler turns filter lists into queries. It holds no per-call state and
// is safe for concurrent use.
type Compiler struct {
	registry *Registry
	grammar  *Grammar
	logger   *zap.Logger
}

// NewCompiler returns a compiler resolving relations against registry.
func NewCompiler(registry *Registry, opts ...Option) *Compiler {
	o := newOptions(opts)
	return &Compiler{
		registry: registry,
		grammar:  o.grammar,
		logger:   o.logger,
	}
}

// Grammar returns the suffix grammar in use.
func (c *Compiler) Grammar() *Grammar { return c.grammar }

// Compile adds the predicates filters stand for to into, joined with conj,
// and returns it. A nil into starts a fresh query on the schema's table.
//
// Keys naming a declared attribute, with or without an operator suffix,
// become comparisons on the table-qualified column; a nil value always
// becomes IS NULL. A schema declaring no attributes takes every identifier
// key as a column. Keys naming a relation with a nested filter value are
// compiled against the related schema, joined in with LEFT JOIN and spliced
// in as a raw fragment. Dotted keys such as "organization.id" are shorthand
// for a nested filter. Every other key is ignored.
func (c *Compiler) Compile(s *Schema, filters Filters, into *Query, conj Conjunction) (*Query, error) {
	if into == nil {
		into = NewQuery(s.Table)
	}
	attrs := s.Attributes()

	for _, p := range foldDotted(s, filters) {
		w := c.grammar.WhereFor(p.Key, attrs)
		nested, isObject := asFilters(p.Value)

		switch {
		case slices.Contains(attrs, w.Attr), !isObject && s.HasAttribute(w.Attr):
			column := s.Column(w.Attr)
			if p.Value == nil {
				into.whereNullWith(conj, column)
			} else {
				into.whereWith(conj, column, w.Operator, p.Value)
			}
		case isObject:
			if err := c.compileRelation(s, w.Attr, nested, into, conj); err != nil {
				return nil, err
			}
		default:
			c.logger.Debug("ignoring filter key",
				zap.String("schema", s.Name),
				zap.String("key", p.Key))
		}
	}
	return into, nil
}

func (c *Compiler) compileRelation(owner *Schema, name string, nested Filters, into *Query, conj Conjunction) error {
	d, err := c.registry.Describe(owner, name)
	if err != nil {
		return err
	}

	sub, err := c.Compile(d.Target, nested, nil, conj)
	if err != nil {
		return fmt.Errorf("compiling %s filter: %w", name, err)
	}
	fragment, args, err := sub.WhereSql()
	if err != nil {
		return fmt.Errorf("rendering %s filter: %w", name, err)
	}

	for _, j := range d.Joins(owner) {
		into.LeftJoin(j.Table, j.Left, j.Right)
	}
	for _, j := range sub.Joins() {
		into.LeftJoin(j.Table, j.Left, j.Right)
	}
	into.whereRawWith(conj, fragment, args...)
	return nil
}

// foldDotted rewrites "rel.attr" keys into nested filters on "rel", merged
// with any explicit nested filter for the same relation. The relation takes
// the position of its first occurrence. Keys whose head is not a relation of
// s are left alone.
func foldDotted(s *Schema, filters Filters) Filters {
	out := make(Filters, 0, len(filters))
	index := map[string]int{}

	merge := func(key string, more Filters) {
		if i, seen := index[key]; seen {
			existing, _ := asFilters(out[i].Value)
			out[i].Value = slices.Concat(existing, more)
			return
		}
		index[key] = len(out)
		out = append(out, Param{Key: key, Value: slices.Clone(more)})
	}

	for _, p := range filters {
		head, rest, dotted := strings.Cut(p.Key, ".")
		if dotted && rest != "" && s.HasRelation(head) {
			merge(head, Filters{{Key: rest, Value: p.Value}})
			continue
		}
		if nested, ok := asFilters(p.Value); ok {
			if _, seen := index[p.Key]; seen {
				merge(p.Key, nested)
				continue
			}
			index[p.Key] = len(out)
		}
		out = append(out, p)
	}
	return out
}
