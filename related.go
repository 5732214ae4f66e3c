package literecord

import (
	"context"
	"fmt"
)

// LoadRelated fetches the named relations of records with one query per
// relation and attaches them as related payloads: a *Record for belongs_to
// and has_one, a []*Record for has_many and belongs_to_many. Many-to-many
// rows carry the join table key as a "_pivot_" attribute.
func (s *Store) LoadRelated(ctx context.Context, records []*Record, names ...string) error {
	if len(records) == 0 {
		return nil
	}
	for _, name := range names {
		if err := s.loadRelation(ctx, records, name); err != nil {
			return fmt.Errorf("loading %s.%s: %w", s.schema.Name, name, err)
		}
	}
	return nil
}

func (s *Store) loadRelation(ctx context.Context, records []*Record, name string) error {
	d, err := s.compiler.registry.Describe(s.schema, name)
	if err != nil {
		return err
	}

	var keys []any
	seen := map[string]bool{}
	for _, r := range records {
		v := r.lookup(d.ForeignKey)
		if v == nil || seen[relationKey(v)] {
			continue
		}
		seen[relationKey(v)] = true
		keys = append(keys, v)
	}

	// Column on the fetched rows holding the owner's key.
	matchAttr := d.TargetIDAttribute
	q := NewQuery(d.Target.Table)
	if d.ManyToMany {
		matchAttr = pivotPrefix + d.JoinForeignKey
		joinCol := d.JoinTable + "." + d.JoinForeignKey
		q.Columns(d.Target.Table+".*", joinCol+" AS "+matchAttr).
			LeftJoin(d.JoinTable, d.JoinTable+"."+d.JoinOtherKey, d.Target.Column(d.OtherKeyTarget)).
			Where(joinCol, OpIn, keys)
	} else {
		q.Where(d.Target.Column(d.TargetIDAttribute), OpIn, keys)
	}

	byKey := map[string][]*Record{}
	if len(keys) > 0 {
		seq, err := s.iterQuery(ctx, d.Target, q)
		if err != nil {
			return err
		}
		for rel, err := range seq {
			if err != nil {
				return err
			}
			k := relationKey(rel.lookup(matchAttr))
			byKey[k] = append(byKey[k], rel)
		}
	}

	for _, r := range records {
		matches := byKey[relationKey(r.lookup(d.ForeignKey))]
		switch d.Kind {
		case BelongsTo, HasOne:
			if len(matches) > 0 {
				r.related[name] = matches[0]
			} else {
				r.related[name] = nil
			}
		default:
			if matches == nil {
				matches = []*Record{}
			}
			r.related[name] = matches
		}
	}
	return nil
}

func relationKey(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
