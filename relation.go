package literecord

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// RelationDescriptor is the join geometry of a relation, derived from its
// declaration on every access.
//
// The first join is always
//
//	LEFT JOIN TargetTable ON TargetTable.TargetIDAttribute = owner.ForeignKey
//
// For many-to-many relations TargetTable is the join table and a second
// join reaches the target:
//
//	LEFT JOIN Target.Table ON Target.Table.OtherKeyTarget = JoinTable.JoinOtherKey
type RelationDescriptor struct {
	Name   string
	Kind   RelationKind
	Target *Schema

	TargetTable       string
	TargetIDAttribute string
	ForeignKey        string

	ManyToMany     bool
	JoinTable      string
	JoinForeignKey string
	JoinOtherKey   string
	OtherKeyTarget string
}

// Joins returns the joins needed to reach the relation's target from owner,
// in the order they must appear.
func (d RelationDescriptor) Joins(owner *Schema) []Join {
	joins := []Join{{
		Table: d.TargetTable,
		Left:  d.TargetTable + "." + d.TargetIDAttribute,
		Right: owner.Column(d.ForeignKey),
	}}
	if d.ManyToMany {
		joins = append(joins, Join{
			Table: d.Target.Table,
			Left:  d.Target.Column(d.OtherKeyTarget),
			Right: d.JoinTable + "." + d.JoinOtherKey,
		})
	}
	return joins
}

// Describe resolves the relation name declared on owner.
func (r *Registry) Describe(owner *Schema, name string) (RelationDescriptor, error) {
	rel, ok := owner.Relation(name)
	if !ok {
		return RelationDescriptor{}, &UnknownRelationError{Schema: owner.Name, Relation: name}
	}
	target, ok := r.Lookup(rel.Target)
	if !ok {
		return RelationDescriptor{}, &UnresolvedTargetError{Schema: owner.Name, Relation: name, Target: rel.Target}
	}

	d := RelationDescriptor{
		Name:   rel.Name,
		Kind:   rel.Kind,
		Target: target,
	}

	switch rel.Kind {
	case BelongsTo:
		d.TargetTable = target.Table
		d.TargetIDAttribute = or(rel.ForeignKeyTarget, target.PrimaryKey())
		d.ForeignKey = or(rel.ForeignKey, foreignKeyFor(target))
	case HasOne, HasMany:
		d.TargetTable = target.Table
		d.TargetIDAttribute = or(rel.ForeignKey, foreignKeyFor(owner))
		d.ForeignKey = or(rel.ForeignKeyTarget, owner.PrimaryKey())
	case BelongsToMany:
		d.ManyToMany = true
		d.JoinTable = or(rel.JoinTable, joinTableFor(owner, target))
		d.TargetTable = d.JoinTable
		d.JoinForeignKey = or(rel.ForeignKey, foreignKeyFor(owner))
		d.TargetIDAttribute = d.JoinForeignKey
		d.ForeignKey = or(rel.ForeignKeyTarget, owner.PrimaryKey())
		d.JoinOtherKey = or(rel.OtherKey, foreignKeyFor(target))
		d.OtherKeyTarget = or(rel.OtherKeyTarget, target.PrimaryKey())
	}
	return d, nil
}

// foreignKeyFor names the column other tables use to point at s:
// the singular table name plus the primary key, e.g. "organization_id".
func foreignKeyFor(s *Schema) string {
	return inflection.Singular(s.Table) + "_" + s.PrimaryKey()
}

// joinTableFor is both table names sorted and joined with "_".
func joinTableFor(a, b *Schema) string {
	tables := []string{a.Table, b.Table}
	sort.Strings(tables)
	return strings.Join(tables, "_")
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
