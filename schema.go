package literecord

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// RelationKind is the cardinality of a relation.
type RelationKind string

const (
	BelongsTo     RelationKind = "belongs_to"
	HasOne        RelationKind = "has_one"
	HasMany       RelationKind = "has_many"
	BelongsToMany RelationKind = "belongs_to_many"
)

// Relation declares a named link from one schema to another.
//
// Every key is optional and falls back to a naming convention, see
// Registry.Describe.
type Relation struct {
	Name   string       `yaml:"name"`
	Kind   RelationKind `yaml:"kind"`
	Target string       `yaml:"target"`

	ForeignKey       string `yaml:"foreign_key,omitempty"`
	ForeignKeyTarget string `yaml:"foreign_key_target,omitempty"`

	// Many-to-many only.
	JoinTable      string `yaml:"join_table,omitempty"`
	OtherKey       string `yaml:"other_key,omitempty"`
	OtherKeyTarget string `yaml:"other_key_target,omitempty"`
}

// Virtual computes the value of a non-persisted attribute.
type Virtual func(r *Record) any

// SearchFunc narrows a query by a free-text term.
type SearchFunc func(q *Query, term string) *Query

// Schema describes one entity: its table, keys, attributes and relations.
// A registered schema is never modified.
type Schema struct {
	Name  string   `yaml:"name"`
	Table string   `yaml:"table"`
	ID    []string `yaml:"id"`

	Visible     []string   `yaml:"visible"`
	Hidden      []string   `yaml:"hidden,omitempty"`
	Relations   []Relation `yaml:"relations,omitempty"`
	Constraints []string   `yaml:"constraints,omitempty"`

	Timestamps   bool   `yaml:"timestamps,omitempty"`
	SoftDelete   bool   `yaml:"soft_delete,omitempty"`
	KeyGenerator string `yaml:"key_generator,omitempty"`

	// Rules maps an attribute to its validation rules, e.g. "presence" or
	// "length.max=11".
	Rules map[string][]string `yaml:"rules,omitempty"`

	// SearchColumns feed the default generic search when Search is nil.
	SearchColumns []string `yaml:"search_columns,omitempty"`

	Virtuals map[string]Virtual `yaml:"-"`
	Search   SearchFunc         `yaml:"-"`
}

// Attributes returns the declared attributes, visible first then hidden.
// It is empty when none are declared.
func (s *Schema) Attributes() []string {
	if len(s.Visible) == 0 && len(s.Hidden) == 0 {
		return []string{}
	}
	attrs := make([]string, 0, len(s.Visible)+len(s.Hidden))
	attrs = append(attrs, s.Visible...)
	return append(attrs, s.Hidden...)
}

// HasAttribute reports whether attr is an attribute of s. A schema that
// declares no attributes accepts any identifier.
func (s *Schema) HasAttribute(attr string) bool {
	if len(s.Visible) == 0 && len(s.Hidden) == 0 {
		return validIdentifierRe.MatchString(attr)
	}
	return slices.Contains(s.Visible, attr) || slices.Contains(s.Hidden, attr)
}

// IsHidden reports whether attr is left out of serialized output.
func (s *Schema) IsHidden(attr string) bool {
	return slices.Contains(s.Hidden, attr)
}

// Relation returns the declaration named name.
func (s *Schema) Relation(name string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// HasRelation reports whether a relation named name is declared.
func (s *Schema) HasRelation(name string) bool {
	_, ok := s.Relation(name)
	return ok
}

// RelationNames lists the declared relations in declaration order.
func (s *Schema) RelationNames() []string {
	names := make([]string, len(s.Relations))
	for i, r := range s.Relations {
		names[i] = r.Name
	}
	return names
}

// PrimaryKey returns the single id attribute; for composite keys it
// returns the first one.
func (s *Schema) PrimaryKey() string {
	if len(s.ID) == 0 {
		return "id"
	}
	return s.ID[0]
}

// IsComposite reports whether the key spans more than one attribute.
func (s *Schema) IsComposite() bool { return len(s.ID) > 1 }

// Column qualifies attr with the schema's table.
func (s *Schema) Column(attr string) string {
	return s.Table + "." + attr
}

func (s *Schema) validate() error {
	var err error
	if !validIdentifierRe.MatchString(s.Name) {
		err = multierr.Append(err, fmt.Errorf("invalid schema name: %q", s.Name))
	}
	if !validIdentifierRe.MatchString(s.Table) {
		err = multierr.Append(err, fmt.Errorf("schema %s: invalid table name: %q", s.Name, s.Table))
	}
	if len(s.ID) == 0 {
		err = multierr.Append(err, fmt.Errorf("schema %s: no id attribute", s.Name))
	}
	for _, attr := range slices.Concat(s.ID, s.Visible, s.Hidden, s.Constraints, s.SearchColumns) {
		if !validIdentifierRe.MatchString(attr) {
			err = multierr.Append(err, fmt.Errorf("schema %s: invalid attribute name: %q", s.Name, attr))
		}
	}
	for _, attr := range s.Constraints {
		if validIdentifierRe.MatchString(attr) && !s.HasAttribute(attr) {
			err = multierr.Append(err, fmt.Errorf("schema %s: constraint on undeclared attribute %q", s.Name, attr))
		}
	}
	seen := map[string]bool{}
	for _, r := range s.Relations {
		if seen[r.Name] {
			err = multierr.Append(err, fmt.Errorf("schema %s: duplicate relation %q", s.Name, r.Name))
		}
		seen[r.Name] = true
		if !validIdentifierRe.MatchString(r.Name) {
			err = multierr.Append(err, fmt.Errorf("schema %s: invalid relation name: %q", s.Name, r.Name))
		}
		switch r.Kind {
		case BelongsTo, HasOne, HasMany, BelongsToMany:
		default:
			err = multierr.Append(err, fmt.Errorf("schema %s: relation %s: unknown kind %q", s.Name, r.Name, r.Kind))
		}
		if r.Target == "" {
			err = multierr.Append(err, fmt.Errorf("schema %s: relation %s: no target", s.Name, r.Name))
		}
		for _, key := range []string{r.ForeignKey, r.ForeignKeyTarget, r.JoinTable, r.OtherKey, r.OtherKeyTarget} {
			if key != "" && !validIdentifierRe.MatchString(key) {
				err = multierr.Append(err, fmt.Errorf("schema %s: relation %s: invalid identifier %q", s.Name, r.Name, key))
			}
		}
	}
	switch s.KeyGenerator {
	case "", "uuid":
	default:
		err = multierr.Append(err, fmt.Errorf("schema %s: unknown key generator %q", s.Name, s.KeyGenerator))
	}
	for attr, rules := range s.Rules {
		for _, rule := range rules {
			if _, perr := parseRule(rule); perr != nil {
				err = multierr.Append(err, fmt.Errorf("schema %s: attribute %s: %w", s.Name, attr, perr))
			}
		}
	}
	return err
}

// Registry holds the schemas relations are resolved against.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register validates and adds schemas. All problems found are reported
// together; on error nothing is registered.
func (r *Registry) Register(schemas ...*Schema) error {
	var err error
	for _, s := range schemas {
		err = multierr.Append(err, s.validate())
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	batch := map[string]bool{}
	for _, s := range schemas {
		if _, exists := r.schemas[s.Name]; exists || batch[s.Name] {
			err = multierr.Append(err, fmt.Errorf("schema %s already registered", s.Name))
		}
		batch[s.Name] = true
	}
	if err != nil {
		return err
	}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names lists registered schema names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
