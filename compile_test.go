package literecord_test

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dir01/literecord"
)

func compileString(t *testing.T, c *literecord.Compiler, s *literecord.Schema, f literecord.Filters, conj literecord.Conjunction) string {
	t.Helper()
	q, err := c.Compile(s, f, nil, conj)
	require.NoError(t, err)
	return q.String()
}

func TestCompiler_Compile(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")
	events := lookup(t, reg, "events")

	tests := []struct {
		name    string
		schema  *literecord.Schema
		filters literecord.Filters
		conj    literecord.Conjunction
		want    string
	}{
		{
			name:    "no filters",
			schema:  gc,
			filters: nil,
			want:    "SELECT generic_classes.* FROM generic_classes",
		},
		{
			name:    "like and in",
			schema:  gc,
			filters: literecord.F("name_like", "%ann%", "role_in", 1),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name LIKE '%ann%' AND generic_classes.role IN (1)",
		},
		{
			name:    "scalar and single element list are the same for in",
			schema:  gc,
			filters: literecord.F("role_in", []any{1}),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role IN (1)",
		},
		{
			name:    "not in with a list",
			schema:  gc,
			filters: literecord.F("role_not_in", []any{1, 2}),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role NOT IN (1,2)",
		},
		{
			name:    "not",
			schema:  gc,
			filters: literecord.F("id_not", 5),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.id <> 5",
		},
		{
			name:    "range",
			schema:  gc,
			filters: literecord.F("role_start", 2, "role_end", 4),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role >= 2 AND generic_classes.role <= 4",
		},
		{
			name:    "case insensitive match",
			schema:  gc,
			filters: literecord.F("name_likeIgnoreCase", "^ann"),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name ~* '^ann'",
		},
		{
			name:    "nil is null whatever the operator",
			schema:  gc,
			filters: literecord.F("role_in", nil, "name_not", nil),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role IS NULL AND generic_classes.name IS NULL",
		},
		{
			name:    "unknown keys are ignored",
			schema:  gc,
			filters: literecord.F("unknownField", "x", "name", "Ann", "nope_like", "y"),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name = 'Ann'",
		},
		{
			name:    "dotted key on an unknown relation is ignored",
			schema:  gc,
			filters: literecord.F("nope.id", 1, "name", "Ann"),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name = 'Ann'",
		},
		{
			name:    "or conjunction",
			schema:  gc,
			filters: literecord.F("name", "Ann", "role", 2),
			conj:    literecord.ConjOr,
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name = 'Ann' OR generic_classes.role = 2",
		},
		{
			name:    "exact attribute wins over a suffix",
			schema:  events,
			filters: literecord.F("period_start", 5),
			want:    "SELECT events.* FROM events WHERE events.period_start = 5",
		},
		{
			name:    "suffix on an attribute that itself ends like a suffix",
			schema:  events,
			filters: literecord.F("period_start_start", 5, "period_end_end", 9),
			want:    "SELECT events.* FROM events WHERE events.period_start >= 5 AND events.period_end <= 9",
		},
		{
			name:    "quotes are escaped when inlined",
			schema:  gc,
			filters: literecord.F("name", "O'Brien"),
			want:    "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name = 'O''Brien'",
		},
		{
			name:    "belongs to",
			schema:  gc,
			filters: literecord.F("name", "Ann", "organization", literecord.F("name", "Acme")),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"WHERE generic_classes.name = 'Ann' AND (organizations.name = 'Acme')",
		},
		{
			name:    "dotted key is a nested filter",
			schema:  gc,
			filters: literecord.F("organization.name", "Acme"),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"WHERE (organizations.name = 'Acme')",
		},
		{
			name:    "dotted keys merge with the nested filter",
			schema:  gc,
			filters: literecord.F("organization", literecord.F("name", "Acme"), "organization.id", 3),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"WHERE (organizations.name = 'Acme' AND organizations.id = 3)",
		},
		{
			name:    "nested filter follows the conjunction",
			schema:  gc,
			filters: literecord.F("name", "Ann", "organization", literecord.F("name", "Acme", "id", 3)),
			conj:    literecord.ConjOr,
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"WHERE generic_classes.name = 'Ann' OR (organizations.name = 'Acme' OR organizations.id = 3)",
		},
		{
			name:    "nested map values work like Filters",
			schema:  gc,
			filters: literecord.F("organization", map[string]any{"name": "Acme"}),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"WHERE (organizations.name = 'Acme')",
		},
		{
			name:    "empty nested filter only joins",
			schema:  gc,
			filters: literecord.F("organization", literecord.F()),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id",
		},
		{
			name:    "has many",
			schema:  lookup(t, reg, "organizations"),
			filters: literecord.F("members", literecord.F("role", 1)),
			want: "SELECT organizations.* FROM organizations " +
				"LEFT JOIN generic_classes ON generic_classes.organization_id = organizations.id " +
				"WHERE (generic_classes.role = 1)",
		},
		{
			name:    "same relation twice joins once",
			schema:  gc,
			filters: literecord.F("organization", literecord.F("name", "Acme"), "tags", literecord.F("name", "x"), "organization.id_not", 2),
			want: "SELECT generic_classes.* FROM generic_classes " +
				"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id " +
				"LEFT JOIN generic_classes_tags ON generic_classes_tags.generic_class_id = generic_classes.id " +
				"LEFT JOIN tags ON tags.id = generic_classes_tags.tag_id " +
				"WHERE (organizations.name = 'Acme' AND organizations.id <> 2) AND (tags.name = 'x')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compileString(t, c, tt.schema, tt.filters, tt.conj))
		})
	}
}

func TestCompiler_Compile_Golden(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")
	g := goldie.New(t)

	t.Run("many to many", func(t *testing.T) {
		got := compileString(t, c, gc, literecord.F("tags", literecord.F("name_in", []any{"a", "b"})), literecord.ConjAnd)
		g.Assert(t, "compile_many_to_many", []byte(got))
	})

	t.Run("nested relations carry their joins", func(t *testing.T) {
		f := literecord.F("organization", literecord.F("country", literecord.F("code", "BR")))
		got := compileString(t, c, gc, f, literecord.ConjAnd)
		g.Assert(t, "compile_nested_relations", []byte(got))
	})
}

func TestCompiler_Compile_Placeholders(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")

	q, err := c.Compile(gc, literecord.F("name", "Ann", "organization", literecord.F("name_like", "Ac%")), nil, literecord.ConjAnd)
	require.NoError(t, err)

	text, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT generic_classes.* FROM generic_classes "+
		"LEFT JOIN organizations ON organizations.id = generic_classes.organization_id "+
		"WHERE generic_classes.name = ? AND (organizations.name LIKE ?)", text)
	assert.Equal(t, []any{"Ann", "Ac%"}, args)
}

func TestCompiler_Compile_Into(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")

	q := literecord.NewQuery(gc.Table).Where(gc.Column("role"), literecord.OpEq, 1)
	got, err := c.Compile(gc, literecord.F("name", "Ann"), q, literecord.ConjOr)
	require.NoError(t, err)
	assert.Same(t, q, got)
	assert.Equal(t, "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role = 1 OR generic_classes.name = 'Ann'", got.String())
}

func TestCompiler_Compile_JSONContains(t *testing.T) {
	reg := literecord.NewRegistry()
	docs := &literecord.Schema{Name: "documents", Table: "documents", ID: []string{"id"}, Visible: []string{"id", "meta"}}
	require.NoError(t, reg.Register(docs))
	c := literecord.NewCompiler(reg)

	q, err := c.Compile(docs, literecord.F("meta_jsonContains", literecord.F("kind", "invoice")), nil, literecord.ConjAnd)
	require.NoError(t, err)
	text, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT documents.* FROM documents WHERE documents.meta @> ?", text)
	assert.Equal(t, []any{`{"kind":"invoice"}`}, args)
}

func TestCompiler_Compile_Errors(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")

	t.Run("unknown relation", func(t *testing.T) {
		_, err := c.Compile(gc, literecord.F("school", literecord.F("name", "x")), nil, literecord.ConjAnd)
		var relErr *literecord.UnknownRelationError
		require.True(t, errors.As(err, &relErr), "got %v", err)
		assert.Equal(t, "school", relErr.Relation)
		assert.Equal(t, "generic_classes", relErr.Schema)
	})

	t.Run("unknown nested relation", func(t *testing.T) {
		_, err := c.Compile(gc, literecord.F("organization", literecord.F("planet", literecord.F("name", "x"))), nil, literecord.ConjAnd)
		var relErr *literecord.UnknownRelationError
		require.ErrorAs(t, err, &relErr)
		assert.Equal(t, "organizations", relErr.Schema)
	})

	t.Run("unregistered target", func(t *testing.T) {
		lonely := literecord.NewRegistry()
		s := &literecord.Schema{
			Name: "pets", Table: "pets", ID: []string{"id"}, Visible: []string{"id"},
			Relations: []literecord.Relation{{Name: "owner", Kind: literecord.BelongsTo, Target: "people"}},
		}
		require.NoError(t, lonely.Register(s))

		_, err := literecord.NewCompiler(lonely).Compile(s, literecord.F("owner", literecord.F("id", 1)), nil, literecord.ConjAnd)
		var targetErr *literecord.UnresolvedTargetError
		require.ErrorAs(t, err, &targetErr)
		assert.Equal(t, "people", targetErr.Target)
	})
}

func TestCompiler_Compile_Fresh(t *testing.T) {
	reg := fixtureRegistry(t)
	c := literecord.NewCompiler(reg)
	gc := lookup(t, reg, "generic_classes")

	first := compileString(t, c, gc, literecord.F("name", "Ann"), literecord.ConjAnd)
	second := compileString(t, c, gc, literecord.F("role", 2), literecord.ConjAnd)

	assert.Equal(t, "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.name = 'Ann'", first)
	assert.Equal(t, "SELECT generic_classes.* FROM generic_classes WHERE generic_classes.role = 2", second)
}

func TestCompiler_Compile_UndeclaredAttributes(t *testing.T) {
	reg := literecord.NewRegistry()
	labels := &literecord.Schema{
		Name:  "labels",
		Table: "labels",
		ID:    []string{"id"},
		Relations: []literecord.Relation{
			{Name: "country", Kind: literecord.BelongsTo, Target: "countries"},
		},
	}
	require.NoError(t, reg.Register(labels, countrySchema()))
	c := literecord.NewCompiler(reg)

	got := compileString(t, c, labels, literecord.F(
		"name", "a",
		"rank_start", 2,
		"color", nil,
		"bad key", "x",
		"nope.id", 1,
		"country.code", "BR",
	), literecord.ConjAnd)
	assert.Equal(t, "SELECT labels.* FROM labels "+
		"LEFT JOIN countries ON countries.id = labels.country_id "+
		"WHERE labels.name = 'a' AND labels.rank >= 2 AND labels.color IS NULL AND (countries.code = 'BR')", got)

	_, err := c.Compile(labels, literecord.F("school", literecord.F("name", "x")), nil, literecord.ConjAnd)
	var relErr *literecord.UnknownRelationError
	require.ErrorAs(t, err, &relErr)
}
