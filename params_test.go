package literecord_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dir01/literecord"
)

func TestFilters(t *testing.T) {
	f := literecord.FiltersFromMap(map[string]any{
		"role":         1,
		"name":         "Ann",
		"organization": map[string]any{"name": "Acme"},
	})
	assert.Equal(t, literecord.Filters{
		{Key: "name", Value: "Ann"},
		{Key: "organization", Value: literecord.Filters{{Key: "name", Value: "Acme"}}},
		{Key: "role", Value: 1},
	}, f)

	v, ok := f.Get("role")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = f.Get("nope")
	assert.False(t, ok)

	assert.Equal(t, literecord.F("role", 1), f.Without("name", "organization"))
	assert.Equal(t, map[string]any{
		"name":         "Ann",
		"organization": map[string]any{"name": "Acme"},
		"role":         1,
	}, f.Map())

	assert.Panics(t, func() { literecord.F("odd") })
}

func TestListParamsFromFilters(t *testing.T) {
	p, err := literecord.ListParamsFromFilters(literecord.F(
		"name", "Ann",
		"page", "2",
		"pageSize", 20,
		"orderBy", literecord.F("name", "desc", "role", "ASC"),
		"distinct", "role, name",
		"groupBy", []any{"role"},
		"genericSearch", "an",
		"withDeleted", "true",
		"withRelated", "organization,tags",
		"role_in", []any{1, 2},
	))
	require.NoError(t, err)

	assert.Equal(t, literecord.ListParams{
		Filters:  literecord.F("name", "Ann", "role_in", []any{1, 2}),
		Page:     2,
		PageSize: 20,
		OrderBy: []literecord.OrderBy{
			{Column: "name", Direction: literecord.OrderDesc},
			{Column: "role", Direction: literecord.OrderAsc},
		},
		Distinct:      []string{"role", "name"},
		GroupBy:       []string{"role"},
		GenericSearch: "an",
		WithDeleted:   true,
		WithRelated:   []string{"organization", "tags"},
	}, p)

	assert.Equal(t,
		literecord.F("name", "Ann", "role_in", []any{1, 2}, "genericSearch", "an", "withDeleted", true),
		p.CountFilters())

	t.Run("orderBy as an attribute name", func(t *testing.T) {
		p, err := literecord.ListParamsFromFilters(literecord.F("orderBy", "name"))
		require.NoError(t, err)
		assert.Equal(t, []literecord.OrderBy{{Column: "name", Direction: literecord.OrderAsc}}, p.OrderBy)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, f := range []literecord.Filters{
			literecord.F("page", "two"),
			literecord.F("orderBy", literecord.F("name", "sideways")),
			literecord.F("orderBy", 3),
			literecord.F("withDeleted", "perhaps"),
		} {
			_, err := literecord.ListParamsFromFilters(f)
			assert.ErrorIs(t, err, literecord.ErrInvalidParams, "%v", f)
		}
	})
}

func TestParseQuery(t *testing.T) {
	values, err := url.ParseQuery(
		"name_like=%25ann%25&role_in=1,2&page=3&pageSize=10" +
			"&orderBy[name]=DESC&orderBy=role&distinct=role,name&withRelated=organization" +
			"&organization.name=Acme&tag=a&tag=b&genericSearch=x&withDeleted=1")
	require.NoError(t, err)

	p, err := literecord.ParseQuery(values)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), p.Page)
	assert.Equal(t, uint64(10), p.PageSize)
	assert.Equal(t, []string{"role", "name"}, p.Distinct)
	assert.Equal(t, []string{"organization"}, p.WithRelated)
	assert.Equal(t, "x", p.GenericSearch)
	assert.True(t, p.WithDeleted)
	assert.Equal(t, []literecord.OrderBy{
		{Column: "role", Direction: literecord.OrderAsc},
		{Column: "name", Direction: literecord.OrderDesc},
	}, p.OrderBy)
	assert.Equal(t, literecord.Filters{
		{Key: "name_like", Value: "%ann%"},
		{Key: "organization.name", Value: "Acme"},
		{Key: "role_in", Value: []any{"1", "2"}},
		{Key: "tag", Value: []any{"a", "b"}},
	}, p.Filters)

	t.Run("invalid page", func(t *testing.T) {
		_, err := literecord.ParseQuery(url.Values{"page": {"x"}})
		assert.ErrorIs(t, err, literecord.ErrInvalidParams)
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, err := literecord.ParseQuery(url.Values{"orderBy[name]": {"up"}})
		assert.ErrorIs(t, err, literecord.ErrInvalidParams)
	})
}
