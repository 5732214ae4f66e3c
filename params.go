package literecord

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/gorilla/schema"
	"github.com/spf13/cast"
)

// Param is one filter entry.
type Param struct {
	Key   string
	Value any
}

// Filters is an ordered filter map. Key order decides the order of the
// generated predicates.
type Filters []Param

// FiltersFromMap converts m to Filters with keys sorted. Nested maps become
// nested Filters.
func FiltersFromMap(m map[string]any) Filters {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := make(Filters, 0, len(keys))
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = FiltersFromMap(nested)
		}
		f = append(f, Param{Key: k, Value: v})
	}
	return f
}

// F builds Filters from alternating keys and values.
func F(kv ...any) Filters {
	if len(kv)%2 != 0 {
		panic("literecord.F: odd number of arguments")
	}
	f := make(Filters, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		f = append(f, Param{Key: kv[i].(string), Value: kv[i+1]})
	}
	return f
}

// Get returns the value of the first param named key.
func (f Filters) Get(key string) (any, bool) {
	for _, p := range f {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Without returns f minus every param named in keys.
func (f Filters) Without(keys ...string) Filters {
	out := make(Filters, 0, len(f))
	for _, p := range f {
		if !containsString(keys, p.Key) {
			out = append(out, p)
		}
	}
	return out
}

// Map flattens f into a map, nested Filters included.
func (f Filters) Map() map[string]any {
	m := make(map[string]any, len(f))
	for _, p := range f {
		if nested, ok := p.Value.(Filters); ok {
			m[p.Key] = nested.Map()
			continue
		}
		m[p.Key] = p.Value
	}
	return m
}

func asFilters(v any) (Filters, bool) {
	switch nested := v.(type) {
	case Filters:
		return nested, true
	case map[string]any:
		return FiltersFromMap(nested), true
	}
	return nil, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Reserved list parameter keys.
const (
	KeyPage          = "page"
	KeyPageSize      = "pageSize"
	KeyOrderBy       = "orderBy"
	KeyDistinct      = "distinct"
	KeyGroupBy       = "groupBy"
	KeyGenericSearch = "genericSearch"
	KeyWithDeleted   = "withDeleted"
	KeyWithRelated   = "withRelated"
)

var reservedKeys = []string{KeyPage, KeyPageSize, KeyOrderBy, KeyDistinct, KeyGroupBy, KeyGenericSearch, KeyWithDeleted, KeyWithRelated}

// DefaultPageSize is used when neither the caller nor the configuration
// sets one.
const DefaultPageSize = 500

// ListParams drives Store.List.
type ListParams struct {
	Filters Filters `schema:"-"`

	Page          uint64    `schema:"page"`
	PageSize      uint64    `schema:"pageSize"`
	OrderBy       []OrderBy `schema:"-"`
	Distinct      []string  `schema:"distinct"`
	GroupBy       []string  `schema:"groupBy"`
	GenericSearch string    `schema:"genericSearch"`
	WithDeleted   bool      `schema:"withDeleted"`
	WithRelated   []string  `schema:"withRelated"`
}

func (p ListParams) withDefaults(pageSize uint64) ListParams {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = pageSize
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// CountFilters returns the filters plus the reserved keys that affect a
// count, ready for Store.Count.
func (p ListParams) CountFilters() Filters {
	f := slices.Clone(p.Filters)
	if p.GenericSearch != "" {
		f = append(f, Param{Key: KeyGenericSearch, Value: p.GenericSearch})
	}
	if p.WithDeleted {
		f = append(f, Param{Key: KeyWithDeleted, Value: true})
	}
	return f
}

// ListParamsFromFilters pulls the reserved keys out of a flat filter list.
// orderBy may be an attribute name (ascending) or a map of attribute to
// direction; distinct and groupBy may be a list or a comma separated string.
func ListParamsFromFilters(f Filters) (ListParams, error) {
	var p ListParams
	for _, param := range f {
		var err error
		switch param.Key {
		case KeyPage:
			p.Page, err = cast.ToUint64E(param.Value)
		case KeyPageSize:
			p.PageSize, err = cast.ToUint64E(param.Value)
		case KeyOrderBy:
			p.OrderBy, err = orderByFrom(param.Value)
		case KeyDistinct:
			p.Distinct, err = listFrom(param.Value)
		case KeyGroupBy:
			p.GroupBy, err = listFrom(param.Value)
		case KeyGenericSearch:
			p.GenericSearch, err = cast.ToStringE(param.Value)
		case KeyWithDeleted:
			p.WithDeleted, err = cast.ToBoolE(param.Value)
		case KeyWithRelated:
			p.WithRelated, err = listFrom(param.Value)
		default:
			p.Filters = append(p.Filters, param)
		}
		if err != nil {
			return ListParams{}, fmt.Errorf("%w: %s: %v", ErrInvalidParams, param.Key, err)
		}
	}
	return p, nil
}

func orderByFrom(v any) ([]OrderBy, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []OrderBy{{Column: val, Direction: OrderAsc}}, nil
	case []OrderBy:
		return val, nil
	case Filters:
		out := make([]OrderBy, 0, len(val))
		for _, p := range val {
			dir, err := directionFrom(p.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, OrderBy{Column: p.Key, Direction: dir})
		}
		return out, nil
	case map[string]any:
		return orderByFrom(FiltersFromMap(val))
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, d := range val {
			m[k] = d
		}
		return orderByFrom(m)
	}
	return nil, fmt.Errorf("unsupported orderBy value %T", v)
}

func directionFrom(v any) (OrderDirection, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", err
	}
	switch strings.ToUpper(s) {
	case "", "ASC":
		return OrderAsc, nil
	case "DESC":
		return OrderDesc, nil
	}
	return "", fmt.Errorf("invalid order direction: %s", s)
}

func listFrom(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		return splitList(s), nil
	}
	return cast.ToStringSliceE(v)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// ParseQuery decodes an HTTP query string into ListParams.
//
// Reserved keys fill the paging fields; orderBy accepts "orderBy=name" and
// "orderBy[name]=DESC". Every other key becomes a filter, in sorted key
// order. Values of "_in" and "_not_in" keys are split on commas, and
// repeated keys become lists.
func ParseQuery(values url.Values) (ListParams, error) {
	var p ListParams
	if err := queryDecoder.Decode(&p, reservedValues(values)); err != nil {
		return ListParams{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if len(p.Distinct) == 1 {
		p.Distinct = splitList(p.Distinct[0])
	}
	if len(p.GroupBy) == 1 {
		p.GroupBy = splitList(p.GroupBy[0])
	}
	if len(p.WithRelated) == 1 {
		p.WithRelated = splitList(p.WithRelated[0])
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		vals := values[key]
		switch {
		case key == KeyOrderBy:
			for _, col := range vals {
				p.OrderBy = append(p.OrderBy, OrderBy{Column: col, Direction: OrderAsc})
			}
		case strings.HasPrefix(key, KeyOrderBy+"[") && strings.HasSuffix(key, "]"):
			dir, err := directionFrom(vals[0])
			if err != nil {
				return ListParams{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
			}
			col := strings.TrimSuffix(strings.TrimPrefix(key, KeyOrderBy+"["), "]")
			p.OrderBy = append(p.OrderBy, OrderBy{Column: col, Direction: dir})
		case containsString(reservedKeys, key):
		default:
			p.Filters = append(p.Filters, Param{Key: key, Value: queryValue(key, vals)})
		}
	}
	return p, nil
}

func reservedValues(values url.Values) url.Values {
	out := url.Values{}
	for _, k := range reservedKeys {
		if k == KeyOrderBy {
			continue
		}
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out
}

func queryValue(key string, vals []string) any {
	if op, ok := DefaultGrammar.Resolve(key); ok && (op.Operator == OpIn || op.Operator == OpNotIn) {
		var list []any
		for _, v := range vals {
			for _, part := range splitList(v) {
				list = append(list, part)
			}
		}
		return list
	}
	if len(vals) == 1 {
		return vals[0]
	}
	list := make([]any, len(vals))
	for i, v := range vals {
		list[i] = v
	}
	return list
}
