package literecord

import "slices"

// Where is the attribute and operator a single filter key stands for.
type Where struct {
	Attr     string
	Operator Operator
}

// WhereFor resolves a filter key against the attributes an entity exposes.
//
// A key that is itself one of attrs always means equality on that attribute,
// even if it also ends with an operator suffix. Otherwise a recognised suffix
// is stripped and its operator used. Keys without a suffix come back as
// equality on the key itself; callers decide whether that attribute exists.
func (g *Grammar) WhereFor(key string, attrs []string) Where {
	if slices.Contains(attrs, key) {
		return Where{Attr: key, Operator: OpEq}
	}
	if desc, ok := g.Resolve(key); ok {
		return Where{Attr: g.Strip(key, &desc), Operator: desc.Operator}
	}
	return Where{Attr: key, Operator: OpEq}
}
