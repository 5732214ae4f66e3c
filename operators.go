package literecord

import (
	"regexp"
)

// Operator is the SQL comparison operator a filter key resolves to.
type Operator string

// Supported filter operators.
const (
	OpEq           Operator = "="
	OpGTE          Operator = ">="
	OpLTE          Operator = "<="
	OpLike         Operator = "LIKE"
	OpMatchNoCase  Operator = "~*"
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT IN"
	OpNot          Operator = "<>"
	OpJSONContains Operator = "@>"
)

// OperatorDescriptor binds a filter key suffix to an operator.
// A key "created_at_start" carries the suffix "start".
type OperatorDescriptor struct {
	Name     string
	Operator Operator
}

// DefaultOperators is the suffix table used by DefaultGrammar.
// Order is significant, see Grammar.Resolve.
var DefaultOperators = []OperatorDescriptor{
	{Name: "start", Operator: OpGTE},
	{Name: "end", Operator: OpLTE},
	{Name: "like", Operator: OpLike},
	{Name: "likeIgnoreCase", Operator: OpMatchNoCase},
	{Name: "in", Operator: OpIn},
	{Name: "not_in", Operator: OpNotIn},
	{Name: "not", Operator: OpNot},
	{Name: "jsonContains", Operator: OpJSONContains},
}

// DefaultGrammar resolves the suffixes in DefaultOperators.
var DefaultGrammar = NewGrammar(DefaultOperators...)

// Grammar is an ordered, immutable suffix table.
type Grammar struct {
	descs    []OperatorDescriptor
	patterns []*regexp.Regexp
}

// NewGrammar builds a grammar from descriptors, in priority order.
func NewGrammar(descs ...OperatorDescriptor) *Grammar {
	g := &Grammar{
		descs:    make([]OperatorDescriptor, len(descs)),
		patterns: make([]*regexp.Regexp, len(descs)),
	}
	copy(g.descs, descs)
	for i, d := range descs {
		g.patterns[i] = suffixPattern(d.Name)
	}
	return g
}

func suffixPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(_(` + regexp.QuoteMeta(name) + `))$`)
}

// Operators returns a copy of the grammar's descriptor table.
func (g *Grammar) Operators() []OperatorDescriptor {
	out := make([]OperatorDescriptor, len(g.descs))
	copy(out, g.descs)
	return out
}

// Resolve returns the descriptor whose "_<name>" suffix terminates key.
// When several descriptors match, the last one in table order wins: with the
// default table "role_not_in" matches both "in" and "not_in" and resolves to
// the latter.
func (g *Grammar) Resolve(key string) (OperatorDescriptor, bool) {
	found := -1
	for i, re := range g.patterns {
		if re.MatchString(key) {
			found = i
		}
	}
	if found < 0 {
		return OperatorDescriptor{}, false
	}
	return g.descs[found], true
}

// Strip removes the trailing "_<name>" of desc from key. A nil desc is
// resolved from the key first; keys without a suffix come back unchanged.
func (g *Grammar) Strip(key string, desc *OperatorDescriptor) string {
	if desc == nil {
		d, ok := g.Resolve(key)
		if !ok {
			return key
		}
		desc = &d
	}
	return suffixPattern(desc.Name).ReplaceAllString(key, "")
}

// AttrOperators lists attr joined with every suffix, in table order.
func (g *Grammar) AttrOperators(attr string) []string {
	if attr == "" {
		return []string{}
	}
	keys := make([]string, 0, len(g.descs))
	for _, d := range g.descs {
		keys = append(keys, attr+"_"+d.Name)
	}
	return keys
}

// AttrsOperators concatenates AttrOperators for each attribute.
func (g *Grammar) AttrsOperators(attrs ...string) []string {
	keys := []string{}
	for _, attr := range attrs {
		keys = append(keys, g.AttrOperators(attr)...)
	}
	return keys
}
