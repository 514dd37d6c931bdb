package query

import (
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// GroupKind is a logical combinator keyword.
type GroupKind string

// Logical combinators.
const (
	KindAnd GroupKind = "$and"
	KindOr  GroupKind = "$or"
	KindNor GroupKind = "$nor"
)

// Group combines expressions with a logical operator. Members keep their
// order when rendered.
type Group struct {
	kind    GroupKind
	members []domain.Filter
}

// And matches documents satisfying every expression.
func And(exprs ...domain.Filter) Group { return newGroup(KindAnd, exprs) }

// Or matches documents satisfying at least one expression.
func Or(exprs ...domain.Filter) Group { return newGroup(KindOr, exprs) }

// Nor matches documents satisfying none of the expressions.
func Nor(exprs ...domain.Filter) Group { return newGroup(KindNor, exprs) }

func newGroup(kind GroupKind, exprs []domain.Filter) Group {
	members := make([]domain.Filter, 0, len(exprs))
	for _, expr := range exprs {
		if expr != nil {
			members = append(members, expr)
		}
	}
	return Group{kind: kind, members: members}
}

// Kind returns the group combinator.
func (g Group) Kind() GroupKind { return g.kind }

// Members returns a copy of the group members.
func (g Group) Members() []domain.Filter { return slices.Clone(g.members) }

// ToDict implements [domain.Filter]. Members rendering an empty filter are
// dropped, and a group left without members matches everything.
func (g Group) ToDict() map[string]any {
	rendered := make([]any, 0, len(g.members))
	for _, member := range g.members {
		if d := member.ToDict(); len(d) > 0 {
			rendered = append(rendered, d)
		}
	}
	if len(rendered) == 0 {
		return map[string]any{}
	}
	return map[string]any{string(g.kind): rendered}
}

// And combines g and o in an $and group.
func (g Group) And(o domain.Filter) Group { return And(g, o) }

// Or combines g and o in an $or group.
func (g Group) Or(o domain.Filter) Group { return Or(g, o) }

// Render returns the filter document of f, or an empty filter for nil.
func Render(f domain.Filter) map[string]any {
	if f == nil {
		return map[string]any{}
	}
	return f.ToDict()
}
