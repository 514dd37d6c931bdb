// Package query contains the filter and sort expression builder.
//
// Paths are built from the root [Q] and turned into conditions by their
// comparison methods. Conditions and groups render to the nested-map filter
// documents understood by MongoDB-like stores.
package query

import (
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Q is the root path. It renders to an empty string, and conditions built on
// it render without a field name.
var Q = Path{}

// Path is an immutable dotted path into a document.
type Path struct {
	segments []string
}

// F returns a copy of p with the given field appended. Dotted names append
// one segment per part.
func (p Path) F(name string) Path {
	parts := strings.Split(name, ".")
	segments := make([]string, len(p.segments), len(p.segments)+len(parts))
	copy(segments, p.segments)
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return Path{segments: segments}
}

// I returns a copy of p with the given array index appended.
func (p Path) I(i int) Path {
	segments := make([]string, len(p.segments), len(p.segments)+1)
	copy(segments, p.segments)
	return Path{segments: append(segments, strconv.Itoa(i))}
}

// String renders the dotted path.
func (p Path) String() string {
	return strings.Join(p.segments, ".")
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// IsRoot reports whether p has no segments.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Eq matches documents where the path equals v.
func (p Path) Eq(v any) Condition { return newCondition(p, OpEq, v) }

// Ne matches documents where the path differs from v.
func (p Path) Ne(v any) Condition { return newCondition(p, OpNe, v) }

// Gt matches documents where the path is greater than v.
func (p Path) Gt(v any) Condition { return newCondition(p, OpGt, v) }

// Gte matches documents where the path is greater than or equal to v.
func (p Path) Gte(v any) Condition { return newCondition(p, OpGte, v) }

// Lt matches documents where the path is less than v.
func (p Path) Lt(v any) Condition { return newCondition(p, OpLt, v) }

// Lte matches documents where the path is less than or equal to v.
func (p Path) Lte(v any) Condition { return newCondition(p, OpLte, v) }

// Asc sorts by the path in ascending order.
func (p Path) Asc() SortField { return SortField{Path: p, Direction: Ascending} }

// Desc sorts by the path in descending order.
func (p Path) Desc() SortField { return SortField{Path: p, Direction: Descending} }

// SortName implements [Sortable]. A bare path sorts ascending.
func (p Path) SortName() domain.SortName {
	return domain.SortName{Key: p.String(), Order: Ascending}
}
