package query

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// Sort directions.
const (
	Ascending  int64 = 1
	Descending int64 = -1
)

// Sortable is implemented by [Path] (ascending) and [SortField].
type Sortable interface {
	SortName() domain.SortName
}

// SortField pairs a path with a direction.
type SortField struct {
	Path      Path
	Direction int64
}

// SortName implements [Sortable].
func (s SortField) SortName() domain.SortName {
	return domain.SortName{Key: s.Path.String(), Order: s.Direction}
}

// SortBy builds a sort specification, preserving the order of fields.
func SortBy(fields ...Sortable) domain.Sort {
	res := make(domain.Sort, 0, len(fields))
	for _, field := range fields {
		res = append(res, field.SortName())
	}
	return res
}
