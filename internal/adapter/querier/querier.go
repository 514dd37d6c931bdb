// Package querier contains the default [domain.Querier] implementation.
package querier

import (
	"fmt"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/projector"
)

// Querier implements [domain.Querier].
type Querier struct {
	mtchr  domain.Matcher
	cmpr   domain.Comparer
	fn     domain.FieldNavigator
	proj   domain.Projector
	docFac domain.DocumentFactory
}

// Option configures a [Querier].
type Option func(*Querier)

// WithMatcher replaces the matcher used to filter documents.
func WithMatcher(m domain.Matcher) Option {
	return func(q *Querier) { q.mtchr = m }
}

// WithComparer replaces the comparer used to sort documents.
func WithComparer(c domain.Comparer) Option {
	return func(q *Querier) { q.cmpr = c }
}

// WithFieldNavigator replaces the navigator used to resolve sort keys.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(q *Querier) { q.fn = fn }
}

// WithProjector replaces the projector applied to the results.
func WithProjector(p domain.Projector) Option {
	return func(q *Querier) { q.proj = p }
}

// WithDocumentFactory replaces the factory used by the default components.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(q *Querier) { q.docFac = f }
}

// NewQuerier returns a new implementation of [domain.Querier].
func NewQuerier(opts ...Option) domain.Querier {
	q := Querier{
		docFac: data.NewDocument,
		cmpr:   comparer.NewComparer(),
	}
	for _, opt := range opts {
		opt(&q)
	}
	if q.fn == nil {
		q.fn = fieldnavigator.NewFieldNavigator(q.docFac)
	}
	if q.mtchr == nil {
		q.mtchr = matcher.NewMatcher(
			matcher.WithComparer(q.cmpr),
			matcher.WithFieldNavigator(q.fn),
		)
	}
	if q.proj == nil {
		q.proj = projector.NewProjector(
			projector.WithDocumentFactory(q.docFac),
			projector.WithFieldNavigator(q.fn),
			projector.WithMatcher(q.mtchr),
		)
	}
	return &q
}

// Query implements [domain.Querier]. Documents are filtered, sorted, paged
// and projected, in that order.
func (q *Querier) Query(data []domain.Document, opts ...domain.QueryOption) ([]domain.Document, error) {
	var options domain.QueryOptions
	for _, opt := range opts {
		opt(&options)
	}

	res := make([]domain.Document, 0, len(data))
	for _, doc := range data {
		if options.Query != nil {
			matches, err := q.mtchr.Match(doc, options.Query)
			if err != nil {
				return nil, fmt.Errorf("matching document: %w", err)
			}
			if !matches {
				continue
			}
		}
		res = append(res, doc)
		if len(options.Sort) == 0 && options.Limit > 0 && int64(len(res)) == options.Skip+options.Limit {
			break
		}
	}

	if len(options.Sort) > 0 {
		sorted, err := q.sort(res, options.Sort)
		if err != nil {
			return nil, fmt.Errorf("sorting: %w", err)
		}
		res = sorted
	}
	res = q.skipAndLimit(res, options.Skip, options.Limit)

	res, err := q.proj.Project(res, options.Projection)
	if err != nil {
		return nil, fmt.Errorf("projecting: %w", err)
	}
	return res, nil
}

type sortKey struct {
	doc  domain.Document
	keys []domain.GetSetter
}

func (q *Querier) sort(data []domain.Document, sort domain.Sort) ([]domain.Document, error) {
	addrs := make([][]string, len(sort))
	for n, crit := range sort {
		addr, err := q.fn.GetAddress(crit.Key)
		if err != nil {
			return nil, fmt.Errorf("getting address: %w", err)
		}
		addrs[n] = addr
	}

	keyed := make([]sortKey, len(data))
	for n, doc := range data {
		keyed[n] = sortKey{doc: doc, keys: make([]domain.GetSetter, len(sort))}
		for i, crit := range sort {
			key, err := q.sortValue(doc, addrs[i], crit.Order)
			if err != nil {
				return nil, err
			}
			keyed[n].keys[i] = key
		}
	}

	var err error
	slices.SortStableFunc(keyed, func(a, b sortKey) int {
		if err != nil {
			return 0
		}
		for i, crit := range sort {
			comp, cErr := q.cmpr.Compare(a.keys[i], b.keys[i])
			if cErr != nil {
				err = fmt.Errorf("comparing: %w", cErr)
				return 0
			}
			if comp != 0 {
				return comp * direction(crit.Order)
			}
		}
		return 0
	})
	if err != nil {
		return nil, err
	}

	res := make([]domain.Document, len(keyed))
	for n, k := range keyed {
		res[n] = k.doc
	}
	return res, nil
}

// sortValue returns the value a document sorts by. Lists sort by their
// smallest element ascending and by their largest descending. Missing values
// sort as null.
func (q *Querier) sortValue(doc domain.Document, addr []string, order int64) (domain.GetSetter, error) {
	fields, _, err := q.fn.GetField(doc, addr...)
	if err != nil {
		return nil, fmt.Errorf("getting field: %w", err)
	}
	var candidates []any
	for _, field := range fields {
		v, defined := field.Get()
		if !defined {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 0 {
			candidates = append(candidates, list...)
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return fieldnavigator.Value(nil), nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		comp, err := q.cmpr.Compare(c, best)
		if err != nil {
			return nil, fmt.Errorf("comparing: %w", err)
		}
		if comp*direction(order) < 0 {
			best = c
		}
	}
	return fieldnavigator.Value(best), nil
}

func direction(order int64) int {
	if order < 0 {
		return -1
	}
	return 1
}

func (q *Querier) skipAndLimit(data []domain.Document, skip, limit int64) []domain.Document {
	length := int64(len(data))

	skip = max(skip, 0)      // skip cannot be negative
	skip = min(skip, length) // cannot skip more than length

	end := length
	if limit > 0 {
		end = min(skip+limit, length)
	}

	return data[skip:end]
}
