package domain

// WithProjection specifies which fields to include in results.
func WithProjection(p Projection) FindOption {
	return func(fo *FindOptions) {
		fo.Projection = p
	}
}

// WithSkip sets the number of documents to skip in results.
func WithSkip(s int64) FindOption {
	return func(fo *FindOptions) {
		fo.Skip = s
	}
}

// WithLimit sets the maximum number of documents to return.
func WithLimit(l int64) FindOption {
	return func(fo *FindOptions) {
		fo.Limit = l
	}
}

// WithSort specifies the sort order for results.
func WithSort(s Sort) FindOption {
	return func(fo *FindOptions) {
		fo.Sort = s
	}
}

// FindOption configures finds through the functional options pattern.
type FindOption func(*FindOptions)

// FindOptions contains parameters for customizing finds.
type FindOptions struct {
	// Projection specifies which fields to include in results.
	Projection Projection
	// Skip specifies the number of documents to skip.
	Skip int64
	// Limit specifies the maximum number of documents to return.
	Limit int64
	// Sort specifies the sort order for results.
	Sort Sort
}

// NewFindOptions applies opts over the zero options.
func NewFindOptions(opts ...FindOption) FindOptions {
	var fo FindOptions
	for _, opt := range opts {
		opt(&fo)
	}
	return fo
}

// WithIndexName names the index instead of deriving a name from its keys.
func WithIndexName(n string) IndexOption {
	return func(io *IndexOptions) {
		io.Name = n
	}
}

// WithUnique creates a unique index that prevents duplicate values.
func WithUnique(u bool) IndexOption {
	return func(io *IndexOptions) {
		io.Unique = u
	}
}

// WithSparse creates a sparse index that skips documents missing the key.
func WithSparse(s bool) IndexOption {
	return func(io *IndexOptions) {
		io.Sparse = s
	}
}

// IndexOption configures index creation.
type IndexOption func(*IndexOptions)

// IndexOptions contains parameters for index creation.
type IndexOptions struct {
	Name   string
	Unique bool
	Sparse bool
}

// WithQuery sets the filter applied by a [Querier].
func WithQuery(q any) QueryOption {
	return func(qo *QueryOptions) {
		qo.Query = q
	}
}

// WithQueryFind copies the paging, sorting and projection options of a find.
func WithQueryFind(fo FindOptions) QueryOption {
	return func(qo *QueryOptions) {
		qo.Sort = fo.Sort
		qo.Skip = fo.Skip
		qo.Limit = fo.Limit
		qo.Projection = fo.Projection
	}
}

// QueryOption configures a [Querier] run.
type QueryOption func(*QueryOptions)

// QueryOptions contains the parameters of a [Querier] run.
type QueryOptions struct {
	Query      any
	Sort       Sort
	Skip       int64
	Limit      int64
	Projection map[string]any
}
