// Package index keeps in-memory documents ordered by a key so the store can
// enforce unique constraints and look documents up without a scan.
package index

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/bst"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/fieldnavigator"
)

// entry is the value stored in the tree. Documents are maps, so the tree
// holds a pointer per document to keep values comparable.
type entry struct {
	doc  domain.Document
	keys []any
}

// Index implements domain.Index.
type Index struct {
	info           domain.IndexInfo
	fields         [][]string
	tree           *bst.BinarySearchTree
	treeOptions    bst.Options
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
	entries        map[any]*entry
}

// Option configures an [Index].
type Option func(*Index)

// WithComparer replaces the comparer ordering the keys.
func WithComparer(c domain.Comparer) Option {
	return func(i *Index) { i.comparer = c }
}

// WithFieldNavigator replaces the navigator used to read keys.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(i *Index) { i.fieldNavigator = fn }
}

// Name derives the default index name out of its keys, as MongoDB does.
func Name(keys domain.Sort) string {
	parts := make([]string, len(keys))
	for n, k := range keys {
		parts[n] = fmt.Sprintf("%s_%d", k.Key, k.Order)
	}
	return strings.Join(parts, "_")
}

// NewIndex returns a new implementation of domain.Index.
func NewIndex(info domain.IndexInfo, options ...Option) (domain.Index, error) {
	if len(info.Keys) == 0 {
		return nil, fmt.Errorf("index needs at least one key")
	}
	if info.Name == "" {
		info.Name = Name(info.Keys)
	}

	i := &Index{
		info:     info,
		comparer: comparer.NewComparer(),
	}
	for _, option := range options {
		option(i)
	}
	if i.fieldNavigator == nil {
		i.fieldNavigator = fieldnavigator.NewFieldNavigator(data.NewDocument)
	}

	for _, k := range info.Keys {
		addr, err := i.fieldNavigator.GetAddress(k.Key)
		if err != nil {
			return nil, err
		}
		i.fields = append(i.fields, addr)
	}

	i.treeOptions = bst.Options{
		Unique: info.Unique,
		CompareKeys: func(a, b any) int {
			comp, _ := i.comparer.Compare(a, b)
			return comp
		},
	}
	i.tree = bst.NewBinarySearchTree(i.treeOptions)
	i.entries = make(map[any]*entry)
	return i, nil
}

// Info implements domain.Index.
func (i *Index) Info() domain.IndexInfo {
	return i.info
}

// Reset implements domain.Index.
func (i *Index) Reset(docs ...domain.Document) error {
	i.tree = bst.NewBinarySearchTree(i.treeOptions)
	i.entries = make(map[any]*entry)
	return i.Insert(docs...)
}

// getKeys returns the keys a document is stored under. A list value on a
// single field index stores the document once per distinct element.
// Compound keys are lists holding one value per field. A nil result on a
// sparse index means the document is not indexed.
func (i *Index) getKeys(doc domain.Document) ([]any, error) {
	values := make([]any, len(i.fields))
	anyDefined := false
	for n, addr := range i.fields {
		fields, _, err := i.fieldNavigator.GetField(doc, addr...)
		if err != nil {
			return nil, err
		}
		var found []any
		for _, f := range fields {
			if v, defined := f.Get(); defined {
				anyDefined = true
				found = append(found, v)
			}
		}
		switch len(found) {
		case 0:
			values[n] = nil
		case 1:
			values[n] = found[0]
		default:
			values[n] = found
		}
	}

	if i.info.Sparse && !anyDefined {
		return nil, nil
	}

	if len(values) > 1 {
		return []any{values}, nil
	}

	list, ok := values[0].([]any)
	if !ok || len(list) == 0 {
		return values, nil
	}
	keys := slices.Clone(list)
	slices.SortFunc(keys, i.compareThings)
	return slices.CompactFunc(keys, func(a, b any) bool { return i.compareThings(a, b) == 0 }), nil
}

// Insert implements domain.Index. A failure removes every key added by the
// call.
func (i *Index) Insert(docs ...domain.Document) error {
	var added []*entry
	for _, d := range docs {
		e, err := i.insert(d)
		if err != nil {
			for _, a := range added {
				i.remove(a)
			}
			return err
		}
		if e != nil {
			added = append(added, e)
		}
	}
	return nil
}

func (i *Index) insert(d domain.Document) (*entry, error) {
	keys, err := i.getKeys(d)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, nil
	}
	e := &entry{doc: d}
	for _, k := range keys {
		if err := i.tree.Insert(k, e); err != nil {
			i.remove(e)
			var violated *bst.ErrViolated
			if errors.As(err, &violated) {
				return nil, &domain.ErrUniqueViolated{Index: i.info.Name, Key: k}
			}
			return nil, err
		}
		e.keys = append(e.keys, k)
	}
	i.entries[codec.IDKey(d.ID())] = e
	return e, nil
}

func (i *Index) remove(e *entry) {
	for _, k := range e.keys {
		i.tree.Delete(k, e)
	}
	if i.entries[codec.IDKey(e.doc.ID())] == e {
		delete(i.entries, codec.IDKey(e.doc.ID()))
	}
}

// Remove implements domain.Index. Documents are found by _id, so a modified
// copy removes the indexed original.
func (i *Index) Remove(docs ...domain.Document) error {
	for _, d := range docs {
		if e, ok := i.entries[codec.IDKey(d.ID())]; ok {
			i.remove(e)
		}
	}
	return nil
}

// Update implements domain.Index.
func (i *Index) Update(oldDoc, newDoc domain.Document) error {
	if err := i.Remove(oldDoc); err != nil {
		return err
	}
	if err := i.Insert(newDoc); err != nil {
		if restoreErr := i.Insert(oldDoc); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	return nil
}

// GetMatching implements domain.Index. Documents are returned once, ordered
// by key.
func (i *Index) GetMatching(values ...any) []domain.Document {
	keys := slices.Clone(values)
	slices.SortFunc(keys, i.compareThings)
	keys = slices.CompactFunc(keys, func(a, b any) bool { return i.compareThings(a, b) == 0 })

	seen := make(map[*entry]bool)
	var res []domain.Document
	for _, k := range keys {
		for _, found := range i.tree.Search(k) {
			e := found.(*entry)
			if seen[e] {
				continue
			}
			seen[e] = true
			res = append(res, e.doc)
		}
	}
	return res
}

// GetNumberOfKeys implements domain.Index.
func (i *Index) GetNumberOfKeys() int {
	return i.tree.GetNumberOfKeys()
}

func (i *Index) compareThings(a any, b any) int {
	comp, _ := i.comparer.Compare(a, b)
	return comp
}
