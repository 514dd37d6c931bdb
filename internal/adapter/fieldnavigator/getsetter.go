package fieldnavigator

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// docSlot addresses a key of a document.
type docSlot struct {
	doc domain.Document
	key string
}

func (s docSlot) Get() (any, bool) { return s.doc.Get(s.key), s.doc.Has(s.key) }
func (s docSlot) Set(v any)        { s.doc.Set(s.key, v) }
func (s docSlot) Unset()           { s.doc.Unset(s.key) }

// indexSlot addresses an element of a list. Unsetting an element nils it so
// the positions of its siblings don't move.
type indexSlot struct {
	list  []any
	index int
}

func (s indexSlot) Get() (any, bool) {
	if s.index >= 0 && s.index < len(s.list) {
		return s.list[s.index], true
	}
	return nil, false
}

func (s indexSlot) Set(v any) {
	if s.index >= 0 && s.index < len(s.list) {
		s.list[s.index] = v
	}
}

func (s indexSlot) Unset() { s.Set(nil) }

// valueSlot holds a value without a parent container, such as the root.
type valueSlot struct{ v any }

func (s valueSlot) Get() (any, bool) { return s.v, true }
func (s valueSlot) Set(any)          {}
func (s valueSlot) Unset()           {}

// undefined is the address of a missing value.
type undefined struct{}

func (undefined) Get() (any, bool) { return nil, false }
func (undefined) Set(any)          {}
func (undefined) Unset()           {}

// Undefined returns the address of a missing value.
func Undefined() domain.GetSetter { return undefined{} }

// Value returns a read-only address holding v.
func Value(v any) domain.GetSetter { return valueSlot{v: v} }
