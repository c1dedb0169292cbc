package fieldnavigator

import "github.com/vinicius-lino-figueiredo/gedal/domain"

var (
	_ domain.GetSetter = docSlot{}
	_ domain.GetSetter = arraySlot{}
	_ domain.GetSetter = rootSlot{}
	_ domain.GetSetter = missingSlot{}
)

// docSlot implements [domain.GetSetter] for a key of a document. Unset removes the key.
type docSlot struct {
	doc domain.Document
	key string
}

func (s docSlot) Get() (any, bool) { return s.doc.Get(s.key), s.doc.Has(s.key) }
func (s docSlot) Set(v any) { s.doc.Set(s.key, v) }
func (s docSlot) Unset() { s.doc.Unset(s.key) }

// arraySlot is an element of an array. Arrays never have holes, so Unset
// writes null. Indices out of bounds are undefined and ignore writes.
type arraySlot struct {
	arr   []any
	index int
}

func (s arraySlot) inBounds() bool { return s.index >= 0 && s.index < len(s.arr) }

func (s arraySlot) Get() (any, bool) {
	if !s.inBounds() {
		return nil, false
	}
	return s.arr[s.index], true
}

func (s arraySlot) Set(v any) {
	if s.inBounds() {
		s.arr[s.index] = v
	}
}

func (s arraySlot) Unset() { s.Set(nil) }

// rootSlot is a defined value without a parent, such as the document being
// navigated. It cannot be replaced.
type rootSlot struct {
	v any
}

func (s rootSlot) Get() (any, bool) { return s.v, true }
func (rootSlot) Set(any) {}
func (rootSlot) Unset() {}

// missingSlot is a location that does not exist.
type missingSlot struct{}

func (missingSlot) Get() (any, bool) { return nil, false }
func (missingSlot) Set(any) {}
func (missingSlot) Unset() {}
