package domain

import "github.com/vinicius-lino-figueiredo/gedal/pkg/path"

// Update is an immutable update expression node.
type Update interface {
	isUpdate()
}

// UpdateList is an ordered list of updates applied one after the other.
type UpdateList struct {
	Items []Update
}

// RValue is the right side of a set: either a literal or the current value of
// another field.
type RValue struct {
	Literal  any
	CopyFrom path.Path
	IsCopy   bool
}

// SetValue sets a field.
type SetValue struct {
	Field path.Path
	Value RValue
}

// Unset removes a field.
type Unset struct {
	Field path.Path
}

// Increment adds Delta to a numeric field.
type Increment struct {
	Field path.Path
	Delta any
}

// AddToSet appends the values that are not already in the array.
type AddToSet struct {
	Field  path.Path
	Values []any
}

// ArrayInsert inserts values at Index of the array. When Append is set the
// values are added at the end.
type ArrayInsert struct {
	Field  path.Path
	Index  int
	Append bool
	Values []any
}

// ArrayRemove removes the elements of an array that match Match, or that are
// equal to Value when Match is nil.
type ArrayRemove struct {
	Field path.Path
	Match Query
	Value any
}

// ForEach applies Update to every element of an array matching Match (every
// element when Match is nil), with the element as context. When Remove is
// set, matching elements are removed instead.
type ForEach struct {
	Field  path.Path
	Match  Query
	Update Update
	Remove bool
}

func (UpdateList) isUpdate()  {}
func (SetValue) isUpdate()    {}
func (Unset) isUpdate()       {}
func (Increment) isUpdate()   {}
func (AddToSet) isUpdate()    {}
func (ArrayInsert) isUpdate() {}
func (ArrayRemove) isUpdate() {}
func (ForEach) isUpdate()     {}
