package domain

import "github.com/vinicius-lino-figueiredo/gedal/pkg/path"

// Projection is an immutable projection expression node.
type Projection interface {
	isProjection()
}

// ProjectionList is an ordered list of sibling projections. For each path the
// first projection that decides wins.
type ProjectionList struct {
	Items []Projection
}

// FieldProjection includes or excludes a (possibly wildcarded) field. When
// Recursive is set, the decision also applies to every descendant. Project,
// when not nil, decides the descendants of the field relative to it.
type FieldProjection struct {
	Field     path.Path
	Include   bool
	Recursive bool
	Project   Projection
}

// ArrayRangeProjection includes or excludes the elements of an array between
// From and To, both inclusive. Negative bounds count from the end of the
// array as it is when projected.
type ArrayRangeProjection struct {
	Field   path.Path
	Include bool
	From    int
	To      int
	Project Projection
}

// ArrayQueryProjection includes or excludes the elements of an array that
// match Match, evaluated with each element as root. A nil Match selects the
// elements recorded as matched by the request query in the [EvalContext].
type ArrayQueryProjection struct {
	Field   path.Path
	Include bool
	Match   Query
	Project Projection
}

func (ProjectionList) isProjection()       {}
func (FieldProjection) isProjection()      {}
func (ArrayRangeProjection) isProjection() {}
func (ArrayQueryProjection) isProjection() {}
