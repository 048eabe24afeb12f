package schema

import "github.com/leapstack-labs/querygen/pkg/core"

// Resolver returns the annotations declared on a schema column.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog *Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve looks owner up among tables first, then views, and returns a copy
// of the annotations declared for column. For a view this is the view
// field's own map, never merged with the table column it reads.
// The second result is false when owner or column is unknown; callers treat
// that as "no override".
func (r *Resolver) Resolve(owner, column string) (core.AnnotationMap, bool) {
	if t, ok := r.catalog.Table(owner); ok {
		c := t.Column(column)
		if c == nil {
			return nil, false
		}
		return orEmpty(c.Annotations.Clone()), true
	}
	if v, ok := r.catalog.View(owner); ok {
		if v.Column(column) == nil {
			return nil, false
		}
		return orEmpty(v.Fields[column].Clone()), true
	}
	return nil, false
}

func orEmpty(m core.AnnotationMap) core.AnnotationMap {
	if m == nil {
		return core.AnnotationMap{}
	}
	return m
}
