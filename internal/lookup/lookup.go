// Package lookup finds the schema column a statement parameter or result
// field originates from, looking through aliases, WITH sub-selects and
// views.
package lookup

import (
	"fmt"

	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// ViewHop is one view traversed on the way to a table column.
type ViewHop struct {
	View  string
	Field string
}

// Match is the genuine table column behind a parameter or field.
type Match struct {
	// Owner is the table or view the statement itself refers to, after alias
	// and WITH resolution.
	Owner  string
	Table  string
	Column *core.Column
	// Views lists the views traversed, the one closest to Table first.
	Views []ViewHop
	Kind  core.AssociationKind
}

// UnresolvedColumnError reports an association to a known table or view
// that has no such column.
type UnresolvedColumnError struct {
	Statement string
	Ref       string
	Owner     string
	Column    string
}

func (e *UnresolvedColumnError) Error() string {
	return fmt.Sprintf("statement %s: %s refers to %s.%s, which does not exist", e.Statement, e.Ref, e.Owner, e.Column)
}

// Is makes UnresolvedColumnError match core.ErrConsistency.
func (e *UnresolvedColumnError) Is(target error) bool {
	return target == core.ErrConsistency
}

// Lookup resolves columns against one catalog.
type Lookup struct {
	catalog *schema.Catalog
}

// New creates a Lookup over catalog.
func New(catalog *schema.Catalog) *Lookup {
	return &Lookup{catalog: catalog}
}

// FindColumnForParameter returns the column param is compared with or
// assigned to. The statement's own association wins; WITH sub-selects are
// searched, in order, only when it has none or it does not lead to a
// column. A nil Match with a nil error means no column could be
// determined.
func (l *Lookup) FindColumnForParameter(stmt *core.Statement, param string) (*Match, error) {
	return l.findParam(nil, stmt, param)
}

// FindColumnForField returns the column a select result field reads.
// Computed fields have no column.
func (l *Lookup) FindColumnForField(stmt *core.Statement, field string) (*Match, error) {
	f := stmt.Field(field)
	if f == nil || f.Expression || f.Column == "" {
		return nil, nil
	}
	r := &resolution{stmt: stmt.ID(), ref: "field " + field}
	return l.resolveOwner(r, []*core.Statement{stmt}, ownerOf(stmt, f.Table), f.Column, core.AssocDefault)
}

func (l *Lookup) findParam(outer []*core.Statement, stmt *core.Statement, param string) (*Match, error) {
	scope := append(append([]*core.Statement(nil), outer...), stmt)
	if assoc, ok := stmt.ParamColumns[param]; ok {
		kind := assoc.Kind
		if kind == "" {
			kind = core.AssocDefault
		}
		r := &resolution{stmt: rootID(scope), ref: "parameter :" + param}
		m, err := l.resolveOwner(r, scope, ownerOf(stmt, assoc.Table), assoc.Column, kind)
		if err != nil || m != nil {
			return m, err
		}
	}
	for _, w := range stmt.With {
		m, err := l.findParam(scope, w, param)
		if err != nil || m != nil {
			return m, err
		}
	}
	return nil, nil
}

// resolution carries the error context and loop guard of one lookup.
type resolution struct {
	stmt    string
	ref     string
	visited map[string]bool
}

func (r *resolution) unresolved(owner, column string) error {
	return &UnresolvedColumnError{Statement: r.stmt, Ref: r.ref, Owner: owner, Column: column}
}

// resolveOwner resolves owner.column as seen from the innermost statement
// of scope.
func (l *Lookup) resolveOwner(r *resolution, scope []*core.Statement, owner, column string, kind core.AssociationKind) (*Match, error) {
	stmt := scope[len(scope)-1]
	name := stmt.ResolveAlias(owner)

	if w, wscope := findWith(scope, name); w != nil {
		key := "with:" + w.Name
		if r.visited[key] {
			return nil, nil
		}
		r.mark(key)
		f := w.Field(column)
		if f == nil || f.Expression || f.Column == "" {
			return nil, nil
		}
		inner := append(append([]*core.Statement(nil), wscope...), w)
		m, err := l.resolveOwner(r, inner, ownerOf(w, f.Table), f.Column, kind)
		if m != nil {
			m.Owner = name
		}
		return m, err
	}

	if t, ok := l.catalog.Table(name); ok {
		c := t.Column(column)
		if c == nil {
			return nil, r.unresolved(name, column)
		}
		return &Match{Owner: name, Table: t.Name, Column: c, Kind: kind}, nil
	}

	if v, ok := l.catalog.View(name); ok {
		m, err := l.throughView(r, v, column, kind)
		if m != nil {
			m.Owner = name
		}
		return m, err
	}
	return nil, nil
}

// throughView follows a view field down its SELECT skeleton to the table
// column it reads.
func (l *Lookup) throughView(r *resolution, v *core.View, column string, kind core.AssociationKind) (*Match, error) {
	key := "view:" + v.Name
	if r.visited[key] {
		return nil, nil
	}
	r.mark(key)

	if v.Column(column) == nil {
		return nil, r.unresolved(v.Name, column)
	}
	if v.Select == nil {
		return nil, nil
	}
	f := v.Select.Field(column)
	if f == nil || f.Expression || f.Column == "" {
		return nil, nil
	}
	owner := f.Table
	if owner == "" {
		owner = v.Select.Table
	}
	owner = v.Select.ResolveAlias(owner)
	hop := ViewHop{View: v.Name, Field: column}

	if t, ok := l.catalog.Table(owner); ok {
		c := t.Column(f.Column)
		if c == nil {
			return nil, r.unresolved(owner, f.Column)
		}
		return &Match{Table: t.Name, Column: c, Views: []ViewHop{hop}, Kind: kind}, nil
	}
	if inner, ok := l.catalog.View(owner); ok {
		m, err := l.throughView(r, inner, f.Column, kind)
		if m != nil {
			m.Views = append(m.Views, hop)
		}
		return m, err
	}
	return nil, nil
}

func (r *resolution) mark(key string) {
	if r.visited == nil {
		r.visited = map[string]bool{}
	}
	r.visited[key] = true
}

// findWith returns the WITH sub-select named name visible from the
// innermost statement of scope, with the scope it was declared in.
func findWith(scope []*core.Statement, name string) (*core.Statement, []*core.Statement) {
	for i := len(scope) - 1; i >= 0; i-- {
		if w := scope[i].WithClause(name); w != nil {
			return w, scope[:i+1]
		}
	}
	return nil, nil
}

func ownerOf(stmt *core.Statement, table string) string {
	if table == "" {
		return stmt.Table
	}
	return table
}

func rootID(scope []*core.Statement) string {
	return scope[0].ID()
}
