// Package schema holds the tables and views of the SQLite schema a
// generation run is checked against, and resolves the annotations declared
// on their columns.
package schema

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// Catalog maps table and view names to their definitions.
// Names are matched exactly (case-sensitive).
type Catalog struct {
	tables map[string]*core.Table
	views  map[string]*core.View
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tables: make(map[string]*core.Table),
		views:  make(map[string]*core.View),
	}
}

// AddTable registers a table, replacing any table of the same name.
func (c *Catalog) AddTable(t *core.Table) {
	c.tables[t.Name] = t
}

// AddView registers a view, replacing any view of the same name.
func (c *Catalog) AddView(v *core.View) {
	c.views[v.Name] = v
}

// Table returns the named table.
func (c *Catalog) Table(name string) (*core.Table, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// View returns the named view.
func (c *Catalog) View(name string) (*core.View, bool) {
	v, ok := c.views[name]
	return v, ok
}

// IsTable reports whether name is a known table.
func (c *Catalog) IsTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// IsView reports whether name is a known view.
func (c *Catalog) IsView(name string) bool {
	_, ok := c.views[name]
	return ok
}

// Tables returns all tables sorted by name.
func (c *Catalog) Tables() []*core.Table {
	out := make([]*core.Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Views returns all views sorted by name.
func (c *Catalog) Views() []*core.View {
	out := make([]*core.View, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AttachViewSelect binds the parsed SELECT skeleton of a view. It must be
// called before the catalog is handed to a run.
func (c *Catalog) AttachViewSelect(name string, sel *core.ViewSelect) error {
	v, ok := c.views[name]
	if !ok {
		return fmt.Errorf("%w: view skeleton %q has no matching view in the schema", core.ErrConsistency, name)
	}
	for _, f := range sel.Fields {
		if v.Column(f.Name) == nil {
			return fmt.Errorf("%w: view %s: skeleton field %q is not a column of the view", core.ErrConsistency, name, f.Name)
		}
	}
	v.Select = sel
	return nil
}

// UnderlyingTables returns the tables a view reads from, following views
// over views. Unknown names are returned as they are.
func (c *Catalog) UnderlyingTables(view string) []string {
	seen := map[string]bool{}
	var out []string
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		v, ok := c.views[name]
		if !ok {
			out = append(out, name)
			return
		}
		if v.Select == nil {
			return
		}
		visit(v.Select.ResolveAlias(v.Select.Table))
		for _, j := range v.Select.Joins {
			visit(v.Select.ResolveAlias(j))
		}
	}
	visit(view)
	sort.Strings(out)
	return out
}
