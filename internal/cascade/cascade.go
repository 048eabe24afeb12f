// Package cascade computes the set of tables a statement should be reported
// as affecting, following cascadeNotify declarations transitively.
package cascade

import (
	"fmt"

	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// UnknownTargetError reports a cascadeNotify entry naming a table the
// schema does not have.
type UnknownTargetError struct {
	Table  string
	Op     core.CascadeOp
	Target string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("table %s: cascadeNotify %s names unknown table %q", e.Table, e.Op, e.Target)
}

// Is makes UnknownTargetError match core.ErrConsistency.
func (e *UnknownTargetError) Is(target error) bool {
	return target == core.ErrConsistency
}

// Resolver answers affected-table questions against one catalog.
type Resolver struct {
	catalog *schema.Catalog
	graphs  map[core.CascadeOp]*Graph
}

// New builds one graph per cascade operation from every table's
// cascadeNotify declaration.
func New(catalog *schema.Catalog) *Resolver {
	r := &Resolver{catalog: catalog, graphs: make(map[core.CascadeOp]*Graph, len(core.CascadeOps))}
	for _, op := range core.CascadeOps {
		g := NewGraph()
		for _, t := range catalog.Tables() {
			for _, target := range t.Cascade[op] {
				g.AddEdge(t.Name, target)
			}
		}
		r.graphs[op] = g
	}
	return r
}

// Validate reports the first cascadeNotify target that is not a known table.
func (r *Resolver) Validate() error {
	for _, t := range r.catalog.Tables() {
		for _, op := range core.CascadeOps {
			for _, target := range t.Cascade[op] {
				if !r.catalog.IsTable(target) {
					return &UnknownTargetError{Table: t.Name, Op: op, Target: target}
				}
			}
		}
	}
	return nil
}

// AffectedTables returns the tables stmt touches. A select touches its
// source and joined tables, looking through WITH sub-selects and views. A
// mutation touches its target table plus everything reachable through the
// target's cascade declarations for the statement's operation.
func (r *Resolver) AffectedTables(stmt *core.Statement) Set {
	op, mutating := stmt.Kind.CascadeOp()
	if !mutating {
		out := make(Set)
		r.selectTables(nil, stmt, out, make(map[*core.Statement]bool))
		return out
	}
	target := stmt.ResolveAlias(stmt.Table)
	if target == "" {
		return make(Set)
	}
	return r.Closure(op, target)
}

// Closure returns table plus every table reachable from it over op's edges.
func (r *Resolver) Closure(op core.CascadeOp, table string) Set {
	g, ok := r.graphs[op]
	if !ok {
		return NewSet(table)
	}
	return g.Reachable([]string{table})
}

func (r *Resolver) selectTables(outer []*core.Statement, stmt *core.Statement, out Set, seen map[*core.Statement]bool) {
	if seen[stmt] {
		return
	}
	seen[stmt] = true
	scope := append(append([]*core.Statement(nil), outer...), stmt)

	names := make([]string, 0, 1+len(stmt.Joins))
	if stmt.Table != "" {
		names = append(names, stmt.Table)
	}
	names = append(names, stmt.Joins...)

	for _, n := range names {
		name := stmt.ResolveAlias(n)
		if w, wscope := findWith(scope, name); w != nil {
			r.selectTables(wscope, w, out, seen)
			continue
		}
		if r.catalog.IsView(name) {
			if under := r.catalog.UnderlyingTables(name); len(under) > 0 {
				for _, t := range under {
					out.Add(t)
				}
				continue
			}
		}
		out.Add(name)
	}
}

func findWith(scope []*core.Statement, name string) (*core.Statement, []*core.Statement) {
	for i := len(scope) - 1; i >= 0; i-- {
		if w := scope[i].WithClause(name); w != nil {
			return w, scope[:i+1]
		}
	}
	return nil, nil
}
