// Package typeinfer resolves the output type of statement parameters and
// result fields from the schema, annotation overrides and the statement
// structure.
package typeinfer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/internal/lookup"
	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// Config wires an Engine to one run's schema.
type Config struct {
	Lookup   *lookup.Lookup
	Resolver *schema.Resolver
	Logger   *slog.Logger
}

// Resolved is the outcome of typing one parameter or field. Values returned
// by the Engine are shared between calls and must not be modified.
type Resolved struct {
	Name string
	Type core.TypeDescriptor
	// Annotations is the merged annotation map: table column, then each
	// traversed view field, then the statement's own field annotations.
	Annotations core.AnnotationMap
	Overrides   annotation.FieldOverrides
	// Source is nil when no schema column backs the value.
	Source *lookup.Match
}

// Engine infers types for one generation run. Results are memoized per
// statement and name, so repeated questions get identical answers.
type Engine struct {
	lookup   *lookup.Lookup
	resolver *schema.Resolver
	logger   *slog.Logger

	cache       map[cacheKey]*Resolved
	annotations map[string]*annotation.Annotations
}

type cacheKey struct {
	statement string
	kind      string
	name      string
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		lookup:      cfg.Lookup,
		resolver:    cfg.Resolver,
		logger:      logger,
		cache:       make(map[cacheKey]*Resolved),
		annotations: make(map[string]*annotation.Annotations),
	}
}

// StatementAnnotations extracts the annotations of stmt's comments once per
// run.
func (e *Engine) StatementAnnotations(stmt *core.Statement) (*annotation.Annotations, error) {
	if a, ok := e.annotations[stmt.ID()]; ok {
		return a, nil
	}
	a, err := annotation.Extract(stmt.Comments)
	if err != nil {
		var pe *annotation.ParseError
		if errors.As(err, &pe) {
			cp := *pe
			cp.File, cp.Statement = stmt.File, stmt.ID()
			return nil, &cp
		}
		return nil, err
	}
	e.annotations[stmt.ID()] = a
	return a, nil
}

// InferParameterType returns the type of a named parameter.
func (e *Engine) InferParameterType(stmt *core.Statement, param string) (core.TypeDescriptor, error) {
	r, err := e.ResolveParameter(stmt, param)
	if err != nil {
		return core.TypeDescriptor{}, err
	}
	return r.Type, nil
}

// InferFieldType returns the type of a select result field or a dynamic
// field.
func (e *Engine) InferFieldType(stmt *core.Statement, field string) (core.TypeDescriptor, error) {
	r, err := e.ResolveField(stmt, field)
	if err != nil {
		return core.TypeDescriptor{}, err
	}
	return r.Type, nil
}

// ResolveParameter types a parameter. In order: LIMIT and OFFSET are
// non-nullable int64; otherwise the associated column decides, wrapped in a
// collection for IN lists; without a column the type is a non-nullable
// string.
func (e *Engine) ResolveParameter(stmt *core.Statement, param string) (*Resolved, error) {
	key := cacheKey{statement: stmt.ID(), kind: "param", name: param}
	if r, ok := e.cache[key]; ok {
		return r, nil
	}

	r, err := e.resolveParameter(stmt, param)
	if err != nil {
		return nil, err
	}
	e.cache[key] = r
	return r, nil
}

func (e *Engine) resolveParameter(stmt *core.Statement, param string) (*Resolved, error) {
	if stmt.IsLimitOrOffset(param) {
		return &Resolved{Name: param, Type: core.TypeDescriptor{Base: core.TypeInt64}}, nil
	}

	m, err := e.lookup.FindColumnForParameter(stmt, param)
	if err != nil {
		return nil, err
	}
	if m == nil {
		e.logger.Debug("parameter has no column, typing as string",
			slog.String("statement", stmt.ID()), slog.String("param", param))
		return &Resolved{Name: param, Type: core.TypeDescriptor{Base: core.TypeString}}, nil
	}

	ann, err := e.StatementAnnotations(stmt)
	if err != nil {
		return nil, err
	}
	layers := e.columnLayers(m)
	layers = append(layers, ann.Field(m.Column.Name))
	if param != m.Column.Name {
		layers = append(layers, ann.Field(param))
	}

	r, err := e.describeColumn(stmt, param, m, layers)
	if err != nil {
		return nil, err
	}
	if m.Kind == core.AssocCollection {
		r.Type.Collection = true
	}
	return r, nil
}

// ResolveField types a result field.
func (e *Engine) ResolveField(stmt *core.Statement, field string) (*Resolved, error) {
	key := cacheKey{statement: stmt.ID(), kind: "field", name: field}
	if r, ok := e.cache[key]; ok {
		return r, nil
	}

	r, err := e.resolveField(stmt, field)
	if err != nil {
		return nil, err
	}
	e.cache[key] = r
	return r, nil
}

func (e *Engine) resolveField(stmt *core.Statement, field string) (*Resolved, error) {
	ann, err := e.StatementAnnotations(stmt)
	if err != nil {
		return nil, err
	}

	f := stmt.Field(field)
	if f == nil {
		own := ann.Field(field)
		if own == nil || !own.Has(annotation.KeyDynamicField) {
			return nil, fmt.Errorf("%w: statement %s has no field %q", core.ErrConsistency, stmt.ID(), field)
		}
		return e.describeDynamic(stmt, field, own)
	}

	if f.Expression {
		return e.describeDetached(stmt, f, ann.Field(field))
	}

	m, err := e.lookup.FindColumnForField(stmt, field)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return e.describeDetached(stmt, f, ann.Field(field))
	}

	layers := e.columnLayers(m)
	if f.Column != "" && f.Column != field {
		layers = append(layers, ann.Field(f.Column))
	}
	layers = append(layers, ann.Field(field))
	return e.describeColumn(stmt, field, m, layers)
}

// columnLayers returns the schema annotation layers behind a match: the
// table column first, then each view field on the way out.
func (e *Engine) columnLayers(m *lookup.Match) []core.AnnotationMap {
	layers := []core.AnnotationMap{m.Column.Annotations}
	for _, hop := range m.Views {
		if a, ok := e.resolver.Resolve(hop.View, hop.Field); ok {
			layers = append(layers, a)
		}
	}
	return layers
}

func (e *Engine) describeColumn(stmt *core.Statement, name string, m *lookup.Match, layers []core.AnnotationMap) (*Resolved, error) {
	merged := annotation.MergeAll(layers...)
	fo, err := decodeField(stmt, name, merged)
	if err != nil {
		return nil, err
	}
	base, known := MapSQLType(m.Column.Type)
	if !known {
		e.logger.Debug("unrecognized SQL type, typing as string",
			slog.String("statement", stmt.ID()), slog.String("name", name), slog.String("sql_type", m.Column.Type))
	}
	return &Resolved{
		Name:        name,
		Type:        applyOverrides(core.TypeDescriptor{Base: base, Nullable: !m.Column.NotNull}, fo),
		Annotations: merged,
		Overrides:   fo,
		Source:      m,
	}, nil
}

// describeDetached types a field with no schema column: a computed
// expression or a column of an unknown source. Such fields are nullable
// unless annotated otherwise.
func (e *Engine) describeDetached(stmt *core.Statement, f *core.FieldSource, own core.AnnotationMap) (*Resolved, error) {
	merged := annotation.MergeAll(own)
	fo, err := decodeField(stmt, f.Name, merged)
	if err != nil {
		return nil, err
	}
	base, _ := MapSQLType(f.DeclaredType)
	return &Resolved{
		Name:        f.Name,
		Type:        applyOverrides(core.TypeDescriptor{Base: base, Nullable: true}, fo),
		Annotations: merged,
		Overrides:   fo,
	}, nil
}

// describeDynamic types a field populated after the query runs. Its type
// comes entirely from propertyType.
func (e *Engine) describeDynamic(stmt *core.Statement, field string, own core.AnnotationMap) (*Resolved, error) {
	merged := annotation.MergeAll(own)
	fo, err := decodeField(stmt, field, merged)
	if err != nil {
		return nil, err
	}
	if fo.PropertyType == "" {
		return nil, fmt.Errorf("%w: statement %s: dynamic field %q needs a propertyType", core.ErrConsistency, stmt.ID(), field)
	}
	if fo.MappingType == annotation.MappingCollection && fo.CollectionKey == "" {
		so, err := annotation.DecodeStatement(e.annotations[stmt.ID()].Statement)
		if err != nil {
			return nil, err
		}
		if so.CollectionKey == "" {
			return nil, fmt.Errorf("%w: statement %s: dynamic field %q maps a collection but no collectionKey is declared",
				core.ErrConsistency, stmt.ID(), field)
		}
	}
	d := core.TypeDescriptor{
		Base:         core.TypeCustom,
		PropertyType: fo.PropertyType,
		Nullable:     fo.NotNull != nil && !*fo.NotNull,
		Collection:   fo.MappingType == annotation.MappingCollection,
		Adapter:      fo.AdapterRequested(),
	}
	return &Resolved{Name: field, Type: d, Annotations: merged, Overrides: fo}, nil
}

// applyOverrides layers decoded field overrides onto a schema-derived type.
func applyOverrides(d core.TypeDescriptor, fo annotation.FieldOverrides) core.TypeDescriptor {
	if fo.NotNull != nil {
		d.Nullable = !*fo.NotNull
	}
	if fo.PropertyType != "" {
		d.PropertyType = fo.PropertyType
		if !d.Base.IsNative(fo.PropertyType) {
			d.Adapter = true
		}
	}
	if fo.AdapterRequested() {
		d.Adapter = true
	}
	return d
}

func decodeField(stmt *core.Statement, name string, m core.AnnotationMap) (annotation.FieldOverrides, error) {
	fo, err := annotation.DecodeField(m)
	if err != nil {
		var pe *annotation.ParseError
		if errors.As(err, &pe) {
			cp := *pe
			cp.File, cp.Statement = stmt.File, stmt.ID()
			cp.Message = fmt.Sprintf("field %s: %s", name, pe.Message)
			return fo, &cp
		}
	}
	return fo, err
}

// Parameters returns the distinct parameter names of stmt in first-binding
// order, together with the full binding order. Duplicate names share one
// type.
func (e *Engine) Parameters(stmt *core.Statement) (unique, binding []string) {
	binding = append([]string(nil), stmt.Parameters...)
	seen := make(map[string]bool, len(binding))
	for _, p := range binding {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	return unique, binding
}
