package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/internal/cascade"
	"github.com/leapstack-labs/querygen/internal/loader"
	"github.com/leapstack-labs/querygen/internal/lookup"
	"github.com/leapstack-labs/querygen/internal/schema"
	"github.com/leapstack-labs/querygen/internal/sharedresult"
	"github.com/leapstack-labs/querygen/internal/typeinfer"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// ResolveOptions configures Resolve.
type ResolveOptions struct {
	RunID string
	// Naming is the default property naming strategy; statements may pick
	// their own with propertyNameGenerator.
	Naming annotation.NamingStrategy
	Logger *slog.Logger
}

// runContext holds everything scoped to one resolution pass. Nothing in it
// outlives the pass.
type runContext struct {
	catalog *schema.Catalog
	cascade *cascade.Resolver
	infer   *typeinfer.Engine
	shared  *sharedresult.Manager
	naming  annotation.NamingStrategy
	logger  *slog.Logger
}

// Resolve runs the full resolution pass over set against catalog. View
// skeletons in set are attached to catalog first. The pass stops at the
// first error.
func Resolve(ctx context.Context, catalog *schema.Catalog, set *loader.Set, opts ResolveOptions) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	naming := opts.Naming
	if naming == "" {
		naming = annotation.NamingLowerCamel
	}

	for _, v := range set.Views {
		if err := catalog.AttachViewSelect(v.Name, v.Select); err != nil {
			return nil, fmt.Errorf("%s: %w", v.File, err)
		}
	}

	cas := cascade.New(catalog)
	if err := cas.Validate(); err != nil {
		return nil, err
	}

	rc := &runContext{
		catalog: catalog,
		cascade: cas,
		infer: typeinfer.New(typeinfer.Config{
			Lookup:   lookup.New(catalog),
			Resolver: schema.NewResolver(catalog),
			Logger:   logger,
		}),
		shared: sharedresult.NewManager(logger),
		naming: naming,
		logger: logger,
	}

	res := &Result{RunID: opts.RunID, Statements: make([]Statement, 0, len(set.Statements))}
	for _, stmt := range set.Statements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := rc.resolveStatement(stmt)
		if err != nil {
			return nil, err
		}
		res.Statements = append(res.Statements, *out)
	}

	// Declarations adopted from later statements apply to earlier ones too.
	for i := range res.Statements {
		s := &res.Statements[i]
		if s.SharedResult == "" {
			continue
		}
		s.Implements, _ = rc.shared.EffectiveImplements(s.Namespace, s.SharedResult)
		s.ExcludeOverrideFields, _ = rc.shared.EffectiveExcludeOverrideFields(s.Namespace, s.SharedResult)
	}
	for _, rec := range rc.shared.Records() {
		sr := SharedResult{
			Namespace:  rec.Key.Namespace,
			Name:       rec.Key.Name,
			Canonical:  rec.Canonical,
			Statements: rec.Statements,
			Fields:     rec.Fields,
		}
		sr.Implements, _ = rc.shared.EffectiveImplements(rec.Key.Namespace, rec.Key.Name)
		sr.ExcludeOverrideFields, _ = rc.shared.EffectiveExcludeOverrideFields(rec.Key.Namespace, rec.Key.Name)
		res.SharedResults = append(res.SharedResults, sr)
	}

	logger.Info("resolution complete",
		slog.Int("statements", len(res.Statements)),
		slog.Int("shared_results", len(res.SharedResults)))
	return res, nil
}

func (rc *runContext) resolveStatement(stmt *core.Statement) (*Statement, error) {
	ann, err := rc.infer.StatementAnnotations(stmt)
	if err != nil {
		return nil, err
	}
	so, err := annotation.DecodeStatement(ann.Statement)
	if err != nil {
		return nil, locate(err, stmt)
	}
	rc.logUnknownKeys(stmt, ann)

	naming := rc.naming
	if so.PropertyNameGenerator != "" {
		naming = so.PropertyNameGenerator
	}
	name := stmt.Name
	if so.Name != "" {
		name = so.Name
	}

	out := &Statement{
		ID:                stmt.ID(),
		Name:              name,
		Namespace:         stmt.Namespace,
		Kind:              stmt.Kind,
		File:              stmt.File,
		SQL:               stmt.SQL,
		SharedResult:      so.SharedResult,
		Implements:        so.Implements,
		CollectionKey:     so.CollectionKey,
		EnableSync:        so.EnableSync,
		SyncKeyColumnName: so.SyncKeyColumnName,
		Annotations:       ann.Statement.Export(),
	}

	unique, binding := rc.infer.Parameters(stmt)
	out.BindingOrder = binding
	for _, p := range unique {
		r, err := rc.infer.ResolveParameter(stmt, p)
		if err != nil {
			return nil, err
		}
		out.Parameters = append(out.Parameters, Parameter{
			Name:         p,
			PropertyName: annotation.PropertyName(p, r.Overrides, naming),
			Type:         r.Type,
			Source:       sourceOf(r.Source),
			Annotations:  r.Annotations.Export(),
		})
	}

	if stmt.Kind == core.KindSelect {
		fields, err := rc.resolveFields(stmt, ann, naming)
		if err != nil {
			return nil, err
		}
		out.Fields = fields
	} else if len(stmt.Fields) > 0 {
		rc.logger.Debug("ignoring result fields of a mutation", slog.String("statement", stmt.ID()))
	}

	if err := validateStatement(stmt, so, out); err != nil {
		return nil, err
	}

	out.AffectedTables = rc.cascade.AffectedTables(stmt).Sorted()

	if so.SharedResult != "" {
		reg := sharedresult.Registration{
			Key:                   sharedresult.Key{Namespace: stmt.Namespace, Name: so.SharedResult},
			Statement:             stmt.ID(),
			Implements:            so.Implements,
			ExcludeOverrideFields: so.ExcludeOverrideFields,
		}
		for _, f := range out.Fields {
			reg.Fields = append(reg.Fields, sharedresult.Field{Name: f.Name, Type: f.Type})
		}
		if _, err := rc.shared.Register(reg); err != nil {
			return nil, err
		}
	}

	rc.logger.Debug("statement resolved",
		slog.String("statement", stmt.ID()),
		slog.Int("parameters", len(out.Parameters)),
		slog.Int("fields", len(out.Fields)),
		slog.Any("affected_tables", out.AffectedTables))
	return out, nil
}

// resolveFields types the select fields, then any dynamic fields declared
// by annotation, in declaration order.
func (rc *runContext) resolveFields(stmt *core.Statement, ann *annotation.Annotations, naming annotation.NamingStrategy) ([]Field, error) {
	names := make([]string, 0, len(stmt.Fields))
	for _, f := range stmt.Fields {
		names = append(names, f.Name)
	}
	for _, name := range ann.FieldOrder {
		if stmt.Field(name) == nil && ann.Field(name).Has(annotation.KeyDynamicField) {
			names = append(names, name)
		}
	}

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		r, err := rc.infer.ResolveField(stmt, name)
		if err != nil {
			return nil, err
		}
		fo := r.Overrides
		fields = append(fields, Field{
			Name:          name,
			PropertyName:  annotation.PropertyName(name, fo, naming),
			Type:          r.Type,
			Source:        sourceOf(r.Source),
			Dynamic:       fo.Dynamic,
			MappingType:   string(fo.MappingType),
			CollectionKey: fo.CollectionKey,
			SourceTable:   fo.SourceTable,
			AliasPrefix:   fo.AliasPrefix,
			DefaultValue:  fo.DefaultValue,
			Annotations:   r.Annotations.Export(),
		})
	}
	return fields, nil
}

// validateStatement checks statement-level annotations against the
// resolved shape.
func validateStatement(stmt *core.Statement, so annotation.StatementOverrides, out *Statement) error {
	if so.SharedResult != "" && stmt.Kind != core.KindSelect {
		return fmt.Errorf("%w: statement %s: %s is only allowed on select statements",
			core.ErrConsistency, stmt.ID(), annotation.KeySharedResult)
	}
	if so.CollectionKey != "" && !hasField(out.Fields, so.CollectionKey) {
		return fmt.Errorf("%w: statement %s: collectionKey %q is not a result field",
			core.ErrConsistency, stmt.ID(), so.CollectionKey)
	}
	if so.EnableSync && so.SyncKeyColumnName != "" && !hasField(out.Fields, so.SyncKeyColumnName) {
		return fmt.Errorf("%w: statement %s: syncKeyColumnName %q is not a result field",
			core.ErrConsistency, stmt.ID(), so.SyncKeyColumnName)
	}
	for _, f := range out.Fields {
		if f.CollectionKey != "" && !hasField(out.Fields, f.CollectionKey) {
			return fmt.Errorf("%w: statement %s: field %s: collectionKey %q is not a result field",
				core.ErrConsistency, stmt.ID(), f.Name, f.CollectionKey)
		}
	}
	return nil
}

func (rc *runContext) logUnknownKeys(stmt *core.Statement, ann *annotation.Annotations) {
	if keys := annotation.UnknownStatementKeys(ann.Statement); len(keys) > 0 {
		rc.logger.Debug("keeping unknown statement annotations",
			slog.String("statement", stmt.ID()), slog.Any("keys", keys))
	}
	for _, name := range ann.FieldOrder {
		if keys := annotation.UnknownFieldKeys(ann.Field(name)); len(keys) > 0 {
			rc.logger.Debug("keeping unknown field annotations",
				slog.String("statement", stmt.ID()), slog.String("field", name), slog.Any("keys", keys))
		}
	}
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func sourceOf(m *lookup.Match) string {
	if m == nil {
		return ""
	}
	return m.Table + "." + m.Column.Name
}

// locate attaches the statement to an annotation parse error.
func locate(err error, stmt *core.Statement) error {
	var pe *annotation.ParseError
	if errors.As(err, &pe) {
		cp := *pe
		cp.File, cp.Statement = stmt.File, stmt.ID()
		return &cp
	}
	return err
}
