// Package loader reads statement and view skeleton documents and scans SQL
// text for comments and named parameters.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/querygen/pkg/core"
	"gopkg.in/yaml.v3"
)

// Set is everything loaded from a queries directory. Statements are in
// processing order: namespace, then file, lexically.
type Set struct {
	Statements []*core.Statement
	Views      []ViewSkeleton
}

// ViewSkeleton is the SELECT skeleton of one database view.
type ViewSkeleton struct {
	Name   string
	Select *core.ViewSelect
	File   string
}

// statementYAML is a statement skeleton document.
type statementYAML struct {
	Name         string                     `yaml:"name"`
	Kind         string                     `yaml:"kind"`
	SQL          string                     `yaml:"sql"`
	Table        string                     `yaml:"table"`
	Joins        []string                   `yaml:"joins"`
	Aliases      map[string]string          `yaml:"aliases"`
	Fields       []fieldYAML                `yaml:"fields"`
	Parameters   []string                   `yaml:"parameters"`
	ParamColumns map[string]paramColumnYAML `yaml:"param_columns"`
	With         []statementYAML            `yaml:"with"`
	Limit        string                     `yaml:"limit"`
	Offset       string                     `yaml:"offset"`
	Comments     []string                   `yaml:"comments"`
}

type fieldYAML struct {
	Name       string `yaml:"name"`
	Table      string `yaml:"table"`
	Column     string `yaml:"column"`
	Type       string `yaml:"type"`
	Expression bool   `yaml:"expression"`
}

type paramColumnYAML struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
	Kind   string `yaml:"kind"`
}

type viewsYAML struct {
	Views []viewYAML `yaml:"views"`
}

type viewYAML struct {
	Name    string            `yaml:"name"`
	Table   string            `yaml:"table"`
	Joins   []string          `yaml:"joins"`
	Aliases map[string]string `yaml:"aliases"`
	Fields  []fieldYAML       `yaml:"fields"`
}

var statementFields = map[string]bool{
	"name": true, "kind": true, "sql": true, "table": true, "joins": true, "aliases": true,
	"fields": true, "parameters": true, "param_columns": true, "with": true, "limit": true,
	"offset": true, "comments": true,
}

// Loader reads skeleton documents.
type Loader struct {
	logger *slog.Logger
}

// New creates a Loader.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// LoadDir reads <dir>/<namespace>/*.yaml and *.yml. Hidden entries are
// skipped. Documents directly under dir are an error: every statement
// belongs to a namespace.
func (l *Loader) LoadDir(dir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: queries directory %s: %w", core.ErrConfiguration, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: queries directory %s is not a directory", core.ErrConfiguration, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, dir, err)
	}

	set := &Set{}
	seen := make(map[string]string)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() {
			if isDocument(e.Name()) {
				return nil, fmt.Errorf("%w: %s: documents must live in a namespace directory",
					core.ErrConfiguration, filepath.Join(dir, e.Name()))
			}
			continue
		}
		if err := l.loadNamespace(filepath.Join(dir, e.Name()), e.Name(), set, seen); err != nil {
			return nil, err
		}
	}
	l.logger.Debug("skeletons loaded",
		slog.String("dir", dir),
		slog.Int("statements", len(set.Statements)),
		slog.Int("views", len(set.Views)))
	return set, nil
}

func (l *Loader) loadNamespace(dir, namespace string, set *Set, seen map[string]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") && isDocument(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
		stmt, views, err := ParseDocument(content, path, namespace)
		if err != nil {
			return err
		}
		set.Views = append(set.Views, views...)
		if stmt == nil {
			continue
		}
		if prev, dup := seen[stmt.ID()]; dup {
			return fmt.Errorf("%w: statement %s is declared in both %s and %s", core.ErrConsistency, stmt.ID(), prev, path)
		}
		seen[stmt.ID()] = path
		set.Statements = append(set.Statements, stmt)
	}
	return nil
}

// ParseDocument decodes one skeleton document. A document with a top-level
// `views` key holds view skeletons; anything else is one statement whose
// name defaults to the file name.
func ParseDocument(content []byte, path, namespace string) (*core.Statement, []ViewSkeleton, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, nil, &ParseError{File: path, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if len(raw) == 0 {
		return nil, nil, &ParseError{File: path, Message: "empty document"}
	}

	if _, ok := raw["views"]; ok {
		for field := range raw {
			if field != "views" {
				return nil, nil, &UnknownFieldError{File: path, Field: field}
			}
		}
		var doc viewsYAML
		if err := decodeStrict(content, &doc); err != nil {
			return nil, nil, &ParseError{File: path, Message: err.Error()}
		}
		views, err := convertViews(doc.Views, path)
		return nil, views, err
	}

	for field := range raw {
		if !statementFields[field] {
			return nil, nil, &UnknownFieldError{File: path, Field: field}
		}
	}
	var doc statementYAML
	if err := decodeStrict(content, &doc); err != nil {
		return nil, nil, &ParseError{File: path, Message: err.Error()}
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	stmt, err := convertStatement(doc, path, namespace)
	if err != nil {
		return nil, nil, err
	}
	return stmt, nil, nil
}

// decodeStrict decodes content rejecting unknown keys at every level.
func decodeStrict(content []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	return dec.Decode(out)
}

func convertStatement(doc statementYAML, path, namespace string) (*core.Statement, error) {
	fail := func(format string, args ...any) error {
		return &ParseError{File: path, Message: fmt.Sprintf("statement %s: ", doc.Name) + fmt.Sprintf(format, args...)}
	}

	kind := core.StatementKind(strings.ToLower(doc.Kind))
	if kind == "" {
		kind = core.KindSelect
	}
	if !kind.Valid() {
		return nil, fail("unknown kind %q (want select, insert, update or delete)", doc.Kind)
	}

	stmt := &core.Statement{
		Name:        doc.Name,
		Namespace:   namespace,
		Kind:        kind,
		SQL:         doc.SQL,
		Table:       doc.Table,
		Joins:       doc.Joins,
		Aliases:     doc.Aliases,
		Parameters:  doc.Parameters,
		LimitParam:  doc.Limit,
		OffsetParam: doc.Offset,
		Comments:    doc.Comments,
		File:        path,
	}
	if stmt.Comments == nil && stmt.SQL != "" {
		stmt.Comments = ScanComments(stmt.SQL)
	}
	if stmt.Parameters == nil && stmt.SQL != "" {
		stmt.Parameters = ScanParameters(stmt.SQL)
	}

	fields, err := convertFields(doc.Fields)
	if err != nil {
		return nil, fail("%v", err)
	}
	stmt.Fields = fields

	if len(doc.ParamColumns) > 0 {
		stmt.ParamColumns = make(map[string]core.ParamAssociation, len(doc.ParamColumns))
		for name, pc := range doc.ParamColumns {
			k := core.AssociationKind(pc.Kind)
			switch k {
			case "":
				k = core.AssocDefault
			case core.AssocDefault, core.AssocCollection:
			default:
				return nil, fail("parameter %s: unknown association kind %q (want default or collection)", name, pc.Kind)
			}
			if pc.Column == "" {
				return nil, fail("parameter %s: column is required", name)
			}
			stmt.ParamColumns[name] = core.ParamAssociation{Table: pc.Table, Column: pc.Column, Kind: k}
		}
	}

	for _, w := range doc.With {
		if w.Name == "" {
			return nil, fail("WITH sub-select without a name")
		}
		if w.Kind == "" {
			w.Kind = string(core.KindSelect)
		}
		sub, err := convertStatement(w, path, namespace)
		if err != nil {
			return nil, err
		}
		stmt.With = append(stmt.With, sub)
	}
	return stmt, nil
}

func convertViews(docs []viewYAML, path string) ([]ViewSkeleton, error) {
	out := make([]ViewSkeleton, 0, len(docs))
	for _, v := range docs {
		if v.Name == "" {
			return nil, &ParseError{File: path, Message: "view skeleton without a name"}
		}
		fields, err := convertFields(v.Fields)
		if err != nil {
			return nil, &ParseError{File: path, Message: fmt.Sprintf("view %s: %v", v.Name, err)}
		}
		out = append(out, ViewSkeleton{
			Name: v.Name,
			File: path,
			Select: &core.ViewSelect{
				Table:   v.Table,
				Joins:   v.Joins,
				Aliases: v.Aliases,
				Fields:  fields,
			},
		})
	}
	return out, nil
}

func convertFields(docs []fieldYAML) ([]core.FieldSource, error) {
	var out []core.FieldSource
	seen := make(map[string]bool, len(docs))
	for _, f := range docs {
		if f.Name == "" {
			return nil, errors.New("field without a name")
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !f.Expression && f.Column == "" {
			f.Column = f.Name
		}
		out = append(out, core.FieldSource{
			Name:         f.Name,
			Table:        f.Table,
			Column:       f.Column,
			DeclaredType: f.Type,
			Expression:   f.Expression,
		})
	}
	return out, nil
}

func isDocument(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// WatchDirs returns dir and every namespace directory under it, for
// filesystem watching.
func WatchDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, dir, err)
	}
	dirs := []string{dir}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}
