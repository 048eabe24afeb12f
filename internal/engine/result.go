package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/querygen/internal/sharedresult"
	"github.com/leapstack-labs/querygen/pkg/core"
	"gopkg.in/yaml.v3"
)

// Result is the resolved metadata of one generation run, handed to the
// code emitter.
type Result struct {
	RunID         string         `json:"runId" yaml:"runId"`
	Statements    []Statement    `json:"statements" yaml:"statements"`
	SharedResults []SharedResult `json:"sharedResults,omitempty" yaml:"sharedResults,omitempty"`
}

// Statement is one resolved statement.
type Statement struct {
	ID        string             `json:"id" yaml:"id"`
	Name      string             `json:"name" yaml:"name"`
	Namespace string             `json:"namespace" yaml:"namespace"`
	Kind      core.StatementKind `json:"kind" yaml:"kind"`
	File      string             `json:"file,omitempty" yaml:"file,omitempty"`
	SQL       string             `json:"sql,omitempty" yaml:"sql,omitempty"`
	// Parameters holds each distinct parameter once, in first-binding order.
	Parameters []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// BindingOrder lists parameter names per placeholder, duplicates included.
	BindingOrder   []string `json:"bindingOrder,omitempty" yaml:"bindingOrder,omitempty"`
	Fields         []Field  `json:"fields,omitempty" yaml:"fields,omitempty"`
	AffectedTables []string `json:"affectedTables" yaml:"affectedTables"`

	SharedResult          string   `json:"sharedResult,omitempty" yaml:"sharedResult,omitempty"`
	Implements            string   `json:"implements,omitempty" yaml:"implements,omitempty"`
	ExcludeOverrideFields []string `json:"excludeOverrideFields,omitempty" yaml:"excludeOverrideFields,omitempty"`
	CollectionKey         string   `json:"collectionKey,omitempty" yaml:"collectionKey,omitempty"`
	EnableSync            bool     `json:"enableSync,omitempty" yaml:"enableSync,omitempty"`
	SyncKeyColumnName     string   `json:"syncKeyColumnName,omitempty" yaml:"syncKeyColumnName,omitempty"`

	Annotations map[string]any `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Parameter is one resolved named parameter.
type Parameter struct {
	Name         string              `json:"name" yaml:"name"`
	PropertyName string              `json:"propertyName" yaml:"propertyName"`
	Type         core.TypeDescriptor `json:"type" yaml:"type"`
	// Source is "table.column" when a schema column backs the parameter.
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Annotations map[string]any `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Field is one resolved result field.
type Field struct {
	Name         string              `json:"name" yaml:"name"`
	PropertyName string              `json:"propertyName" yaml:"propertyName"`
	Type         core.TypeDescriptor `json:"type" yaml:"type"`
	Source       string              `json:"source,omitempty" yaml:"source,omitempty"`
	// Dynamic fields are populated by the generated code, not by a column.
	Dynamic       bool           `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	MappingType   string         `json:"mappingType,omitempty" yaml:"mappingType,omitempty"`
	CollectionKey string         `json:"collectionKey,omitempty" yaml:"collectionKey,omitempty"`
	SourceTable   string         `json:"sourceTable,omitempty" yaml:"sourceTable,omitempty"`
	AliasPrefix   string         `json:"aliasPrefix,omitempty" yaml:"aliasPrefix,omitempty"`
	DefaultValue  string         `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Annotations   map[string]any `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// SharedResult is the canonical record of a shared result type.
type SharedResult struct {
	Namespace             string               `json:"namespace" yaml:"namespace"`
	Name                  string               `json:"name" yaml:"name"`
	Canonical             string               `json:"canonical" yaml:"canonical"`
	Statements            []string             `json:"statements" yaml:"statements"`
	Fields                []sharedresult.Field `json:"fields" yaml:"fields"`
	Implements            string               `json:"implements,omitempty" yaml:"implements,omitempty"`
	ExcludeOverrideFields []string             `json:"excludeOverrideFields,omitempty" yaml:"excludeOverrideFields,omitempty"`
}

// Statement returns the resolved statement with the given ID, or nil.
func (r *Result) Statement(id string) *Statement {
	for i := range r.Statements {
		if r.Statements[i].ID == id {
			return &r.Statements[i]
		}
	}
	return nil
}

// Format is an output encoding for a Result.
type Format string

// Output formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q (want json or yaml)", core.ErrConfiguration, s)
}

// Encode writes r to w.
func (r *Result) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	}
}

// WriteFile writes r to path, or to stdout when path is "-". The file is
// replaced atomically so a failed write never leaves partial output.
func (r *Result) WriteFile(path string, format Format) error {
	if path == "" || path == "-" {
		return r.Encode(os.Stdout, format)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.Encode(tmp, format); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
