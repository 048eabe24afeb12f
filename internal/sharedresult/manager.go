// Package sharedresult keeps the canonical record of every shared result
// declared during one generation run and checks that all statements sharing
// a result agree on its shape and declarations.
package sharedresult

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// Key identifies a shared result.
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + "/" + k.Name
}

// Field is one resolved result field.
type Field struct {
	Name string              `json:"name" yaml:"name"`
	Type core.TypeDescriptor `json:"type" yaml:"type"`
}

// Registration is one statement's claim on a shared result.
type Registration struct {
	Key       Key
	Statement string
	Fields    []Field
	// Implements is empty when the statement declares none.
	Implements string
	// ExcludeOverrideFields is nil when the statement declares none.
	ExcludeOverrideFields []string
}

// Declaration is a value a statement may or may not declare, with the
// statement that declared it.
type Declaration[T any] struct {
	Value     T
	Set       bool
	Statement string
}

// Record is the canonical state of one shared result. It is updated in
// place as later statements supply declarations earlier ones left unset.
type Record struct {
	Key    Key
	Fields []Field
	// Canonical is the statement whose fields define the shape.
	Canonical             string
	Statements            []string
	Implements            Declaration[string]
	ExcludeOverrideFields Declaration[[]string]
}

// Manager holds the shared-result records of one run.
type Manager struct {
	records map[Key]*Record
	order   []Key
	logger  *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{records: make(map[Key]*Record), logger: logger}
}

// Register adds reg to its shared result. The first registration
// establishes the canonical fields and declarations. Later ones must match
// the fields and either agree with, supply, or inherit each declaration. A
// failed registration leaves the record unchanged.
func (m *Manager) Register(reg Registration) (*Record, error) {
	impl := Declaration[string]{Value: reg.Implements, Set: reg.Implements != "", Statement: reg.Statement}
	excl := Declaration[[]string]{Set: reg.ExcludeOverrideFields != nil, Statement: reg.Statement}
	if excl.Set {
		excl.Value = annotation.NormalizeSet(reg.ExcludeOverrideFields)
	}

	rec, ok := m.records[reg.Key]
	if !ok {
		rec = &Record{
			Key:                   reg.Key,
			Fields:                slices.Clone(reg.Fields),
			Canonical:             reg.Statement,
			Statements:            []string{reg.Statement},
			Implements:            impl,
			ExcludeOverrideFields: excl,
		}
		m.records[reg.Key] = rec
		m.order = append(m.order, reg.Key)
		m.logger.Debug("shared result registered",
			slog.String("shared_result", reg.Key.String()), slog.String("statement", reg.Statement))
		return rec, nil
	}

	if err := compareFields(rec, reg); err != nil {
		return nil, err
	}
	mergedImpl, err := MergeDeclaration(annotation.KeyImplements, rec.Implements, impl, func(a, b string) bool { return a == b })
	if err != nil {
		return nil, withKey(err, reg.Key)
	}
	mergedExcl, err := MergeDeclaration(annotation.KeyExcludeOverrideFields, rec.ExcludeOverrideFields, excl, func(a, b []string) bool { return slices.Equal(a, b) })
	if err != nil {
		return nil, withKey(err, reg.Key)
	}

	rec.Implements = mergedImpl
	rec.ExcludeOverrideFields = mergedExcl
	rec.Statements = append(rec.Statements, reg.Statement)
	m.logger.Debug("shared result joined",
		slog.String("shared_result", reg.Key.String()), slog.String("statement", reg.Statement))
	return rec, nil
}

// MergeDeclaration combines the canonical value of a declaration with an
// incoming one: an unset canonical adopts the incoming value, an unset
// incoming value inherits the canonical one, and two different set values
// conflict.
func MergeDeclaration[T any](key string, canonical, incoming Declaration[T], equal func(a, b T) bool) (Declaration[T], error) {
	switch {
	case !incoming.Set:
		return canonical, nil
	case !canonical.Set:
		return incoming, nil
	case equal(canonical.Value, incoming.Value):
		return canonical, nil
	}
	return canonical, &ConflictError{
		Key:         key,
		First:       canonical.Statement,
		FirstValue:  render(canonical.Value),
		Second:      incoming.Statement,
		SecondValue: render(incoming.Value),
	}
}

// Get returns the record of a shared result.
func (m *Manager) Get(namespace, name string) (*Record, bool) {
	rec, ok := m.records[Key{Namespace: namespace, Name: name}]
	return rec, ok
}

// Records returns every record in first-registration order.
func (m *Manager) Records() []*Record {
	out := make([]*Record, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.records[k])
	}
	return out
}

// EffectiveImplements returns the current canonical implements value.
func (m *Manager) EffectiveImplements(namespace, name string) (string, bool) {
	rec, ok := m.Get(namespace, name)
	if !ok || !rec.Implements.Set {
		return "", false
	}
	return rec.Implements.Value, true
}

// EffectiveExcludeOverrideFields returns the current canonical
// excludeOverrideFields set. It reflects declarations supplied by
// statements registered after the one asking.
func (m *Manager) EffectiveExcludeOverrideFields(namespace, name string) ([]string, bool) {
	rec, ok := m.Get(namespace, name)
	if !ok || !rec.ExcludeOverrideFields.Set {
		return nil, false
	}
	return slices.Clone(rec.ExcludeOverrideFields.Value), true
}

// compareFields checks reg against the canonical shape. Fields match by
// name; two fields agree when they resolve to the same output type,
// nullability aside.
func compareFields(rec *Record, reg Registration) error {
	mismatch := func(field, msg string) error {
		return &MismatchError{
			SharedResult: rec.Key.String(),
			Canonical:    rec.Canonical,
			Statement:    reg.Statement,
			Field:        field,
			Message:      msg,
		}
	}
	if len(reg.Fields) != len(rec.Fields) {
		return mismatch("", fmt.Sprintf("%d fields (%s) vs %d fields (%s)",
			len(reg.Fields), fieldNames(reg.Fields), len(rec.Fields), fieldNames(rec.Fields)))
	}
	for _, want := range rec.Fields {
		got, ok := findField(reg.Fields, want.Name)
		if !ok {
			return mismatch(want.Name, "field is missing")
		}
		if !equivalent(want.Type, got.Type) {
			return mismatch(want.Name, fmt.Sprintf("type %s vs %s", got.Type, want.Type))
		}
	}
	return nil
}

func equivalent(a, b core.TypeDescriptor) bool {
	return a.EffectiveType() == b.EffectiveType() && a.Collection == b.Collection
}

func findField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func fieldNames(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}

func render(v any) string {
	if list, ok := v.([]string); ok {
		return "[" + strings.Join(list, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func withKey(err error, k Key) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		ce.SharedResult = k.String()
	}
	return err
}
