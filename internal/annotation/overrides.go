package annotation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// Field-level keys.
const (
	KeyPropertyName  = "propertyName"
	KeyPropertyType  = "propertyType"
	KeyNotNull       = "notNull"
	KeyNullable      = "nullable"
	KeyAdapter       = "adapter"
	KeyDefaultValue  = "defaultValue"
	KeyMappingType   = "mappingType"
	KeyCollectionKey = "collectionKey"
	KeySourceTable   = "sourceTable"
	KeyAliasPrefix   = "aliasPrefix"
)

// Statement-level keys.
const (
	KeyName                  = "name"
	KeyPropertyNameGenerator = "propertyNameGenerator"
	KeyQueryResult           = "queryResult"
	KeySharedResult          = "sharedResult"
	KeyImplements            = "implements"
	KeyExcludeOverrideFields = "excludeOverrideFields"
	KeyCascadeNotify         = "cascadeNotify"
	KeyEnableSync            = "enableSync"
	KeySyncKeyColumnName     = "syncKeyColumnName"
)

var knownFieldKeys = map[string]bool{
	KeyPropertyName: true, KeyPropertyType: true, KeyNotNull: true, KeyNullable: true,
	KeyAdapter: true, KeyDefaultValue: true, KeyDynamicField: true, KeyMappingType: true,
	KeyCollectionKey: true, KeySourceTable: true, KeyAliasPrefix: true,
}

var knownStatementKeys = map[string]bool{
	KeyName: true, KeyPropertyNameGenerator: true, KeyQueryResult: true, KeySharedResult: true,
	KeyCollectionKey: true, KeyImplements: true, KeyExcludeOverrideFields: true,
	KeyCascadeNotify: true, KeyEnableSync: true, KeySyncKeyColumnName: true,
}

// MappingType is how a dynamic field is populated from grouped rows.
type MappingType string

// Mapping types.
const (
	MappingPerRow     MappingType = "perRow"
	MappingEntity     MappingType = "entity"
	MappingCollection MappingType = "collection"
)

// FieldOverrides is the typed form of a field's annotation map.
type FieldOverrides struct {
	PropertyName string
	PropertyType string
	// NotNull is nil when neither notNull nor nullable was declared.
	NotNull       *bool
	Adapter       *bool
	DefaultValue  string
	Dynamic       bool
	MappingType   MappingType
	CollectionKey string
	SourceTable   string
	AliasPrefix   string
}

// AdapterRequested reports whether adapter=true was declared explicitly.
func (f FieldOverrides) AdapterRequested() bool {
	return f.Adapter != nil && *f.Adapter
}

// DecodeField converts a raw field annotation map into FieldOverrides.
// Unknown keys are ignored.
func DecodeField(m core.AnnotationMap) (FieldOverrides, error) {
	var f FieldOverrides
	var err error
	if f.PropertyName, err = stringKey(m, KeyPropertyName); err != nil {
		return f, err
	}
	if f.PropertyType, err = stringKey(m, KeyPropertyType); err != nil {
		return f, err
	}
	if f.DefaultValue, err = stringKey(m, KeyDefaultValue); err != nil {
		return f, err
	}
	if f.CollectionKey, err = stringKey(m, KeyCollectionKey); err != nil {
		return f, err
	}
	if f.SourceTable, err = stringKey(m, KeySourceTable); err != nil {
		return f, err
	}
	if f.AliasPrefix, err = stringKey(m, KeyAliasPrefix); err != nil {
		return f, err
	}
	if f.Adapter, err = boolKey(m, KeyAdapter); err != nil {
		return f, err
	}

	notNull, err := boolKey(m, KeyNotNull)
	if err != nil {
		return f, err
	}
	nullable, err := boolKey(m, KeyNullable)
	if err != nil {
		return f, err
	}
	switch {
	case notNull != nil && nullable != nil && *notNull == *nullable:
		return f, &ParseError{Key: KeyNullable, Message: "contradicts notNull"}
	case notNull != nil:
		f.NotNull = notNull
	case nullable != nil:
		v := !*nullable
		f.NotNull = &v
	}

	if _, ok := m[KeyDynamicField]; ok {
		f.Dynamic = true
	}
	mt, err := stringKey(m, KeyMappingType)
	if err != nil {
		return f, err
	}
	switch MappingType(mt) {
	case "":
		if f.Dynamic {
			f.MappingType = MappingPerRow
		}
	case MappingPerRow, MappingEntity, MappingCollection:
		f.MappingType = MappingType(mt)
	default:
		return f, &ParseError{Key: KeyMappingType, Message: fmt.Sprintf("unknown mapping type %q (want perRow, entity or collection)", mt)}
	}
	return f, nil
}

// StatementOverrides is the typed form of a statement's annotation map.
type StatementOverrides struct {
	Name string
	// PropertyNameGenerator is empty when the statement does not choose one.
	PropertyNameGenerator NamingStrategy
	SharedResult          string
	CollectionKey         string
	Implements            string
	// ExcludeOverrideFields is nil when not declared.
	ExcludeOverrideFields []string
	CascadeNotify         core.CascadeNotify
	EnableSync            bool
	SyncKeyColumnName     string
}

// DecodeStatement converts a raw statement annotation map into
// StatementOverrides. Unknown keys are ignored.
func DecodeStatement(m core.AnnotationMap) (StatementOverrides, error) {
	var s StatementOverrides
	var err error
	if s.Name, err = stringKey(m, KeyName); err != nil {
		return s, err
	}
	if s.CollectionKey, err = stringKey(m, KeyCollectionKey); err != nil {
		return s, err
	}
	if s.Implements, err = stringKey(m, KeyImplements); err != nil {
		return s, err
	}
	if s.SyncKeyColumnName, err = stringKey(m, KeySyncKeyColumnName); err != nil {
		return s, err
	}

	gen, err := stringKey(m, KeyPropertyNameGenerator)
	if err != nil {
		return s, err
	}
	if gen != "" {
		if s.PropertyNameGenerator, err = ParseNamingStrategy(gen); err != nil {
			return s, &ParseError{Key: KeyPropertyNameGenerator, Message: err.Error()}
		}
	}

	queryResult, err := stringKey(m, KeyQueryResult)
	if err != nil {
		return s, err
	}
	shared, err := stringKey(m, KeySharedResult)
	if err != nil {
		return s, err
	}
	if queryResult != "" && shared != "" && queryResult != shared {
		return s, &ParseError{Key: KeySharedResult, Message: fmt.Sprintf("%q conflicts with queryResult %q", shared, queryResult)}
	}
	s.SharedResult = shared
	if s.SharedResult == "" {
		s.SharedResult = queryResult
	}

	if v, ok := m[KeyExcludeOverrideFields]; ok {
		s.ExcludeOverrideFields = NormalizeSet(v.AsList())
	}

	if v, ok := m[KeyEnableSync]; ok {
		b, ok := v.AsBool()
		if !ok {
			return s, &ParseError{Key: KeyEnableSync, Message: fmt.Sprintf("expected boolean, got %q", v.String())}
		}
		s.EnableSync = b
	}

	if v, ok := m[KeyCascadeNotify]; ok {
		if s.CascadeNotify, err = DecodeCascade(v); err != nil {
			return s, err
		}
	}
	return s, nil
}

// DecodeCascade decodes a `cascadeNotify={update=[a], delete=[b, c]}` value.
func DecodeCascade(v core.Value) (core.CascadeNotify, error) {
	if v.Kind != core.ValueMap {
		return nil, &ParseError{Key: KeyCascadeNotify, Message: "expected {insert=[...], update=[...], delete=[...]}"}
	}
	out := core.CascadeNotify{}
	for _, k := range v.Map.Keys() {
		op := core.CascadeOp(k)
		switch op {
		case core.CascadeInsert, core.CascadeUpdate, core.CascadeDelete:
		default:
			return nil, &ParseError{Key: KeyCascadeNotify, Message: fmt.Sprintf("unknown operation %q", k)}
		}
		out[op] = NormalizeSet(v.Map[k].AsList())
	}
	return out, nil
}

// NormalizeSet trims, de-duplicates and sorts a list of names.
func NormalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// UnknownFieldKeys returns field keys the decoder does not interpret.
func UnknownFieldKeys(m core.AnnotationMap) []string { return unknownKeys(m, knownFieldKeys) }

// UnknownStatementKeys returns statement keys the decoder does not interpret.
func UnknownStatementKeys(m core.AnnotationMap) []string { return unknownKeys(m, knownStatementKeys) }

func unknownKeys(m core.AnnotationMap, known map[string]bool) []string {
	var out []string
	for _, k := range m.Keys() {
		if !known[k] {
			out = append(out, k)
		}
	}
	return out
}

func stringKey(m core.AnnotationMap, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", nil
	}
	switch v.Kind {
	case core.ValueString:
		return strings.TrimSpace(v.Str), nil
	case core.ValueBool:
		// defaultValue=false and friends parse as booleans.
		return v.String(), nil
	}
	return "", &ParseError{Key: key, Message: fmt.Sprintf("expected a value, got %s", v.String())}
}

func boolKey(m core.AnnotationMap, key string) (*bool, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return nil, &ParseError{Key: key, Message: fmt.Sprintf("expected boolean, got %q", v.String())}
	}
	return &b, nil
}
