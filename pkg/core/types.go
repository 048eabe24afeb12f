package core

import "strings"

// =============================================================================
// Output types
// =============================================================================

// BaseType is a host-neutral scalar output type.
type BaseType string

// Base output types.
const (
	TypeInt64   BaseType = "int64"
	TypeInt32   BaseType = "int32"
	TypeInt16   BaseType = "int16"
	TypeInt8    BaseType = "int8"
	TypeString  BaseType = "string"
	TypeFloat64 BaseType = "float64"
	TypeFloat32 BaseType = "float32"
	TypeBool    BaseType = "bool"
	TypeBytes   BaseType = "bytes"
	// TypeCustom marks a descriptor whose type comes entirely from a
	// propertyType annotation with no SQL source (dynamic fields).
	TypeCustom BaseType = "custom"
)

// nativeNames lists the spellings a propertyType may use to name a native
// type without requesting an adapter.
var nativeNames = map[BaseType][]string{
	TypeInt64:   {"int64", "long"},
	TypeInt32:   {"int32", "int", "integer"},
	TypeInt16:   {"int16", "short"},
	TypeInt8:    {"int8", "byte"},
	TypeString:  {"string"},
	TypeFloat64: {"float64", "double"},
	TypeFloat32: {"float32", "float"},
	TypeBool:    {"bool", "boolean"},
	TypeBytes:   {"bytes", "bytearray", "[]byte"},
}

// IsNative reports whether propertyType names b itself. Package qualifiers
// are ignored, so "kotlin.Long" and "Long" both name int64.
func (b BaseType) IsNative(propertyType string) bool {
	name := strings.TrimSuffix(strings.TrimSpace(propertyType), "?")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(name)
	for _, n := range nativeNames[b] {
		if n == name {
			return true
		}
	}
	return false
}

// TypeDescriptor is the resolved output type of a parameter or field.
// For collections, Nullable describes the elements; the collection itself
// is never null.
type TypeDescriptor struct {
	Base         BaseType `json:"base" yaml:"base"`
	Nullable     bool     `json:"nullable" yaml:"nullable"`
	Collection   bool     `json:"collection,omitempty" yaml:"collection,omitempty"`
	Adapter      bool     `json:"adapter,omitempty" yaml:"adapter,omitempty"`
	PropertyType string   `json:"propertyType,omitempty" yaml:"propertyType,omitempty"`
}

// String renders the descriptor, e.g. "[]int64?" or "LocalDate<-string".
func (d TypeDescriptor) String() string {
	var b strings.Builder
	if d.Collection {
		b.WriteString("[]")
	}
	if d.PropertyType != "" {
		b.WriteString(d.PropertyType)
	} else {
		b.WriteString(string(d.Base))
	}
	if d.Nullable {
		b.WriteString("?")
	}
	if d.Adapter {
		b.WriteString("<-")
		b.WriteString(string(d.Base))
	}
	return b.String()
}

// EffectiveType names the type a generated property actually has: the
// propertyType when it is not a spelling of the native type, else the base.
func (d TypeDescriptor) EffectiveType() string {
	if d.PropertyType != "" && !d.Base.IsNative(d.PropertyType) {
		return d.PropertyType
	}
	return string(d.Base)
}
