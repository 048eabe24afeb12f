package annotation

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_OverrideWinsKeyByKey(t *testing.T) {
	base := core.AnnotationMap{
		"propertyType": core.StringValue("LocalDate"),
		"adapter":      core.BoolValue(true),
	}
	override := core.AnnotationMap{
		"propertyType": core.StringValue("Instant"),
		"notNull":      core.BoolValue(false),
	}

	got := Merge(base, override)

	assert.Equal(t, core.StringValue("Instant"), got["propertyType"])
	assert.Equal(t, core.BoolValue(true), got["adapter"])
	assert.Equal(t, core.BoolValue(false), got["notNull"])

	// inputs are untouched
	assert.Equal(t, core.StringValue("LocalDate"), base["propertyType"])
	assert.Len(t, base, 2)
	assert.Len(t, override, 2)
}

func TestMerge_ResultDoesNotAliasInputs(t *testing.T) {
	base := core.AnnotationMap{"excludeOverrideFields": core.ListValue("a")}
	got := Merge(base, nil)

	v := got["excludeOverrideFields"]
	v.List[0] = "changed"
	assert.Equal(t, "a", base["excludeOverrideFields"].List[0])
}

func TestMerge_NullabilityReplacesOppositeKey(t *testing.T) {
	tests := []struct {
		name     string
		base     core.AnnotationMap
		override core.AnnotationMap
		want     bool
	}{
		{
			name:     "nullable over notNull",
			base:     core.AnnotationMap{"notNull": core.BoolValue(true), "propertyType": core.StringValue("Instant")},
			override: core.AnnotationMap{"nullable": core.BoolValue(true)},
			want:     false,
		},
		{
			name:     "notNull over nullable",
			base:     core.AnnotationMap{"nullable": core.BoolValue(true)},
			override: core.AnnotationMap{"notNull": core.BoolValue(true)},
			want:     true,
		},
		{
			name:     "same key",
			base:     core.AnnotationMap{"notNull": core.BoolValue(true)},
			override: core.AnnotationMap{"notNull": core.BoolValue(false)},
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.base, tt.override)
			f, err := DecodeField(got)
			require.NoError(t, err)
			require.NotNil(t, f.NotNull)
			assert.Equal(t, tt.want, *f.NotNull)
		})
	}

	merged := Merge(core.AnnotationMap{"notNull": core.BoolValue(true), "propertyType": core.StringValue("Instant")},
		core.AnnotationMap{"nullable": core.BoolValue(true)})
	assert.Equal(t, "{nullable=true, propertyType=Instant}", merged.String())
}

func TestMergeAll(t *testing.T) {
	got := MergeAll(
		core.AnnotationMap{"a": core.StringValue("1"), "b": core.StringValue("1")},
		nil,
		core.AnnotationMap{"b": core.StringValue("2")},
		core.AnnotationMap{"c": core.StringValue("3")},
	)
	assert.Equal(t, "{a=1, b=2, c=3}", got.String())
}

func TestDecodeField(t *testing.T) {
	m := core.AnnotationMap{
		"propertyName": core.StringValue("born"),
		"propertyType": core.StringValue("kotlinx.datetime.LocalDate"),
		"adapter":      core.BoolValue(true),
		"defaultValue": core.StringValue("null"),
		"custom":       core.StringValue("kept"),
	}
	f, err := DecodeField(m)
	require.NoError(t, err)

	assert.Equal(t, "born", f.PropertyName)
	assert.Equal(t, "kotlinx.datetime.LocalDate", f.PropertyType)
	assert.True(t, f.AdapterRequested())
	assert.Equal(t, "null", f.DefaultValue)
	assert.Nil(t, f.NotNull)
	assert.False(t, f.Dynamic)
	assert.Equal(t, []string{"custom"}, UnknownFieldKeys(m))
}

func TestDecodeField_BooleanLookingStrings(t *testing.T) {
	for _, raw := range []string{"false", "true"} {
		t.Run(raw, func(t *testing.T) {
			got, err := Extract([]string{"-- @@{field=active, defaultValue=" + raw + ", propertyName=" + raw + "}"})
			require.NoError(t, err)

			f, err := DecodeField(got.Field("active"))
			require.NoError(t, err)
			assert.Equal(t, raw, f.DefaultValue)
			assert.Equal(t, raw, f.PropertyName)
		})
	}

	s, err := DecodeStatement(core.AnnotationMap{"implements": core.BoolValue(false)})
	require.NoError(t, err)
	assert.Equal(t, "false", s.Implements)
}

func TestDecodeField_Nullability(t *testing.T) {
	tests := []struct {
		name    string
		m       core.AnnotationMap
		want    *bool
		wantErr bool
	}{
		{name: "absent", m: core.AnnotationMap{}, want: nil},
		{name: "notNull flag", m: core.AnnotationMap{"notNull": core.BoolValue(true)}, want: ptr(true)},
		{name: "notNull=false", m: core.AnnotationMap{"notNull": core.StringValue("false")}, want: ptr(false)},
		{name: "nullable=true", m: core.AnnotationMap{"nullable": core.BoolValue(true)}, want: ptr(false)},
		{name: "nullable=false", m: core.AnnotationMap{"nullable": core.BoolValue(false)}, want: ptr(true)},
		{
			name: "agreeing pair",
			m:    core.AnnotationMap{"nullable": core.BoolValue(true), "notNull": core.BoolValue(false)},
			want: ptr(false),
		},
		{
			name:    "contradicting pair",
			m:       core.AnnotationMap{"nullable": core.BoolValue(true), "notNull": core.BoolValue(true)},
			wantErr: true,
		},
		{name: "not a boolean", m: core.AnnotationMap{"notNull": core.StringValue("maybe")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeField(tt.m)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.NotNull)
		})
	}
}

func TestDecodeField_Dynamic(t *testing.T) {
	f, err := DecodeField(core.AnnotationMap{
		"dynamicField":  core.StringValue("addresses"),
		"mappingType":   core.StringValue("collection"),
		"collectionKey": core.StringValue("address_id"),
	})
	require.NoError(t, err)
	assert.True(t, f.Dynamic)
	assert.Equal(t, MappingCollection, f.MappingType)
	assert.Equal(t, "address_id", f.CollectionKey)

	f, err = DecodeField(core.AnnotationMap{"dynamicField": core.StringValue("owner")})
	require.NoError(t, err)
	assert.Equal(t, MappingPerRow, f.MappingType)

	_, err = DecodeField(core.AnnotationMap{"mappingType": core.StringValue("tree")})
	require.Error(t, err)
}

func TestDecodeStatement(t *testing.T) {
	m := core.AnnotationMap{
		"name":                  core.StringValue("SelectAll"),
		"propertyNameGenerator": core.StringValue("plain"),
		"queryResult":           core.StringValue("Person"),
		"implements":            core.StringValue("com.example.PersonEssentialFields"),
		"excludeOverrideFields": core.ListValue(" phone", "birthDate ", "phone"),
		"enableSync":            core.BoolValue(true),
		"syncKeyColumnName":     core.StringValue("doc_id"),
		"collectionKey":         core.StringValue("person_id"),
	}
	s, err := DecodeStatement(m)
	require.NoError(t, err)

	assert.Equal(t, "SelectAll", s.Name)
	assert.Equal(t, NamingPlain, s.PropertyNameGenerator)
	assert.Equal(t, "Person", s.SharedResult)
	assert.Equal(t, "com.example.PersonEssentialFields", s.Implements)
	assert.Equal(t, []string{"birthDate", "phone"}, s.ExcludeOverrideFields)
	assert.True(t, s.EnableSync)
	assert.Equal(t, "doc_id", s.SyncKeyColumnName)
	assert.Equal(t, "person_id", s.CollectionKey)
}

func TestDecodeStatement_Absent(t *testing.T) {
	s, err := DecodeStatement(core.AnnotationMap{})
	require.NoError(t, err)
	assert.Nil(t, s.ExcludeOverrideFields)
	assert.Empty(t, s.Implements)
	assert.Empty(t, s.PropertyNameGenerator)
}

func TestDecodeStatement_Errors(t *testing.T) {
	tests := []struct {
		name string
		m    core.AnnotationMap
	}{
		{
			name: "conflicting result names",
			m:    core.AnnotationMap{"queryResult": core.StringValue("A"), "sharedResult": core.StringValue("B")},
		},
		{name: "unknown naming", m: core.AnnotationMap{"propertyNameGenerator": core.StringValue("kebab")}},
		{name: "enableSync not boolean", m: core.AnnotationMap{"enableSync": core.StringValue("often")}},
		{name: "cascade not a map", m: core.AnnotationMap{"cascadeNotify": core.StringValue("child")}},
		{
			name: "cascade unknown op",
			m: core.AnnotationMap{"cascadeNotify": core.MapValue(core.AnnotationMap{
				"truncate": core.ListValue("child"),
			})},
		},
		{name: "implements as list", m: core.AnnotationMap{"implements": core.ListValue("A", "B")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStatement(tt.m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrParse))
		})
	}
}

func TestDecodeCascade(t *testing.T) {
	got, err := DecodeCascade(core.MapValue(core.AnnotationMap{
		"update": core.ListValue("child", "audit"),
		"delete": core.StringValue("child, audit , child"),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "child"}, got[core.CascadeUpdate])
	assert.Equal(t, []string{"audit", "child"}, got[core.CascadeDelete])
	assert.NotContains(t, got, core.CascadeInsert)
}

func TestNamingStrategy(t *testing.T) {
	tests := []struct {
		strategy NamingStrategy
		in       string
		want     string
	}{
		{NamingLowerCamel, "birth_date", "birthDate"},
		{NamingLowerCamel, "id", "id"},
		{NamingUpperCamel, "birth_date", "BirthDate"},
		{NamingSnake, "birthDate", "birth_date"},
		{NamingPlain, "birth_date", "birth_date"},
		{NamingLowerCamel, "", ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.strategy.Apply(tt.in))
		})
	}
}

func TestPropertyName_ExplicitWins(t *testing.T) {
	assert.Equal(t, "born", PropertyName("birth_date", FieldOverrides{PropertyName: "born"}, NamingUpperCamel))
	assert.Equal(t, "BirthDate", PropertyName("birth_date", FieldOverrides{}, NamingUpperCamel))
}

func TestParseNamingStrategy(t *testing.T) {
	s, err := ParseNamingStrategy("")
	require.NoError(t, err)
	assert.Equal(t, NamingLowerCamel, s)

	_, err = ParseNamingStrategy("SCREAMING")
	require.Error(t, err)
}

func ptr(b bool) *bool { return &b }
