package sharedresult

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/querygen/internal/testutil"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var personKey = Key{Namespace: "person", Name: "Person"}

func personFields() []Field {
	return []Field{
		{Name: "id", Type: core.TypeDescriptor{Base: core.TypeInt64}},
		{Name: "name", Type: core.TypeDescriptor{Base: core.TypeString}},
		{Name: "birthDate", Type: core.TypeDescriptor{Base: core.TypeString, Nullable: true, PropertyType: "LocalDate", Adapter: true}},
	}
}

func reg(stmt, implements string, exclude []string) Registration {
	return Registration{Key: personKey, Statement: stmt, Fields: personFields(), Implements: implements, ExcludeOverrideFields: exclude}
}

func TestRegister_FirstRegistrationIsCanonical(t *testing.T) {
	m := NewManager(testutil.NewTestLogger(t))
	rec, err := m.Register(reg("SelectAll", "Entity", []string{"phone"}))
	require.NoError(t, err)

	assert.Equal(t, "SelectAll", rec.Canonical)
	assert.Equal(t, personFields(), rec.Fields)

	impl, ok := m.EffectiveImplements("person", "Person")
	assert.True(t, ok)
	assert.Equal(t, "Entity", impl)

	_, ok = m.EffectiveImplements("person", "Other")
	assert.False(t, ok)
}

func TestRegister_Symmetry(t *testing.T) {
	a := reg("A", "", nil)
	b := reg("B", "Entity", []string{"birthDate", "phone"})

	for _, order := range [][]Registration{{a, b}, {b, a}} {
		m := NewManager(nil)
		for _, r := range order {
			_, err := m.Register(r)
			require.NoError(t, err)
		}
		impl, ok := m.EffectiveImplements("person", "Person")
		assert.True(t, ok)
		assert.Equal(t, "Entity", impl)

		excl, ok := m.EffectiveExcludeOverrideFields("person", "Person")
		assert.True(t, ok)
		assert.Equal(t, []string{"birthDate", "phone"}, excl)
	}
}

func TestRegister_LaterDeclarationVisibleToEarlierStatements(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Register(reg("First", "", nil))
	require.NoError(t, err)

	_, ok := m.EffectiveExcludeOverrideFields("person", "Person")
	assert.False(t, ok)

	_, err = m.Register(reg("Second", "", []string{" phone ", "birthDate"}))
	require.NoError(t, err)

	excl, ok := m.EffectiveExcludeOverrideFields("person", "Person")
	assert.True(t, ok)
	assert.Equal(t, []string{"birthDate", "phone"}, excl)
}

func TestRegister_TypeEquivalence(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Register(reg("A", "", nil))
	require.NoError(t, err)

	// nullability and field order do not matter
	fields := personFields()
	fields[0], fields[2] = fields[2], fields[0]
	fields[1].Type.Nullable = true
	_, err = m.Register(Registration{Key: personKey, Statement: "B", Fields: fields})
	require.NoError(t, err)

	// INTEGER and NUMERIC columns both resolve to int64
	other := Key{Namespace: "person", Name: "Count"}
	_, err = m.Register(Registration{Key: other, Statement: "CountA",
		Fields: []Field{{Name: "total", Type: core.TypeDescriptor{Base: core.TypeInt64}}}})
	require.NoError(t, err)
	_, err = m.Register(Registration{Key: other, Statement: "CountB",
		Fields: []Field{{Name: "total", Type: core.TypeDescriptor{Base: core.TypeInt64, Nullable: true}}}})
	require.NoError(t, err)

	rec, ok := m.Get("person", "Person")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, rec.Statements)
}

func TestRegister_FieldMismatch(t *testing.T) {
	withType := func(i int, d core.TypeDescriptor) []Field {
		f := personFields()
		f[i].Type = d
		return f
	}
	tests := []struct {
		name   string
		fields []Field
		want   []string
	}{
		{"missing field", personFields()[:2], []string{"2 fields", "3 fields"}},
		{"renamed field", append(personFields()[:2], Field{Name: "born", Type: core.TypeDescriptor{Base: core.TypeString}}),
			[]string{`"birthDate"`, "missing"}},
		{"different base type", withType(0, core.TypeDescriptor{Base: core.TypeString}), []string{`"id"`, "string", "int64"}},
		{"different property type", withType(2, core.TypeDescriptor{Base: core.TypeString, PropertyType: "Instant"}),
			[]string{`"birthDate"`, "Instant"}},
		{"collection vs scalar", withType(0, core.TypeDescriptor{Base: core.TypeInt64, Collection: true}), []string{`"id"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(nil)
			_, err := m.Register(reg("SelectAll", "", nil))
			require.NoError(t, err)

			_, err = m.Register(Registration{Key: personKey, Statement: "SelectSome", Fields: tt.fields})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConsistency))

			var me *MismatchError
			require.True(t, errors.As(err, &me))
			for _, s := range append(tt.want, "SelectAll", "SelectSome", "person/Person") {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestRegister_DeclarationConflicts(t *testing.T) {
	tests := []struct {
		name   string
		first  Registration
		second Registration
		key    string
		values []string
	}{
		{"implements", reg("SelectAll", "Entity", nil), reg("SelectOne", "Named", nil),
			"implements", []string{"Entity", "Named"}},
		{"excludeOverrideFields", reg("SelectAll", "", []string{"phone"}), reg("SelectOne", "", []string{"phone", "name"}),
			"excludeOverrideFields", []string{"[phone]", "[name, phone]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(nil)
			_, err := m.Register(tt.first)
			require.NoError(t, err)

			_, err = m.Register(tt.second)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrConsistency))

			var ce *ConflictError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "person/Person", ce.SharedResult)
			assert.Equal(t, tt.key, ce.Key)
			for _, s := range append(tt.values, "SelectAll", "SelectOne") {
				assert.Contains(t, err.Error(), s)
			}

			rec, _ := m.Get("person", "Person")
			assert.Equal(t, []string{"SelectAll"}, rec.Statements, "failed registration leaves the record untouched")
		})
	}
}

func TestMergeDeclaration(t *testing.T) {
	eq := func(a, b string) bool { return a == b }
	unset := Declaration[string]{Statement: "A"}
	entity := Declaration[string]{Value: "Entity", Set: true, Statement: "B"}
	named := Declaration[string]{Value: "Named", Set: true, Statement: "C"}

	got, err := MergeDeclaration("implements", unset, entity, eq)
	require.NoError(t, err)
	assert.Equal(t, entity, got, "unset canonical adopts")

	got, err = MergeDeclaration("implements", entity, unset, eq)
	require.NoError(t, err)
	assert.Equal(t, entity, got, "unset incoming inherits")

	got, err = MergeDeclaration("implements", entity, Declaration[string]{Value: "Entity", Set: true, Statement: "D"}, eq)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Statement, "agreement keeps the first declarer")

	_, err = MergeDeclaration("implements", entity, named, eq)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "B", ce.First)
	assert.Equal(t, "Named", ce.SecondValue)
}
