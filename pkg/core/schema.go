package core

// =============================================================================
// Schema entities
// =============================================================================

// Column is a table or view column as introspected from the database.
// Annotations holds the field-level annotations declared on the CREATE
// statement. Columns are never modified after the schema is loaded.
type Column struct {
	Name          string
	Type          string
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Annotations   AnnotationMap
}

// CascadeOp is a mutating operation that can cascade change notifications.
type CascadeOp string

// Cascade operations.
const (
	CascadeInsert CascadeOp = "insert"
	CascadeUpdate CascadeOp = "update"
	CascadeDelete CascadeOp = "delete"
)

// CascadeOps lists every cascade operation in declaration order.
var CascadeOps = []CascadeOp{CascadeInsert, CascadeUpdate, CascadeDelete}

// CascadeNotify maps an operation on a table to the tables that must be
// reported as changed along with it.
type CascadeNotify map[CascadeOp][]string

// Table is a database table.
type Table struct {
	Name    string
	Columns []Column
	Cascade CascadeNotify
	// Annotations holds the statement-level annotations of the CREATE TABLE.
	Annotations AnnotationMap
	SQL         string
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ViewSelect is the SELECT skeleton a view is defined by.
type ViewSelect struct {
	Table   string
	Joins   []string
	Aliases map[string]string
	Fields  []FieldSource
}

// ResolveAlias maps a table alias used in the view body to a table name.
func (s *ViewSelect) ResolveAlias(name string) string {
	if s == nil {
		return name
	}
	if t, ok := s.Aliases[name]; ok {
		return t
	}
	return name
}

// Field returns the field source exposed under name, or nil.
func (s *ViewSelect) Field(name string) *FieldSource {
	if s == nil {
		return nil
	}
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// View is a database view. Fields holds annotations declared per exposed
// field on the CREATE VIEW; they are independent of the underlying table
// columns and are only layered in when a statement reads the view.
type View struct {
	Name    string
	Columns []Column
	Select  *ViewSelect
	Fields  map[string]AnnotationMap
	SQL     string
}

// Column returns the named view column, or nil.
func (v *View) Column(name string) *Column {
	for i := range v.Columns {
		if v.Columns[i].Name == name {
			return &v.Columns[i]
		}
	}
	return nil
}
