package core

import "fmt"

// =============================================================================
// Statements
// =============================================================================

// StatementKind is the kind of SQL statement.
type StatementKind string

// Statement kinds.
const (
	KindSelect StatementKind = "select"
	KindInsert StatementKind = "insert"
	KindUpdate StatementKind = "update"
	KindDelete StatementKind = "delete"
)

// Valid reports whether k is a known statement kind.
func (k StatementKind) Valid() bool {
	switch k {
	case KindSelect, KindInsert, KindUpdate, KindDelete:
		return true
	}
	return false
}

// CascadeOp returns the cascade operation matching a mutating statement kind.
func (k StatementKind) CascadeOp() (CascadeOp, bool) {
	switch k {
	case KindInsert:
		return CascadeInsert, true
	case KindUpdate:
		return CascadeUpdate, true
	case KindDelete:
		return CascadeDelete, true
	}
	return "", false
}

// AssociationKind describes how a parameter relates to its column.
type AssociationKind string

// Association kinds.
const (
	// AssocDefault is a scalar comparison or assignment.
	AssocDefault AssociationKind = "default"
	// AssocCollection is an IN (...) list expanded at bind time.
	AssocCollection AssociationKind = "collection"
)

// ParamAssociation links a named parameter to the column it is compared
// with or assigned to. Table may be a table, a view, an alias or the name
// of a WITH sub-select.
type ParamAssociation struct {
	Table  string
	Column string
	Kind   AssociationKind
}

// FieldSource describes one result field of a SELECT.
// Table is empty and Expression is true for computed fields.
type FieldSource struct {
	Name         string
	Table        string
	Column       string
	DeclaredType string
	Expression   bool
}

// Statement is the skeleton of one parsed SQL statement.
type Statement struct {
	Name      string
	Namespace string
	Kind      StatementKind
	SQL       string
	// Table is the target table of a mutation, or the FROM table of a select.
	Table   string
	Joins   []string
	Aliases map[string]string
	Fields  []FieldSource
	// Parameters lists named parameters in binding order, duplicates included.
	Parameters   []string
	ParamColumns map[string]ParamAssociation
	With         []*Statement
	LimitParam   string
	OffsetParam  string
	// Comments holds the raw comment lines attached to the statement.
	Comments []string
	File     string
}

// ID returns the namespace-qualified statement name.
func (s *Statement) ID() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "/" + s.Name
}

// String implements fmt.Stringer.
func (s *Statement) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.ID())
}

// IsMutation reports whether the statement modifies data.
func (s *Statement) IsMutation() bool {
	_, ok := s.Kind.CascadeOp()
	return ok
}

// ResolveAlias maps an alias used in the statement to a table name.
func (s *Statement) ResolveAlias(name string) string {
	if t, ok := s.Aliases[name]; ok {
		return t
	}
	return name
}

// WithClause returns the WITH sub-select named name, or nil.
func (s *Statement) WithClause(name string) *Statement {
	for _, w := range s.With {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// Field returns the result field named name, or nil.
func (s *Statement) Field(name string) *FieldSource {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// IsLimitOrOffset reports whether param is bound to LIMIT or OFFSET.
func (s *Statement) IsLimitOrOffset(param string) bool {
	return param != "" && (param == s.LimitParam || param == s.OffsetParam)
}
