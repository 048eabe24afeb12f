package typeinfer

import (
	"strings"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// sqlTypes maps normalized declared SQL types to base types.
var sqlTypes = map[string]core.BaseType{
	"INTEGER":          core.TypeInt64,
	"INT":              core.TypeInt64,
	"BIGINT":           core.TypeInt64,
	"INT8":             core.TypeInt64,
	"UNSIGNED BIG INT": core.TypeInt64,
	"NUMERIC":          core.TypeInt64,
	"DECIMAL":          core.TypeInt64,
	"MEDIUMINT":        core.TypeInt32,
	"SMALLINT":         core.TypeInt16,
	"INT2":             core.TypeInt16,
	"TINYINT":          core.TypeInt8,

	"TEXT":              core.TypeString,
	"VARCHAR":           core.TypeString,
	"CHARACTER":         core.TypeString,
	"CHAR":              core.TypeString,
	"NCHAR":             core.TypeString,
	"NVARCHAR":          core.TypeString,
	"NATIVE CHARACTER":  core.TypeString,
	"VARYING CHARACTER": core.TypeString,
	"CLOB":              core.TypeString,

	"REAL":             core.TypeFloat64,
	"DOUBLE":           core.TypeFloat64,
	"DOUBLE PRECISION": core.TypeFloat64,
	"FLOAT":            core.TypeFloat32,

	"BOOLEAN": core.TypeBool,
	"BOOL":    core.TypeBool,

	"BLOB": core.TypeBytes,
}

// MapSQLType maps a declared SQL type such as "VARCHAR(255)" to its base
// type. Matching is case-insensitive and ignores length arguments.
// Unrecognized types map to string and report false.
func MapSQLType(declared string) (core.BaseType, bool) {
	if b, ok := sqlTypes[normalizeSQLType(declared)]; ok {
		return b, true
	}
	return core.TypeString, false
}

func normalizeSQLType(declared string) string {
	if i := strings.IndexByte(declared, '('); i >= 0 {
		declared = declared[:i]
	}
	return strings.Join(strings.Fields(strings.ToUpper(declared)), " ")
}
