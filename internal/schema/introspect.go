package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/leapstack-labs/querygen/internal/annotation"
	"github.com/leapstack-labs/querygen/internal/loader"
	"github.com/leapstack-labs/querygen/pkg/core"
)

// IntrospectOptions tunes Introspect.
type IntrospectOptions struct {
	Logger *slog.Logger
	// Preamble holds, per table or view name, the comment lines written
	// above its CREATE statement. SQLite only stores the statement itself.
	Preamble map[string][]string
	// Skip lists tables to leave out of the catalog.
	Skip []string
}

var autoIncrementPattern = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

type masterRow struct {
	kind string
	name string
	sql  string
}

type indexRow struct {
	name   string
	unique bool
	origin string
}

// Introspect reads every table and view of db into a Catalog. Queries are
// run one at a time so a single-connection pool is enough.
func Introspect(ctx context.Context, db *sql.DB, opts IntrospectOptions) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	skip := make(map[string]bool, len(opts.Skip))
	for _, s := range opts.Skip {
		skip[s] = true
	}

	objects, err := listObjects(ctx, db)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	for _, obj := range objects {
		if skip[obj.name] {
			continue
		}
		columns, err := tableInfo(ctx, db, obj.name)
		if err != nil {
			return nil, err
		}
		comments := append(append([]string(nil), opts.Preamble[obj.name]...), loader.ScanComments(obj.sql)...)
		ann, err := annotation.Extract(comments)
		if err != nil {
			return nil, withObject(err, obj.name)
		}

		switch obj.kind {
		case "table":
			t, err := buildTable(ctx, db, obj, columns, ann)
			if err != nil {
				return nil, err
			}
			catalog.AddTable(t)
			logger.Debug("introspected table", slog.String("table", t.Name), slog.Int("columns", len(t.Columns)))
		case "view":
			v, err := buildView(obj, columns, ann)
			if err != nil {
				return nil, err
			}
			catalog.AddView(v)
			logger.Debug("introspected view", slog.String("view", v.Name), slog.Int("columns", len(v.Columns)))
		}
	}
	return catalog, nil
}

func buildTable(ctx context.Context, db *sql.DB, obj masterRow, columns []core.Column, ann *annotation.Annotations) (*core.Table, error) {
	t := &core.Table{
		Name:        obj.name,
		Columns:     columns,
		SQL:         obj.sql,
		Annotations: ann.Statement,
	}

	unique, err := uniqueColumns(ctx, db, obj.name)
	if err != nil {
		return nil, err
	}
	pkCount := 0
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pkCount++
		}
	}
	autoInc := autoIncrementPattern.MatchString(loader.StripComments(obj.sql))
	for i := range t.Columns {
		c := &t.Columns[i]
		c.Unique = unique[c.Name]
		c.AutoIncrement = autoInc && c.PrimaryKey && pkCount == 1 && strings.EqualFold(c.Type, "INTEGER")
	}

	for _, name := range ann.FieldOrder {
		c := t.Column(name)
		if c == nil {
			return nil, fmt.Errorf("%w: table %s: annotations for unknown column %q", core.ErrConsistency, obj.name, name)
		}
		c.Annotations = ann.Fields[name]
	}

	so, err := annotation.DecodeStatement(ann.Statement)
	if err != nil {
		return nil, withObject(err, obj.name)
	}
	t.Cascade = so.CascadeNotify
	return t, nil
}

func buildView(obj masterRow, columns []core.Column, ann *annotation.Annotations) (*core.View, error) {
	v := &core.View{
		Name:    obj.name,
		Columns: columns,
		SQL:     obj.sql,
		Fields:  make(map[string]core.AnnotationMap, len(ann.Fields)),
	}
	for _, name := range ann.FieldOrder {
		if v.Column(name) == nil {
			return nil, fmt.Errorf("%w: view %s: annotations for unknown field %q", core.ErrConsistency, obj.name, name)
		}
		v.Fields[name] = ann.Fields[name]
	}
	return v, nil
}

func listObjects(ctx context.Context, db *sql.DB) ([]masterRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT type, name, COALESCE(sql, '') FROM sqlite_master
		 WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema objects: %w", err)
	}
	defer rows.Close()

	var out []masterRow
	for rows.Next() {
		var r masterRow
		if err := rows.Scan(&r.kind, &r.name, &r.sql); err != nil {
			return nil, fmt.Errorf("failed to scan schema object: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schema objects: %w", err)
	}
	return out, nil
}

func tableInfo(ctx context.Context, db *sql.DB, name string) ([]core.Column, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer rows.Close()

	var out []core.Column
	for rows.Next() {
		var (
			c       core.Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk > 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	return out, nil
}

// uniqueColumns returns the columns covered on their own by a UNIQUE
// constraint or a unique index. Primary keys are not included.
func uniqueColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	indexes, err := indexList(ctx, db, table)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, idx := range indexes {
		if !idx.unique || idx.origin == "pk" {
			continue
		}
		cols, err := indexColumns(ctx, db, idx.name)
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			out[cols[0]] = true
		}
	}
	return out, nil
}

func indexList(ctx context.Context, db *sql.DB, table string) ([]indexRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var (
			r      indexRow
			unique int
		)
		if err := rows.Scan(&r.name, &unique, &r.origin); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		r.unique = unique != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	return out, nil
}

func indexColumns(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan index %s: %w", index, err)
		}
		// expression index columns have no name
		out = append(out, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	return out, nil
}

// withObject stamps the schema object name on annotation parse errors.
func withObject(err error, name string) error {
	var pe *annotation.ParseError
	if errors.As(err, &pe) && pe.Statement == "" {
		cp := *pe
		cp.Statement = name
		return &cp
	}
	return err
}
