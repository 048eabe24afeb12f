package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/querygen/internal/loader"
	"github.com/leapstack-labs/querygen/pkg/core"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Kind selects how a schema source is turned into a database.
type Kind string

// Schema source kinds.
const (
	// KindAuto picks sqlite for files, migrations for directories holding
	// goose annotations and ddl for other directories.
	KindAuto Kind = "auto"
	// KindSQLite opens an existing database file read-only.
	KindSQLite Kind = "sqlite"
	// KindDDL applies a directory of .sql files to an in-memory database.
	KindDDL Kind = "ddl"
	// KindMigrations applies a goose migration directory to an in-memory database.
	KindMigrations Kind = "migrations"
)

// ParseKind validates a schema kind name. Empty selects KindAuto.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindAuto, nil
	case KindAuto, KindSQLite, KindDDL, KindMigrations:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: unknown schema kind %q (want auto, sqlite, ddl or migrations)", core.ErrConfiguration, s)
}

var (
	createPattern = regexp.MustCompile("(?is)^\\s*CREATE\\s+(?:TEMP(?:ORARY)?\\s+)?(?:TABLE|VIEW)\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?" +
		"(?:[\"`\\[]?\\w+[\"`\\]]?\\.)?[\"`\\[]?(\\w+)")
	gooseUpPattern = regexp.MustCompile(`(?m)^\s*--\s*\+goose\s+Up\b`)
	gooseDownMark  = regexp.MustCompile(`(?m)^\s*--\s*\+goose\s+Down\b`)
	gooseDirective = regexp.MustCompile(`^\s*--\s*\+goose\b`)
)

// OpenOptions configures Open.
type OpenOptions struct {
	Kind   Kind
	Logger *slog.Logger
}

// Source is a read-only schema connection scoped to one generation run.
type Source struct {
	Path string
	Kind Kind

	db       *sql.DB
	preamble map[string][]string
	skip     []string
	logger   *slog.Logger
}

// Open prepares the schema at path. The returned Source must be closed
// when the run ends.
func Open(ctx context.Context, path string, opts OpenOptions) (*Source, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return nil, &ConfigError{Path: "(unset)", Message: "no schema configured"}
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindAuto
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Path: path, Message: "does not exist"}
		}
		return nil, &ConfigError{Path: path, Message: "cannot be read", Err: err}
	}

	if kind == KindAuto {
		kind, err = detectKind(path, info)
		if err != nil {
			return nil, err
		}
	}

	s := &Source{Path: path, Kind: kind, logger: logger, preamble: map[string][]string{}}
	switch kind {
	case KindSQLite:
		if info.IsDir() {
			return nil, &ConfigError{Path: path, Message: "is a directory, not a database file"}
		}
		err = s.openFile(ctx)
	case KindDDL:
		err = s.applyDDL(ctx)
	case KindMigrations:
		err = s.applyMigrations(ctx)
	default:
		_, err = ParseKind(string(kind))
	}
	if err != nil {
		if s.db != nil {
			_ = s.db.Close()
		}
		return nil, err
	}
	logger.Debug("schema opened", slog.String("path", path), slog.String("kind", string(kind)))
	return s, nil
}

// DB returns the underlying connection.
func (s *Source) DB() *sql.DB { return s.db }

// Catalog introspects the schema.
func (s *Source) Catalog(ctx context.Context) (*Catalog, error) {
	return Introspect(ctx, s.db, IntrospectOptions{
		Logger:   s.logger,
		Preamble: s.preamble,
		Skip:     s.skip,
	})
}

// Close releases the connection.
func (s *Source) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Source) openFile(ctx context.Context) error {
	db, err := sql.Open("sqlite", "file:"+s.Path+"?mode=ro")
	if err != nil {
		return &ConfigError{Path: s.Path, Message: "failed to open database", Err: err}
	}
	s.db = db
	if err := db.PingContext(ctx); err != nil {
		return &ConfigError{Path: s.Path, Message: "failed to open database", Err: err}
	}
	return nil
}

func (s *Source) openMemory(ctx context.Context) error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	s.db = db
	return db.PingContext(ctx)
}

func (s *Source) applyDDL(ctx context.Context) error {
	files, err := sqlFiles(s.Path)
	if err != nil {
		return err
	}
	if err := s.openMemory(ctx); err != nil {
		return err
	}
	for _, f := range files {
		text, err := os.ReadFile(f)
		if err != nil {
			return &ConfigError{Path: f, Message: "cannot be read", Err: err}
		}
		if _, err := s.db.ExecContext(ctx, string(text)); err != nil {
			return fmt.Errorf("%w: %s: %v", core.ErrParse, f, err)
		}
		s.collectPreamble(string(text))
		s.logger.Debug("applied schema file", slog.String("file", f))
	}
	return nil
}

func (s *Source) applyMigrations(ctx context.Context) error {
	files, err := sqlFiles(s.Path)
	if err != nil {
		return err
	}
	if err := s.openMemory(ctx); err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, os.DirFS(s.Path),
		goose.WithSlog(s.logger),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return &ConfigError{Path: s.Path, Message: "invalid migration directory", Err: err}
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrParse, s.Path, err)
	}
	s.logger.Debug("applied migrations", slog.Int("count", len(results)))

	for _, f := range files {
		text, err := os.ReadFile(f)
		if err != nil {
			return &ConfigError{Path: f, Message: "cannot be read", Err: err}
		}
		s.collectPreamble(upSection(string(text)))
	}
	s.skip = append(s.skip, goose.DefaultTablename)
	return nil
}

// collectPreamble records the comments written above each CREATE TABLE or
// CREATE VIEW. A later definition replaces an earlier one.
func (s *Source) collectPreamble(text string) {
	for _, chunk := range loader.SplitStatements(text) {
		m := createPattern.FindStringSubmatch(chunk.SQL)
		if m == nil {
			continue
		}
		var lines []string
		for _, l := range chunk.Comments {
			if !gooseDirective.MatchString(l) {
				lines = append(lines, l)
			}
		}
		s.preamble[m[1]] = lines
	}
}

// upSection returns the part of a goose migration before its Down marker.
func upSection(text string) string {
	if loc := gooseDownMark.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}

func detectKind(path string, info fs.FileInfo) (Kind, error) {
	if !info.IsDir() {
		return KindSQLite, nil
	}
	files, err := sqlFiles(path)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		text, err := os.ReadFile(f)
		if err != nil {
			return "", &ConfigError{Path: f, Message: "cannot be read", Err: err}
		}
		if gooseUpPattern.Match(text) {
			return KindMigrations, nil
		}
	}
	return KindDDL, nil
}

// sqlFiles lists the .sql files of dir in lexical order. Hidden files and
// subdirectories are ignored; any other file is an error.
func sqlFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Path: dir, Message: "does not exist"}
		}
		return nil, &ConfigError{Path: dir, Message: "cannot be read", Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Path: dir, Message: "is not a directory"}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Message: "cannot be listed", Err: err}
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".sql") {
			return nil, &ConfigError{Path: filepath.Join(dir, name), Message: "is not a .sql file"}
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return nil, &ConfigError{Path: dir, Message: "contains no .sql files"}
	}
	sort.Strings(files)
	return files, nil
}
