package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/querysql"
)

//go:embed closure.sql.tmpl
var closureSchemaTemplate string

var closureSchema = template.Must(template.New("closure").Parse(closureSchemaTemplate))

// Schema version tracking:
// 1 - closure table with PK (ancestor, descendant) and depth checks
const currentSchemaVersion = 1

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config describes the database a Store connects to.
type Config struct {
	// Driver is "sqlite3" (default) or "pgx".
	Driver string

	// DSN is a file path or ":memory:" for SQLite, a connection URL for pgx.
	DSN string

	// Schema names the node and closure tables.
	Schema ir.Schema

	// Logger receives connection and migration events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store provides transactional access to a closure table.
//
// A Store is safe for concurrent use. It holds no tree state of its own:
// consistency under concurrent writers comes from the database's
// transaction isolation (see WithTransaction).
type Store struct {
	db       *sql.DB
	dialect  querysql.Dialect
	schema   ir.Schema
	compiler *querysql.Compiler
	logger   *slog.Logger
}

// Open connects to the configured database and bootstraps the closure table.
//
// SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Immediate transactions, so read-then-write sequences never upgrade locks
//   - A single connection (one writer at a time)
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	schema := cfg.Schema.WithDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	dialect, err := querysql.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, ir.NewInvalidArgument("open", err.Error())
	}
	if cfg.DSN == "" {
		return nil, ir.NewInvalidArgument("open", "empty DSN")
	}

	dsn := cfg.DSN
	if dialect == querysql.SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, classify("open", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify("connect", err)
	}

	if dialect == querysql.SQLite {
		// SQLite only supports one writer at a time, so limit connections.
		// This also keeps ":memory:" databases alive for the Store's lifetime.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, classify("pragmas", err)
		}
	}

	s := &Store{
		db:       db,
		dialect:  dialect,
		schema:   schema,
		compiler: querysql.NewCompiler(dialect),
		logger:   cfg.Logger,
	}

	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, classify("schema", err)
	}

	s.logger.Debug("store opened",
		"driver", cfg.Driver,
		"closure_table", schema.ClosureTable,
		"node_table", schema.NodeTable)
	return s, nil
}

// sqliteDSN requests immediate transactions from go-sqlite3.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_txlock=immediate"
	}
	return dsn + "?_txlock=immediate"
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for DDL owned by other layers.
// Use with caution - prefer Query/Exec when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL dialect of the connection.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Schema returns the table configuration (defaults applied).
func (s *Store) Schema() ir.Schema {
	return s.schema
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the closure table if it doesn't exist and records
// the schema version. Node tables belong to the external layer.
func (s *Store) applySchema(ctx context.Context) error {
	if err := s.ApplyDDL(ctx, closureSchema, s.schema); err != nil {
		return err
	}
	return s.runMigrations(ctx)
}

// runMigrations applies incremental schema migrations per closure table.
func (s *Store) runMigrations(ctx context.Context) error {
	rows, err := s.Query(ctx, queryir.Select{
		From:    queryir.Table{Name: "closuretree_schema"},
		Columns: []queryir.Column{{Name: "version"}},
		Filter:  queryir.Equals{Column: queryir.Column{Name: "closure_table"}, Value: ir.IRString(s.schema.ClosureTable)},
	})
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	var version int64
	if len(rows) > 0 {
		version, _ = rows[0].Int("version")
	}

	if version >= currentSchemaVersion {
		return nil
	}

	// Version 1 is the table created above; later migrations go here.

	_, err = s.Exec(ctx, queryir.Insert{
		Table:    "closuretree_schema",
		Columns:  []string{"closure_table", "version"},
		Rows:     [][]ir.IRValue{{ir.IRString(s.schema.ClosureTable), ir.IRInt(currentSchemaVersion)}},
		Conflict: &queryir.Conflict{Columns: []string{"closure_table"}, Update: []string{"version"}},
	})
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	s.logger.Info("closure schema migrated", "closure_table", s.schema.ClosureTable, "version", currentSchemaVersion)
	return nil
}

// ApplyDDL renders a DDL template against data and executes each
// statement in turn. Statements are separated by semicolons; "--" comments
// are dropped first, so they may contain anything.
func (s *Store) ApplyDDL(ctx context.Context, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	for _, stmt := range strings.Split(stripComments(buf.String()), ";") {
		if !hasSQL(stmt) {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %s: %w", tmpl.Name(), err)
		}
	}
	return nil
}

// stripComments removes "--" comments up to the end of their line. Dashes
// inside single-quoted literals are kept.
func stripComments(script string) string {
	var out strings.Builder
	for line := range strings.Lines(script) {
		inQuote := false
		cut := len(line)
		for i := 0; i < len(line); i++ {
			switch {
			case line[i] == '\'':
				inQuote = !inQuote
			case !inQuote && line[i] == '-' && i+1 < len(line) && line[i+1] == '-':
				cut = i
			}
			if cut != len(line) {
				break
			}
		}
		out.WriteString(line[:cut])
		if cut != len(line) && strings.HasSuffix(line, "\n") {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// hasSQL reports whether stmt contains anything besides comments and space.
func hasSQL(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
