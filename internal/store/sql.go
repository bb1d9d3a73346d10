package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	_ "github.com/mattn/go-sqlite3"    // register sqlite3 as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
)

//go:embed migrations/*/*.sql
var migrationFiles embed.FS

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) migrationDir() string {
	if d == DialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// SQL stores records as JSON documents in the concatenation_states table.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQL wraps an open database. The schema must already exist.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect, now: time.Now}
}

// OpenSQL connects, verifies connectivity and applies migrations.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s store requires a dsn", dialect)
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == DialectSQLite {
		// sqlite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Str("dialect", string(dialect)).Msg("sql store ready")
	return NewSQL(db, dialect), nil
}

// RunMigrations applies the embedded migrations for dialect. If database is
// nil, it's a no-op.
func RunMigrations(ctx context.Context, database *sql.DB, dialect Dialect) error {
	if database == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return err
	}
	return goose.UpContext(ctx, database, dialect.migrationDir())
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) Get(ctx context.Context, name string) (*concat.State, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT document FROM concatenation_states WHERE original_file_name = ?`), name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	var st concat.State
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", name, err)
	}
	return &st, nil
}

func (s *SQL) Put(ctx context.Context, st *concat.State) error {
	if err := checkPut(st); err != nil {
		return err
	}
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	const query = `
INSERT INTO concatenation_states (original_file_name, document, status, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (original_file_name) DO UPDATE
SET document = excluded.document, status = excluded.status, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		st.OriginalFileName, string(doc), string(st.Status), s.now().UTC()); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM concatenation_states WHERE original_file_name = ?`), name); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *SQL) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT original_file_name FROM concatenation_states ORDER BY original_file_name`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *SQL) Close() error { return s.db.Close() }
