package savestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"dreamdecor.ai/internal/persistence/snapshot"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQL stores each save as a snapshot blob in a single table. The same
// queries serve sqlite and postgres; only placeholders differ.
type SQL struct {
	dialect Dialect
	db      *sql.DB
}

// OpenFromEnv reads DB_DIALECT (default sqlite), DB_SQLITE_PATH and
// DB_POSTGRES_DSN / DATABASE_URL.
func OpenFromEnv(ctx context.Context, defaultSQLitePath string) (*SQL, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if raw == "" {
		raw = string(DialectSQLite)
	}
	switch Dialect(raw) {
	case DialectSQLite:
		path := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if path == "" {
			path = defaultSQLitePath
		}
		return Open(ctx, DialectSQLite, path)
	case DialectPostgres:
		dsn := strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
		return Open(ctx, DialectPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", raw)
	}
}

func Open(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
		if dsn == "" {
			return nil, fmt.Errorf("empty sqlite path")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	s := &SQL{dialect: dialect, db: db}
	if dialect == DialectSQLite {
		if err := s.initPragmas(pctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := s.applyMigrations(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) Dialect() Dialect { return s.dialect }

func (s *SQL) initPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQL) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (s *SQL) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		q := fmt.Sprintf("INSERT INTO schema_migrations (version, applied_at) VALUES (%s, %s)", s.bind(1), s.bind(2))
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func (s *SQL) Save(ctx context.Context, identity string, snap snapshot.SaveV1) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	snap.Header.Identity = id
	blob, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO saves (identity, saved_at, catalog_digest, payload) VALUES (%s, %s, %s, %s)
		ON CONFLICT (identity) DO UPDATE SET saved_at = excluded.saved_at, catalog_digest = excluded.catalog_digest, payload = excluded.payload`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4))
	if _, err := s.db.ExecContext(ctx, q, id, snap.Header.SavedAt.UTC().Format(time.RFC3339Nano), snap.CatalogDigest, blob); err != nil {
		return fmt.Errorf("save %q: %w", id, err)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context, identity string) (snapshot.SaveV1, bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return snapshot.SaveV1{}, false, err
	}
	var blob []byte
	q := fmt.Sprintf("SELECT payload FROM saves WHERE identity = %s", s.bind(1))
	err = s.db.QueryRowContext(ctx, q, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.SaveV1{}, false, nil
	}
	if err != nil {
		return snapshot.SaveV1{}, false, fmt.Errorf("load %q: %w", id, err)
	}
	snap, err := snapshot.Unmarshal(blob)
	if err != nil {
		return snapshot.SaveV1{}, false, fmt.Errorf("decode %q: %w", id, err)
	}
	return snap, true, nil
}

func (s *SQL) Exists(ctx context.Context, identity string) (bool, error) {
	id, err := normIdentity(identity)
	if err != nil {
		return false, err
	}
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM saves WHERE identity = %s", s.bind(1))
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %q: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQL) Delete(ctx context.Context, identity string) error {
	id, err := normIdentity(identity)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM saves WHERE identity = %s", s.bind(1))
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

func (s *SQL) List(ctx context.Context) ([]snapshot.Header, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity, saved_at FROM saves ORDER BY identity")
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()
	var out []snapshot.Header
	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("save %q: saved_at: %w", id, err)
		}
		out = append(out, snapshot.Header{Version: snapshot.Version, Identity: id, SavedAt: t})
	}
	return out, rows.Err()
}

func (s *SQL) Close() error { return s.db.Close() }
