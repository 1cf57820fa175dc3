package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect selects placeholder style and migration dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Option configures a Store.
type Option func(*Store)

// WithDependentTables names extra tables holding rows keyed by user_id.
// DeleteIdentity clears them, in order, before the built-in tables.
func WithDependentTables(tables ...string) Option {
	return func(s *Store) {
		s.dependents = append(s.dependents, tables...)
	}
}

// WithLogger routes migration output to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a SQL-backed goFactor.IdentityStore. It is safe for concurrent use.
type Store struct {
	db         *sql.DB
	pool       *pgxpool.Pool
	dialect    Dialect
	dependents []string
	logger     *slog.Logger
	now        func() time.Time
}

var _ goFactor.IdentityStore = (*Store)(nil)

// New wraps an open database. Dependent table names must be plain SQL
// identifiers.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil database")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.dependents {
		if !identRe.MatchString(t) {
			return nil, fmt.Errorf("sqlstore: invalid dependent table %q", t)
		}
	}
	return s, nil
}

// OpenPostgres connects a pgx pool and bridges it to database/sql.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlstore: ping postgres: %w", err)
	}

	s, err := New(stdlib.OpenDBFromPool(pool), DialectPostgres, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

// OpenSQLite opens dsn with the modernc driver. SQLite allows one writer,
// so the pool is held to a single connection; this also keeps ":memory:"
// databases alive for the lifetime of the Store.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: enable foreign keys: %w", err)
	}

	s, err := New(db, DialectSQLite, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: s.logger})
	if err := goose.SetDialect(string(s.dialect)); err != nil {
		return fmt.Errorf("sqlstore: migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database and, for Postgres, the pgx pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// gooseLogger bridges goose's Printf-style output to slog.
type gooseLogger struct {
	log *slog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// q rewrites ? placeholders to $n for Postgres.
func (s *Store) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func newID() string {
	return uuid.NewString()
}
