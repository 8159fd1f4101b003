package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// bulkChunkSize bounds the number of pairs per IN (VALUES ...) clause.
	bulkChunkSize = 200
)

// Store is the durable, authoritative copy of every memory entity.
// Queries are written with ? placeholders and rebound for postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// Document is one mutable per-pair entity body with its monotonic version.
type Document struct {
	Key       models.PairKey
	Body      []byte
	Version   int64
	UpdatedAt time.Time
}

func Open(driver, dsn string, maxOpenConns int) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		// When using the modernc.org/sqlite driver, each pragma must be prefixed with `_pragma=`.
		db, err = sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open postgres database")
		}
		if maxOpenConns <= 0 {
			maxOpenConns = 20
		}
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(15 * time.Minute)
	default:
		return nil, errors.Errorf("unsupported store driver %q", driver)
	}

	return &Store{db: db, driver: driver}, nil
}

// NewStoreProvider opens and migrates the configured store.
func NewStoreProvider(conf *structures.Config) (*Store, func(), error) {
	s, err := Open(conf.Store.Driver, conf.Store.DSN, conf.Store.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}

	return s, func() { _ = s.Close() }, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "failed to ping database")
}

// rebind rewrites ? placeholders into $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

// pairValues renders "(?, ?), (?, ?)" for a row-value IN clause, creator first.
func pairValues(keys []models.PairKey) (string, []any) {
	parts := make([]string, len(keys))
	args := make([]any, 0, len(keys)*2)
	for i, k := range keys {
		parts[i] = "(?, ?)"
		args = append(args, k.CreatorID, k.FanID)
	}
	return strings.Join(parts, ", "), args
}

func chunkKeys(keys []models.PairKey, size int) [][]models.PairKey {
	var chunks [][]models.PairKey
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[:size])
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}

func dedupeKeys(keys []models.PairKey) []models.PairKey {
	seen := make(map[models.PairKey]struct{}, len(keys))
	out := make([]models.PairKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
