package bookmark

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Dialect names accepted by NewSQLStore
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// open_time is stored as unix seconds: identities have second resolution
// and both backends share one schema.
const createTableSQL = `CREATE TABLE IF NOT EXISTS log_cache (
	path      TEXT   NOT NULL,
	open_time BIGINT NOT NULL,
	bookmark  BIGINT NOT NULL,
	PRIMARY KEY (path, open_time)
)`

// SQLStore implements Store on top of database/sql.
// The table layout follows the historical log_cache(path, open_time, bookmark).
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore opens a SQL bookmark store and ensures the table exists
func NewSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	driver, err := driverName(dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// Single writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", dialect, err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating log_cache table: %w", err)
	}

	log.Info().
		Str("dialect", dialect).
		Msg("SQL bookmark store initialized")

	return &SQLStore{db: db, dialect: dialect}, nil
}

func driverName(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect: %s (use 'postgres' or 'sqlite')", dialect)
	}
}

// rebind rewrites ? placeholders into $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LoadAll returns every row of log_cache
func (s *SQLStore) LoadAll(ctx context.Context) ([]domain.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, open_time, bookmark FROM log_cache")
	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}
	defer rows.Close()

	var result []domain.Bookmark
	for rows.Next() {
		var (
			path     string
			openTime int64
			offset   int64
		)
		if err := rows.Scan(&path, &openTime, &offset); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		result = append(result, domain.Bookmark{
			Identity: domain.NewLogIdentity(path, time.Unix(openTime, 0)),
			Offset:   int(offset),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}

	return result, nil
}

// Insert creates the row for a new identity
func (s *SQLStore) Insert(ctx context.Context, id domain.LogIdentity, offset int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	exists, err := s.exists(ctx, tx, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("failed to insert bookmark %s: %w", id, ErrExists)
	}

	_, err = tx.ExecContext(ctx,
		s.rebind("INSERT INTO log_cache (path, open_time, bookmark) VALUES (?, ?, ?)"),
		id.Path, id.OpenTime.Unix(), int64(offset))
	if err != nil {
		return fmt.Errorf("failed to insert bookmark %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bookmark %s: %w", id, err)
	}

	return nil
}

// Update moves the bookmark of a known identity
func (s *SQLStore) Update(ctx context.Context, id domain.LogIdentity, offset int) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE log_cache SET bookmark = ? WHERE path = ? AND open_time = ?"),
		int64(offset), id.Path, id.OpenTime.Unix())
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update bookmark %s: %w", id, ErrNotFound)
	}

	return nil
}

func (s *SQLStore) exists(ctx context.Context, tx *sql.Tx, id domain.LogIdentity) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM log_cache WHERE path = ? AND open_time = ?"),
		id.Path, id.OpenTime.Unix()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check bookmark %s: %w", id, err)
	}
	return count > 0, nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	log.Info().Str("dialect", s.dialect).Msg("Closing SQL bookmark store")
	return s.db.Close()
}
