// Package sqlstore keeps board documents in a single relational table:
//
//	meetings(id TEXT PRIMARY KEY, sections TEXT)
//
// sections holds the encoded sections array. Queries are written with '?'
// placeholders and rebound for the driver, so the same code serves sqlite3 and
// postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

const schema = `CREATE TABLE IF NOT EXISTS meetings (
	id TEXT NOT NULL PRIMARY KEY,
	sections TEXT
)`

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects with the given driver ("sqlite3" or "postgres") and creates
// the table if needed.
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection keeps in-memory databases alive and writes serialized.
		db.SetMaxOpenConns(1)
	}
	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection. It does not touch the schema.
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("sqlstore")}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return store.Unavailable("create table", err)
	}
	s.logger.Debug("ensured meetings table")
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (model.Document, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`SELECT sections FROM meetings WHERE id = ?`), id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Document{}, false, nil
		}
		return model.Document{}, false, store.Unavailable("select", err)
	}
	doc, err := store.Decode([]byte(raw.String))
	if err != nil {
		return model.Document{}, true, fmt.Errorf("board %s: %w", id, err)
	}
	return doc, true, nil
}

func (s *Store) Save(ctx context.Context, id string, doc model.Document) error {
	b, err := model.EncodeSections(doc.Sections)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE meetings SET sections = ? WHERE id = ?`), string(b), id)
	if err != nil {
		return store.Unavailable("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Unavailable("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no board %q", store.ErrWriteRejected, id)
	}
	return nil
}

func (s *Store) Ensure(ctx context.Context, id string) error {
	if err := store.CheckID(id); err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO meetings (id, sections) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, id, "[]"); err != nil {
		return store.Unavailable("insert", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
