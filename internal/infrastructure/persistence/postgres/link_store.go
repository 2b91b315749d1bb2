package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/argproxy/internal/domain/repository"
	"github.com/turtacn/argproxy/pkg/errors"
	"github.com/turtacn/argproxy/pkg/logger"
)

var _ repository.LinkStore = (*LinkStore)(nil)

const (
	createSignedLinksTable = `
CREATE TABLE IF NOT EXISTS signed_links (
    cache_key  TEXT PRIMARY KEY,
    record     BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectSignedLink = `SELECT record FROM signed_links WHERE cache_key = $1`

	upsertSignedLink = `
INSERT INTO signed_links (cache_key, record, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (cache_key) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`
)

// querier is the subset of pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// LinkStore keeps encoded link records in the signed_links table.
// LinkStore 将编码后的链接记录保存在 signed_links 表中。
type LinkStore struct {
	db  querier
	log logger.Logger
}

// NewLinkStore creates a postgres-backed link store on an open pool.
func NewLinkStore(db querier, log logger.Logger) *LinkStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &LinkStore{db: db, log: log.WithComponent("postgres_link_store")}
}

// EnsureSchema creates the signed_links table when it does not exist.
func (s *LinkStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSignedLinksTable); err != nil {
		return errors.ErrCacheIO("migrate").WithCause(err)
	}
	return nil
}

// Get returns the record under key. A missing row is (nil, false, nil).
func (s *LinkStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var record []byte
	if err := s.db.QueryRow(ctx, selectSignedLink, key).Scan(&record); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		s.log.Warn(ctx, "postgres select failed", logger.String("cache_key", key), logger.Err(err))
		return nil, false, errors.ErrCacheIO("get").WithCause(err)
	}
	return record, true, nil
}

// Put inserts or replaces the record under key.
func (s *LinkStore) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.db.Exec(ctx, upsertSignedLink, key, value); err != nil {
		s.log.Warn(ctx, "postgres upsert failed", logger.String("cache_key", key), logger.Err(err))
		return errors.ErrCacheIO("put").WithCause(err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *LinkStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
