package watchlist

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchemaDDL = `
CREATE TABLE IF NOT EXISTS watchlist_items (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id        TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	nickname       TEXT,
	created_at     TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE (user_id, wallet_address)
);
`

// SQLiteStore keeps the watchlist in a local file, for single-node deployments.
type SQLiteStore struct {
	logger *zap.Logger
	db     *sql.DB
}

func OpenSQLiteStore(logger *zap.Logger, path string) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	return &SQLiteStore{logger: logger, db: db}, nil
}

func (s *SQLiteStore) Addresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT lower(wallet_address) FROM watchlist_items ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	var raw []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan watchlist row: %w", err)
		}
		raw = append(raw, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchlist: %w", err)
	}

	return normalizeAll(s.logger, raw), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
