package watchlist

import (
	"context"
	"path/filepath"
	"testing"

	"polytracker/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// add inserts a watchlist item. Adding the same wallet twice for a user is a no-op.
func (s *SQLiteStore) add(ctx context.Context, userID, address, nickname string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchlist_items (user_id, wallet_address, nickname)
		VALUES (?, ?, NULLIF(?, ''))`,
		userID, address, nickname,
	)
	return err
}

func (s *SQLiteStore) remove(ctx context.Context, userID, address string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist_items WHERE user_id = ? AND lower(wallet_address) = lower(?)`,
		userID, address,
	)
	return err
}

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLiteStore(zap.NewNop(), filepath.Join(t.TempDir(), "watchlist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSQLiteStore_DistinctAcrossUsers(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	require.NoError(t, store.add(ctx, "user-1", addrB, "whale"))
	require.NoError(t, store.add(ctx, "user-1", addrA, ""))
	require.NoError(t, store.add(ctx, "user-2", "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", ""))

	addrs, err := store.Addresses(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{addrA, addrB}, addrs)
}

func TestSQLiteStore_DuplicateItemsListedOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	require.NoError(t, store.add(ctx, "user-1", addrA, ""))
	require.NoError(t, store.add(ctx, "user-1", addrA, "again"))

	addrs, err := store.Addresses(ctx)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestSQLiteStore_SkipsInvalidRows(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	require.NoError(t, store.add(ctx, "user-1", "garbage", ""))
	require.NoError(t, store.add(ctx, "user-1", addrA, ""))

	addrs, err := store.Addresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{addrA}, addrs)
}

func TestSQLiteStore_RemovedItemNotListed(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	require.NoError(t, store.add(ctx, "user-1", addrA, ""))
	require.NoError(t, store.add(ctx, "user-1", addrB, ""))
	require.NoError(t, store.remove(ctx, "user-1", "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"))

	addrs, err := store.Addresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{addrA}, addrs)
}

func TestSQLiteStore_Empty(t *testing.T) {
	store := openTestSQLite(t)

	addrs, err := store.Addresses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Watchlist.Backend = config.WatchlistBackendSQLite
	cfg.Watchlist.SQLitePath = filepath.Join(t.TempDir(), "w.db")

	store, err := Open(context.Background(), zap.NewNop(), cfg)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteStore)
	assert.True(t, ok, "expected *SQLiteStore, got %T", store)
}
