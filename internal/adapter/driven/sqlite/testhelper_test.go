package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated in-memory mirror named after the test so
// parallel tests never share rows.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := openPools(context.Background(), memoryDSN(t.Name()), memoryDSN(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer))

	return db
}

// memoryDSN builds a DSN for a named shared-cache in-memory database. WAL
// does not apply to memory databases.
func memoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(name), basePragmas)
}
