package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:base_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

type contextKey struct{}

func TestBaseBindsContext(t *testing.T) {
	db := openSQLite(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), contextKey{}, "value")
	bound := base.DB(ctx)
	require.NotNil(t, bound.Statement)
	require.Equal(t, ctx, bound.Statement.Context)

	//nolint:staticcheck // nil context keeps the raw handle
	require.Same(t, db, base.DB(nil))
}

func TestForUpdateSkipsLocksOnSQLite(t *testing.T) {
	base := NewBase(openSQLite(t))
	require.False(t, base.rowLocks)

	q := base.ForUpdate(context.Background())
	_, locked := q.Statement.Clauses["FOR"]
	require.False(t, locked)
}

func TestSupportsRowLocksHandlesNil(t *testing.T) {
	require.False(t, supportsRowLocks(nil))
}
