package sqlitedb

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stagecraft/internal/table"
)

func TestCanHandle(t *testing.T) {
	e := &Engine{}
	assert.True(t, e.CanHandle(map[string]any{"type": "sqlite"}))
	assert.True(t, e.CanHandle(map[string]any{"path": "warehouse.sqlite"}))
	assert.True(t, e.CanHandle(map[string]any{"path": "warehouse.sqlite3"}))
	assert.False(t, e.CanHandle(map[string]any{"type": "duckdb"}))
	assert.False(t, e.CanHandle(map[string]any{}))
}

func TestTableRefFlattensSchemas(t *testing.T) {
	e := &Engine{}
	assert.Equal(t, `"staging_orders"`, e.TableRef("staging", "orders"))
	assert.Equal(t, `"orders"`, e.TableRef("", "orders"))
	assert.Equal(t, `"orders"`, e.TableRef("main", "orders"))
}

func TestRegisterTableFlattened(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tb := table.New("orders", []string{"id", "note"})
	tb.Rows = [][]any{{int64(1), "a"}}

	mock.ExpectExec(`DROP TABLE IF EXISTS "staging_orders"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "staging_orders" \("id" BIGINT, "note" TEXT\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "staging_orders" VALUES \(\?, \?\)`)
	prep.ExpectExec().WithArgs(int64(1), "a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := &Engine{}
	require.NoError(t, e.RegisterTable(context.Background(), db, tb, "staging", true, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchemaIsNoOp(t *testing.T) {
	e := &Engine{}
	assert.NoError(t, e.CreateSchema(context.Background(), nil, "staging"))
}
