package duckdb

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
	assert.True(t, e.CanHandle(map[string]any{"type": "duckdb"}))
	assert.True(t, e.CanHandle(map[string]any{"path": "warehouse.duckdb"}))
	assert.True(t, e.CanHandle(map[string]any{}), "default engine without a type")
	assert.False(t, e.CanHandle(map[string]any{"type": "sqlite"}))
	assert.False(t, e.CanHandle(map[string]any{"path": "warehouse.sqlite"}))
}

func TestTableRef(t *testing.T) {
	e := &Engine{}
	assert.Equal(t, `"staging"."orders"`, e.TableRef("staging", "orders"))
	assert.Equal(t, `"orders"`, e.TableRef("", "orders"))
	assert.Equal(t, `"orders"`, e.TableRef("main", "orders"))
}

func TestRegisterTableReplace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tb := table.New("orders", []string{"id"})
	tb.Rows = [][]any{{int64(1)}}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "staging"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "staging"\."orders"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "staging"\."orders" \("id" BIGINT\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "staging"\."orders" VALUES \(\?\)`)
	prep.ExpectExec().WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := &Engine{}
	require.NoError(t, e.RegisterTable(context.Background(), db, tb, "staging", true, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterTableAsView(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tb := table.New("orders", []string{"id"})
	tb.Rows = [][]any{{int64(1)}}

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "staging"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP VIEW IF EXISTS "staging"\."orders"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP TABLE IF EXISTS "staging"\."orders_src"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "staging"\."orders_src"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "staging"\."orders_src"`)
	prep.ExpectExec().WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`CREATE OR REPLACE VIEW "staging"\."orders" AS SELECT \* FROM "staging"\."orders_src"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := &Engine{}
	require.NoError(t, e.RegisterTable(context.Background(), db, tb, "staging", true, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}
