// Package sqlitedb provides the SQLite warehouse engine. SQLite has no
// schema support, so schema-qualified names flatten to "schema_table".
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/sqlutil"
	"github.com/vk/stagecraft/internal/table"
)

// Module registers the engine.
type Module struct{}

func (Module) Register(r *registry.Registry) { r.RegisterEngine(&Engine{}) }

// Engine stores everything in a single SQLite database file (or memory).
type Engine struct{}

func (e *Engine) Name() string { return "sqlite" }

func (e *Engine) CanHandle(cfg map[string]any) bool {
	if config.String(cfg, "type") == "sqlite" {
		return true
	}
	path := config.String(cfg, "path")
	return strings.HasSuffix(path, ".sqlite") || strings.HasSuffix(path, ".sqlite3")
}

func (e *Engine) Connect(ctx context.Context, cfg map[string]any) (*sql.DB, error) {
	path := config.StringOr(cfg, "path", ":memory:")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// The driver serializes access itself, but a single connection keeps
	// in-memory databases from evaporating between pool checkouts.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	return db, nil
}

func (e *Engine) Execute(ctx context.Context, db *sql.DB, sqlText string) error {
	_, err := db.ExecContext(ctx, sqlText)
	return errors.WithStack(err)
}

func (e *Engine) Query(ctx context.Context, db *sql.DB, sqlText string) (*table.Table, error) {
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	return sqlutil.ScanRows(rows)
}

func (e *Engine) RegisterTable(ctx context.Context, db *sql.DB, t *table.Table, schema string, replace, asView bool) error {
	ref := e.TableRef(schema, t.Name)
	backing := ref
	if asView {
		backing = e.TableRef(schema, t.Name+"_src")
	}

	if replace {
		if asView {
			if _, err := db.ExecContext(ctx, "DROP VIEW IF EXISTS "+ref); err != nil {
				return errors.Wrapf(err, "drop view %s", ref)
			}
		}
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+backing); err != nil {
			return errors.Wrapf(err, "drop table %s", backing)
		}
	}

	types := sqlutil.ColumnTypes(t)
	if !replace && tableExists(ctx, db, flatName(schema, backingBase(t.Name, asView))) {
		return sqlutil.InsertRows(ctx, db, backing, t, types)
	}
	if _, err := db.ExecContext(ctx, sqlutil.CreateDDL(backing, t, types)); err != nil {
		return errors.Wrapf(err, "create table %s", backing)
	}
	if err := sqlutil.InsertRows(ctx, db, backing, t, types); err != nil {
		return err
	}
	if asView {
		stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", ref, backing)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "create view %s", ref)
		}
	}
	return nil
}

func backingBase(name string, asView bool) string {
	if asView {
		return name + "_src"
	}
	return name
}

func tableExists(ctx context.Context, db *sql.DB, name string) bool {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?",
		name).Scan(&one)
	return err == nil
}

// CreateSchema is a no-op: SQLite has no schemas, names flatten instead.
func (e *Engine) CreateSchema(context.Context, *sql.DB, string) error { return nil }

func (e *Engine) Close(db *sql.DB) error { return db.Close() }

// TableRef flattens schema qualification into a name prefix.
func (e *Engine) TableRef(schema, tbl string) string {
	return sqlutil.Quote(flatName(schema, tbl))
}

func flatName(schema, tbl string) string {
	if schema == "" || schema == "main" {
		return tbl
	}
	return schema + "_" + tbl
}
