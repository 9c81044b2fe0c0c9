// Package duckdb provides the DuckDB warehouse engine. It is the default
// engine when a database config names no type.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/pkg/errors"

	"github.com/vk/stagecraft/internal/config"
	"github.com/vk/stagecraft/internal/registry"
	"github.com/vk/stagecraft/internal/sqlutil"
	"github.com/vk/stagecraft/internal/table"
)

// Module registers the engine.
type Module struct{}

func (Module) Register(r *registry.Registry) { r.RegisterEngine(&Engine{}) }

// Engine runs everything through database/sql over the duckdb driver.
// Registered in-memory tables become real tables (or views over them) inside
// proper schemas.
type Engine struct{}

func (e *Engine) Name() string { return "duckdb" }

func (e *Engine) CanHandle(cfg map[string]any) bool {
	switch config.String(cfg, "type") {
	case "duckdb", "":
	default:
		return false
	}
	path := config.String(cfg, "path")
	return path == "" || path == ":memory:" || strings.HasSuffix(path, ".duckdb") || strings.HasSuffix(path, ".db")
}

func (e *Engine) Connect(ctx context.Context, cfg map[string]any) (*sql.DB, error) {
	path := config.String(cfg, "path")
	if path == ":memory:" {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping duckdb")
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
	if err := e.CreateSchema(ctx, db, schema); err != nil {
		return err
	}
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
	if !replace && tableExists(ctx, db, schema, backingName(t.Name, asView)) {
		// append mode: insert into the existing table
		return sqlutil.InsertRows(ctx, db, backing, t, types)
	}
	if _, err := db.ExecContext(ctx, sqlutil.CreateDDL(backing, t, types)); err != nil {
		return errors.Wrapf(err, "create table %s", backing)
	}
	if err := sqlutil.InsertRows(ctx, db, backing, t, types); err != nil {
		return err
	}
	if asView {
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", ref, backing)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "create view %s", ref)
		}
	}
	return nil
}

func backingName(name string, asView bool) string {
	if asView {
		return name + "_src"
	}
	return name
}

func tableExists(ctx context.Context, db *sql.DB, schema, name string) bool {
	if schema == "" {
		schema = "main"
	}
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		schema, name).Scan(&one)
	return err == nil
}

func (e *Engine) CreateSchema(ctx context.Context, db *sql.DB, schema string) error {
	if schema == "" || schema == "main" {
		return nil
	}
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+sqlutil.Quote(schema))
	return errors.Wrapf(err, "create schema %q", schema)
}

func (e *Engine) Close(db *sql.DB) error { return db.Close() }

// TableRef renders a schema-qualified quoted reference.
func (e *Engine) TableRef(schema, tbl string) string {
	if schema == "" || schema == "main" {
		return sqlutil.Quote(tbl)
	}
	return sqlutil.Quote(schema) + "." + sqlutil.Quote(tbl)
}
