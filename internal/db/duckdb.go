// Package db mirrors the station catalog into DuckDB for ad-hoc SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-metro/internal/station"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration. An empty DataDir keeps the database
// in memory.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Open opens a new DuckDB connection for cfg.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("duckdb: %w", err)
	}
	return conn, nil
}

// Close closes the singleton connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

var schema = []string{
	`CREATE OR REPLACE TABLE lines (
		name     VARCHAR PRIMARY KEY,
		color    VARCHAR NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE OR REPLACE TABLE stations (
		id      INTEGER PRIMARY KEY,
		name    VARCHAR NOT NULL,
		origin  VARCHAR,
		history VARCHAR
	)`,
	`CREATE OR REPLACE TABLE station_lines (
		station_id INTEGER NOT NULL,
		line       VARCHAR NOT NULL,
		seq        INTEGER NOT NULL
	)`,
}

// Mirror replaces the lines, stations and station_lines tables with the
// contents of catalog. seq is the station's position along the line.
func Mirror(ctx context.Context, conn *sql.DB, catalog *station.Catalog) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create mirror schema: %w", err)
		}
	}

	for i, l := range catalog.Lines() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lines VALUES (?, ?, ?)`,
			l.Name, catalog.LineColor(l.Name), i,
		); err != nil {
			return fmt.Errorf("mirror line %s: %w", l.Name, err)
		}
		for seq, s := range catalog.ByLine(l.Name) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO station_lines VALUES (?, ?, ?)`,
				s.ID, l.Name, seq,
			); err != nil {
				return fmt.Errorf("mirror station %d on %s: %w", s.ID, l.Name, err)
			}
		}
	}

	for _, s := range catalog.All() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stations VALUES (?, ?, ?, ?)`,
			s.ID, s.Name, nullable(s.Origin), nullable(s.History),
		); err != nil {
			return fmt.Errorf("mirror station %d: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
