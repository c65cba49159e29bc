// Package sqlite is the on-disk preference store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"qtsettings/internal/store"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements store.Store on SQLite.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and runs migrations.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM kv WHERE key IN (?)`, keys)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("removing %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

func (s *Store) LoadHosts(ctx context.Context) ([]store.HostRecord, error) {
	var saved int
	if err := s.db.GetContext(ctx, &saved, `SELECT COUNT(*) FROM host_list_meta`); err != nil {
		return nil, fmt.Errorf("reading host list marker: %w", err)
	}
	if saved == 0 {
		return nil, nil
	}

	hosts := []store.HostRecord{}
	err := s.db.SelectContext(ctx, &hosts,
		`SELECT id, name, hostname, builtin, selected, info FROM dns_hosts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("listing hosts: %w", err)
	}
	return hosts, nil
}

// SaveHosts replaces the whole list in one transaction.
func (s *Store) SaveHosts(ctx context.Context, hosts []store.HostRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dns_hosts`); err != nil {
		return fmt.Errorf("clearing hosts: %w", err)
	}
	for i, h := range hosts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dns_hosts (id, position, name, hostname, builtin, selected, info)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, i, h.Name, h.Hostname, h.Builtin, h.Selected, h.Info)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: duplicate id %q", store.ErrInvalidHost, h.ID)
			}
			return fmt.Errorf("inserting host %s: %w", h.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO host_list_meta (id, saved_at) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at`,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing host list marker: %w", err)
	}

	return tx.Commit()
}
