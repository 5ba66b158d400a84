package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a SQLite database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SeedChannels loads defs into an empty channels table. It is a no-op once
// any channel exists, so edits survive restarts.
func (s *Store) SeedChannels(defs []models.ChannelDefinition) error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM channels").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i, d := range defs {
		aliases, err := json.Marshal(d.Aliases)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO channels (id, standard_name, aliases, position, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, d.ID, d.StandardName, string(aliases), i, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed channel %s: %w", d.StandardName, err)
		}
	}
	return tx.Commit()
}

// ListChannels returns every channel in catalog order.
func (s *Store) ListChannels() ([]models.ChannelDefinition, error) {
	rows, err := s.db.Query("SELECT id, standard_name, aliases FROM channels ORDER BY position, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChannelDefinition
	for rows.Next() {
		d, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Catalog builds a resolver over the stored channels.
func (s *Store) Catalog() (*channels.Catalog, error) {
	defs, err := s.ListChannels()
	if err != nil {
		return nil, err
	}
	return channels.NewCatalog(defs), nil
}

func (s *Store) GetChannel(id string) (*models.ChannelDefinition, error) {
	row := s.db.QueryRow("SELECT id, standard_name, aliases FROM channels WHERE id = ?", id)
	d, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateChannel appends a channel to the end of the catalog. An empty ID is
// assigned the next numeric id.
func (s *Store) CreateChannel(d models.ChannelDefinition) (*models.ChannelDefinition, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pos sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(position) FROM channels").Scan(&pos); err != nil {
		return nil, err
	}
	if d.ID == "" {
		var maxID sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(CAST(id AS INTEGER)) FROM channels").Scan(&maxID); err != nil {
			return nil, err
		}
		d.ID = strconv.FormatInt(maxID.Int64+1, 10)
	}

	aliases, err := json.Marshal(nonNil(d.Aliases))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		INSERT INTO channels (id, standard_name, aliases, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.StandardName, string(aliases), pos.Int64+1, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) UpdateChannel(d models.ChannelDefinition) error {
	aliases, err := json.Marshal(nonNil(d.Aliases))
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE channels SET standard_name = ?, aliases = ?, updated_at = ?
		WHERE id = ?
	`, d.StandardName, string(aliases), time.Now().UTC(), d.ID)
	if err != nil {
		return err
	}
	return expectOne(res, "channel "+d.ID)
}

func (s *Store) DeleteChannel(id string) error {
	res, err := s.db.Exec("DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOne(res, "channel "+id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(sc scanner) (models.ChannelDefinition, error) {
	var (
		d       models.ChannelDefinition
		aliases string
	)
	if err := sc.Scan(&d.ID, &d.StandardName, &aliases); err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(aliases), &d.Aliases); err != nil {
		return d, fmt.Errorf("decode aliases for %s: %w", d.ID, err)
	}
	return d, nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
