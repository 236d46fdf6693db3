// Package store persists BASIC programs in SQLite. Each program keeps its
// source text next to the tokenized layout the interpreter loads, and a
// BLAKE2b checksum of the token bytes that is verified on every load.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// MaxNameLength bounds program names.
const MaxNameLength = 64

var (
	ErrNotFound         = errors.New("program not found")
	ErrInvalidName      = errors.New("invalid program name")
	ErrChecksumMismatch = errors.New("stored program fails its checksum")
)

// Program is one stored program.
type Program struct {
	ID        string
	Name      string
	Source    string
	Tokens    []byte
	Checksum  string
	Size      int // token bytes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	logger.StoreInfo("program store opened at %s", dbPath)
	return s, nil
}

// OpenFromConfig opens the database named by [Store] db_path.
func OpenFromConfig() (*Store, error) {
	return Open(configuration.GetString("Store", "db_path", "retrobasic.db"))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS programs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			tokens BLOB NOT NULL,
			checksum TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_programs_updated ON programs(updated_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Checksum returns the hex BLAKE2b-256 digest of a token layout.
func Checksum(tokens []byte) string {
	sum := blake2b.Sum256(tokens)
	return hex.EncodeToString(sum[:])
}

func normalizeName(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || len(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	for _, c := range name {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.') {
			return "", ErrInvalidName
		}
	}
	return name, nil
}

// Save tokenizes source and stores it under name, replacing an existing
// program of that name. Programs that fail to load are not stored.
func (s *Store) Save(name, source string) (*Program, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	b := basic.New()
	if err := b.LoadProgram(source); err != nil {
		return nil, err
	}
	tokens := b.Program()
	now := time.Now()
	p := &Program{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    source,
		Tokens:    tokens,
		Checksum:  Checksum(tokens),
		Size:      len(tokens),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.Exec(`
		INSERT INTO programs (id, name, source, tokens, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source = excluded.source,
			tokens = excluded.tokens,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Source, p.Tokens, p.Checksum, now.Unix(), now.Unix())
	if err != nil {
		logger.StoreError("saving %s failed: %v", name, err)
		return nil, fmt.Errorf("failed to save program: %w", err)
	}

	// The row keeps its original id and created_at on replacement.
	var created int64
	if err := s.db.QueryRow(`SELECT id, created_at FROM programs WHERE name = ?`, name).
		Scan(&p.ID, &created); err != nil {
		return nil, fmt.Errorf("failed to read back program: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	logger.StoreInfo("saved %s (%d token bytes, checksum %s)", name, len(tokens), p.Checksum[:12])
	return p, nil
}

// Load returns the program stored under name after checking its checksum
// and validating the token layout.
func (s *Store) Load(name string) (*Program, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	var p Program
	var created, updated int64
	err = s.db.QueryRow(`
		SELECT id, name, source, tokens, checksum, created_at, updated_at
		FROM programs WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &p.Source, &p.Tokens, &p.Checksum, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	p.Size = len(p.Tokens)
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)

	if Checksum(p.Tokens) != p.Checksum {
		logger.StoreError("checksum mismatch for %s", name)
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
	}
	if err := basic.New().LoadTokenized(p.Tokens); err != nil {
		logger.StoreError("stored tokens for %s are invalid: %v", name, err)
		return nil, err
	}
	logger.StoreDebug("loaded %s", name)
	return &p, nil
}

// List returns all programs ordered by name, without source or tokens.
func (s *Store) List() ([]Program, error) {
	rows, err := s.db.Query(`
		SELECT id, name, checksum, length(tokens), created_at, updated_at
		FROM programs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Checksum, &p.Size, &created, &updated); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes the program stored under name.
func (s *Store) Delete(name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM programs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	logger.StoreInfo("deleted %s", name)
	return nil
}

// SaveSource, LoadSource and Names serve the prompt's SAVE, LOAD and FILES.

func (s *Store) SaveSource(name, source string) error {
	_, err := s.Save(name, source)
	return err
}

func (s *Store) LoadSource(name string) (string, error) {
	p, err := s.Load(name)
	if err != nil {
		return "", err
	}
	return p.Source, nil
}

func (s *Store) Names() ([]string, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names, nil
}
