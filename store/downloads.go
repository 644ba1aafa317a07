// Package store tracks prepared download files between the prepare call and
// the retrieval call, backed by sqlite so a restart can still purge leftovers.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("prepared download not found")

// PreparedDownload is one file waiting under the temp area for retrieval.
type PreparedDownload struct {
	Token     string
	Filename  string // client-facing download name
	Path      string // absolute location on disk
	Title     string
	MediaType string // "mp3" or "mp4"
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS prepared_downloads (
		token TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		title TEXT NOT NULL,
		media_type TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prepared_created_at ON prepared_downloads(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(d PreparedDownload) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO prepared_downloads (token, filename, path, title, media_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.Token, d.Filename, d.Path, d.Title, d.MediaType, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store prepared download: %w", err)
	}
	return nil
}

func (s *Store) Get(token string) (PreparedDownload, error) {
	var d PreparedDownload
	var createdAt int64
	err := s.db.QueryRow(`
		SELECT token, filename, path, title, media_type, created_at
		FROM prepared_downloads WHERE token = ?`, token).
		Scan(&d.Token, &d.Filename, &d.Path, &d.Title, &d.MediaType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PreparedDownload{}, ErrNotFound
	}
	if err != nil {
		return PreparedDownload{}, fmt.Errorf("lookup prepared download: %w", err)
	}
	d.CreatedAt = time.Unix(createdAt, 0)
	return d, nil
}

// Delete removes the registry row and the file itself. A file that is
// already gone is not an error.
func (s *Store) Delete(token string) error {
	d, err := s.Get(token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove prepared file: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM prepared_downloads WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete prepared download: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes prepared downloads never retrieved within the TTL,
// files included. Returns how many entries were purged.
func (s *Store) PurgeOlderThan(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	rows, err := s.db.Query(`SELECT token FROM prepared_downloads WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale downloads: %w", err)
	}
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return 0, err
		}
		tokens = append(tokens, token)
	}
	rows.Close()

	purged := 0
	for _, token := range tokens {
		if err := s.Delete(token); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
