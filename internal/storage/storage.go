// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite-backed persistence for uploaded
// documents and confirmed conversations.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrFileNotFound = errors.New("file not found")
	ErrDatabase     = errors.New("database error")
)

// =============================================================================
// TYPES
// =============================================================================

// StoredFile is a persisted document with its extraction result.
type StoredFile struct {
	ID            string
	FileName      string
	FileSize      int64
	WordCount     int
	ExtractedText string
	UploadedAt    time.Time
}

// FileMeta is the listing view of a stored file: everything but the
// full extracted text, plus a short preview.
type FileMeta struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	WordCount  int       `json:"word_count"`
	UploadedAt time.Time `json:"uploaded_at"`
	Preview    string    `json:"text_preview"`
}

// Conversation is a persisted question/answer exchange.
type Conversation struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	FileName  string    `json:"file_name"`
	Timestamp time.Time `json:"timestamp"`
}

// previewLength is the number of characters exposed in file listings.
const previewLength = 200

// =============================================================================
// DATABASE
// =============================================================================

// DB wraps the SQLite database holding files and conversations.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &DB{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id             TEXT PRIMARY KEY,
		file_name      TEXT NOT NULL UNIQUE,
		file_size      INTEGER NOT NULL,
		word_count     INTEGER NOT NULL,
		extracted_text TEXT NOT NULL,
		uploaded_at    TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		question   TEXT NOT NULL,
		answer     TEXT NOT NULL,
		file_name  TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_created
		ON conversations(created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", ErrDatabase, err)
	}
	return nil
}

// =============================================================================
// FILE OPERATIONS
// =============================================================================

// SaveFile inserts or replaces a stored file. Re-uploading a document
// with the same name replaces its extraction.
func (s *DB) SaveFile(f *StoredFile) error {
	_, err := s.db.Exec(`
		INSERT INTO files (id, file_name, file_size, word_count, extracted_text, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			file_size = excluded.file_size,
			word_count = excluded.word_count,
			extracted_text = excluded.extracted_text,
			uploaded_at = excluded.uploaded_at`,
		f.ID, f.FileName, f.FileSize, f.WordCount, f.ExtractedText, f.UploadedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to save file: %v", ErrDatabase, err)
	}
	return nil
}

// ListFiles returns file metadata, newest upload first.
func (s *DB) ListFiles() ([]FileMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, file_name, file_size, word_count, uploaded_at,
		       substr(extracted_text, 1, ?)
		FROM files ORDER BY uploaded_at DESC`, previewLength)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list files: %v", ErrDatabase, err)
	}
	defer rows.Close()

	files := make([]FileMeta, 0)
	for rows.Next() {
		var m FileMeta
		if err := rows.Scan(&m.ID, &m.FileName, &m.FileSize, &m.WordCount, &m.UploadedAt, &m.Preview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		files = append(files, m)
	}
	return files, rows.Err()
}

// GetFile returns the full stored file, including extracted text.
func (s *DB) GetFile(id string) (*StoredFile, error) {
	return s.scanFile(s.db.QueryRow(`
		SELECT id, file_name, file_size, word_count, extracted_text, uploaded_at
		FROM files WHERE id = ?`, id))
}

// GetFileByName returns the stored file with the given name.
func (s *DB) GetFileByName(name string) (*StoredFile, error) {
	return s.scanFile(s.db.QueryRow(`
		SELECT id, file_name, file_size, word_count, extracted_text, uploaded_at
		FROM files WHERE file_name = ?`, name))
}

func (s *DB) scanFile(row *sql.Row) (*StoredFile, error) {
	var f StoredFile
	err := row.Scan(&f.ID, &f.FileName, &f.FileSize, &f.WordCount, &f.ExtractedText, &f.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return &f, nil
}

// DeleteFile removes a stored file by ID.
func (s *DB) DeleteFile(id string) error {
	res, err := s.db.Exec(`DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete file: %v", ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFileNotFound
	}
	return nil
}

// DeleteFileByName removes a stored file by name. Removing a file that
// is not stored is not an error; the upload-dir watcher calls this for
// any deleted path.
func (s *DB) DeleteFileByName(name string) error {
	if _, err := s.db.Exec(`DELETE FROM files WHERE file_name = ?`, name); err != nil {
		return fmt.Errorf("%w: failed to delete file: %v", ErrDatabase, err)
	}
	return nil
}

// CountFiles returns the number of stored files.
func (s *DB) CountFiles() (int, error) {
	return s.count(`SELECT COUNT(*) FROM files`)
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// SaveConversation persists a confirmed exchange.
func (s *DB) SaveConversation(c *Conversation) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, question, answer, file_name, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Question, c.Answer, c.FileName, c.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: failed to save conversation: %v", ErrDatabase, err)
	}
	return nil
}

// ListConversations returns up to limit conversations, most recent
// first. limit <= 0 means no limit.
func (s *DB) ListConversations(limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats negative LIMIT as unlimited
	}
	rows, err := s.db.Query(`
		SELECT id, question, answer, file_name, created_at
		FROM conversations ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list conversations: %v", ErrDatabase, err)
	}
	defer rows.Close()

	conversations := make([]*Conversation, 0)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Question, &c.Answer, &c.FileName, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

// CountConversations returns the number of stored conversations.
func (s *DB) CountConversations() (int, error) {
	return s.count(`SELECT COUNT(*) FROM conversations`)
}

// DeleteAllConversations removes every conversation. Irreversible; no
// partial delete exists.
func (s *DB) DeleteAllConversations() error {
	if _, err := s.db.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("%w: failed to clear conversations: %v", ErrDatabase, err)
	}
	return nil
}

func (s *DB) count(query string) (int, error) {
	var n int
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return n, nil
}
