// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/docgenius/internal/extract"
	"github.com/jeranaias/docgenius/internal/storage"
	"github.com/jeranaias/docgenius/internal/util"
)

// Catalog is the server-side document store: raw uploads on disk, the
// extraction results in SQLite.
type Catalog struct {
	db        *storage.DB
	uploadDir string
	logger    *log.Logger
}

// NewCatalog creates a catalog rooted at uploadDir.
func NewCatalog(db *storage.DB, uploadDir string, logger *log.Logger) (*Catalog, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Catalog{db: db, uploadDir: uploadDir, logger: logger}, nil
}

// UploadDir returns the directory holding raw uploads.
func (c *Catalog) UploadDir() string {
	return c.uploadDir
}

// Ingest validates an upload, extracts its text, spools the raw bytes
// to the upload directory, and records the result. Re-uploading a file
// name replaces the previous extraction.
func (c *Catalog) Ingest(fileName string, data []byte) (*storage.StoredFile, error) {
	if err := ValidateUpload(fileName, int64(len(data))); err != nil {
		return nil, err
	}

	text, err := extract.Text(fileName, data)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(c.uploadDir, filepath.Base(fileName))
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	stored := &storage.StoredFile{
		ID:            uuid.NewString(),
		FileName:      filepath.Base(fileName),
		FileSize:      int64(len(data)),
		WordCount:     extract.WordCount(text),
		ExtractedText: text,
		UploadedAt:    time.Now().UTC(),
	}
	if err := c.db.SaveFile(stored); err != nil {
		return nil, err
	}

	c.logger.Info("document ingested",
		"file", stored.FileName, "bytes", stored.FileSize, "words", stored.WordCount)
	return stored, nil
}

// List returns metadata for every stored document, newest first.
func (c *Catalog) List() ([]storage.FileMeta, error) {
	return c.db.ListFiles()
}

// Get returns a stored document with its full extracted text.
func (c *Catalog) Get(id string) (*storage.StoredFile, error) {
	return c.db.GetFile(id)
}

// Delete removes a document from the catalog and the upload directory.
func (c *Catalog) Delete(id string) error {
	stored, err := c.db.GetFile(id)
	if err != nil {
		return err
	}
	if err := c.db.DeleteFile(id); err != nil {
		return err
	}
	// Best effort; the database row is authoritative.
	if err := os.Remove(filepath.Join(c.uploadDir, stored.FileName)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove upload from disk", "file", stored.FileName, "err", err)
	}
	return nil
}

// refreshFromDisk re-extracts a document that changed on disk. Used by
// the watcher for files dropped into the upload directory out-of-band.
func (c *Catalog) refreshFromDisk(path string) error {
	name := filepath.Base(path)
	if err := ValidateUpload(name, 1); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := ValidateUpload(name, int64(len(data))); err != nil {
		return err
	}

	text, err := extract.Text(name, data)
	if err != nil {
		return err
	}

	stored := &storage.StoredFile{
		ID:            uuid.NewString(),
		FileName:      name,
		FileSize:      int64(len(data)),
		WordCount:     extract.WordCount(text),
		ExtractedText: text,
		UploadedAt:    time.Now().UTC(),
	}
	if err := c.db.SaveFile(stored); err != nil {
		return err
	}

	c.logger.Info("document refreshed from disk", "file", name, "words", stored.WordCount)
	return nil
}

// removeByName drops the catalog entry for a file deleted on disk.
func (c *Catalog) removeByName(path string) error {
	return c.db.DeleteFileByName(filepath.Base(path))
}
