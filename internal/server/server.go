// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the docgenius answering service HTTP API.
//
// Endpoints:
//   - POST   /api/files          - Upload a document for extraction
//   - GET    /api/files          - List stored documents
//   - GET    /api/files/{id}     - Fetch a document with its full text
//   - DELETE /api/files/{id}     - Remove a document
//   - POST   /api/ask            - Ask a question about a document
//   - GET    /api/conversations  - List confirmed conversations
//   - DELETE /api/conversations  - Clear conversation history
//   - GET    /health             - Health check
//   - GET    /stats              - Usage statistics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/docgenius/internal/cloud"
	"github.com/jeranaias/docgenius/internal/extract"
	"github.com/jeranaias/docgenius/internal/files"
	"github.com/jeranaias/docgenius/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultListenAddr is the default bind address.
	DefaultListenAddr = "127.0.0.1:5000"

	// MinQuestionLength is the minimum question length in characters.
	MinQuestionLength = 3

	// MaxQuestionLength is the maximum question length in characters.
	MaxQuestionLength = 1000

	// MaxRequestBodySize caps request bodies. Uploads need headroom
	// beyond the raw file cap for multipart framing.
	MaxRequestBodySize = files.MaxFileSize + 1024*1024

	// Version is the service version.
	Version = "0.1.0"
)

// Answerer produces an answer for a question about a document. The
// production implementation is the cloud client; tests substitute a
// stub.
type Answerer interface {
	Answer(ctx context.Context, fileName, documentText, question string) (string, error)
}

// ============================================================================
// STATS
// ============================================================================

// Stats tracks service usage counters.
type Stats struct {
	mu                sync.Mutex
	totalRequests     int64
	questionsAnswered int64
	uploads           int64
	startTime         time.Time
}

// NewStats creates a Stats with the clock started.
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) recordRequest() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

func (s *Stats) recordAnswer() {
	s.mu.Lock()
	s.questionsAnswered++
	s.mu.Unlock()
}

func (s *Stats) recordUpload() {
	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() (totalRequests, questionsAnswered, uploads int64, uptime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests, s.questionsAnswered, s.uploads, time.Since(s.startTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the answering service HTTP server.
type Server struct {
	addr     string
	catalog  *files.Catalog
	db       *storage.DB
	answerer Answerer
	logger   *log.Logger
	limiter  *RateLimiter
	stats    *Stats

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithListenAddr sets the bind address.
func WithListenAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit caps /api/ask requests per client per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(perMinute) }
}

// New creates a Server over the given catalog, database, and answerer.
func New(catalog *files.Catalog, db *storage.DB, answerer Answerer, opts ...Option) *Server {
	s := &Server{
		addr:     DefaultListenAddr,
		catalog:  catalog,
		db:       db,
		answerer: answerer,
		logger:   log.Default(),
		limiter:  NewRateLimiter(0),
		stats:    NewStats(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully assembled HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/files", s.handleUpload)
	mux.HandleFunc("GET /api/files", s.handleListFiles)
	mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)
	mux.HandleFunc("DELETE /api/files/{id}", s.handleDeleteFile)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("DELETE /api/conversations", s.handleClearConversations)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	chain := Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		BodyLimitMiddleware(MaxRequestBodySize),
		RateLimitMiddleware(s.limiter, s.logger),
	)
	return chain(mux)
}

// Start begins serving until the context is canceled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("answering service listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// ============================================================================
// FILE HANDLERS
// ============================================================================

// fileResponse is the wire form of a stored document with its full
// extracted text.
type fileResponse struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	WordCount     int       `json:"word_count"`
	ExtractedText string    `json:"extracted_text"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	if err := r.ParseMultipartForm(files.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, files.MaxFileSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	stored, err := s.catalog.Ingest(header.Filename, data)
	if err != nil {
		var verr *files.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Reason)
		case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, extract.ErrEmptyDocument):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("upload failed", "file", header.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to process upload")
		}
		return
	}

	s.stats.recordUpload()
	writeJSON(w, http.StatusOK, storage.FileMeta{
		ID:         stored.ID,
		FileName:   stored.FileName,
		FileSize:   stored.FileSize,
		WordCount:  stored.WordCount,
		UploadedAt: stored.UploadedAt,
		Preview:    previewOf(stored.ExtractedText),
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	metas, err := s.catalog.List()
	if err != nil {
		s.logger.Error("failed to list files", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": metas,
		"count": len(metas),
	})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	stored, err := s.catalog.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("failed to fetch file", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch file")
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{
		ID:            stored.ID,
		FileName:      stored.FileName,
		FileSize:      stored.FileSize,
		WordCount:     stored.WordCount,
		ExtractedText: stored.ExtractedText,
		UploadedAt:    stored.UploadedAt,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	if err := s.catalog.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.logger.Error("failed to delete file", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// ASK HANDLER
// ============================================================================

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	question := strings.TrimSpace(r.FormValue("question"))
	if n := utf8.RuneCountInString(question); n < MinQuestionLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("question must be at least %d characters", MinQuestionLength))
		return
	} else if n > MaxQuestionLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("question must be at most %d characters", MaxQuestionLength))
		return
	}

	documentText := r.FormValue("extractedFileText")
	fileName := strings.TrimSpace(r.FormValue("fileName"))

	// Clients may reference a stored document instead of sending its
	// text inline.
	if documentText == "" {
		if id := r.FormValue("fileId"); id != "" {
			stored, err := s.catalog.Get(id)
			if err != nil {
				writeError(w, http.StatusBadRequest, "referenced file not found")
				return
			}
			documentText = stored.ExtractedText
			fileName = stored.FileName
		} else if fileName != "" {
			stored, err := s.db.GetFileByName(fileName)
			if err == nil {
				documentText = stored.ExtractedText
			}
		}
	}
	if documentText == "" {
		writeError(w, http.StatusBadRequest, "no document text provided; upload a file first")
		return
	}

	answer, err := s.answerer.Answer(r.Context(), fileName, documentText, question)
	if err != nil {
		s.writeAnswerError(w, err)
		return
	}

	// Persist the confirmed exchange. A storage failure does not void
	// the answer the user is waiting for.
	conv := &storage.Conversation{
		ID:        uuid.NewString(),
		Question:  question,
		Answer:    answer,
		FileName:  fileName,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.SaveConversation(conv); err != nil {
		s.logger.Error("failed to persist conversation", "err", err)
	}

	s.stats.recordAnswer()
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// writeAnswerError maps upstream answerer failures onto API statuses.
// Rate limiting passes through as 429 so clients can back off and
// retry.
func (s *Server) writeAnswerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cloud.ErrRateLimited):
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "AI service is rate limited, try again shortly")
	case errors.Is(err, cloud.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "AI service is not configured")
	case errors.Is(err, cloud.ErrAuthFailed):
		s.logger.Error("AI service authentication failed")
		writeError(w, http.StatusBadGateway, "AI service authentication failed")
	default:
		s.logger.Error("AI service request failed", "err", err)
		writeError(w, http.StatusBadGateway, "AI service request failed")
	}
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	convs, err := s.db.ListConversations(0)
	if err != nil {
		s.logger.Error("failed to list conversations", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	})
}

func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	s.stats.recordRequest()

	if err := s.db.DeleteAllConversations(); err != nil {
		s.logger.Error("failed to clear conversations", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to clear conversations")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HEALTH / STATS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, answered, uploads, uptime := s.stats.Snapshot()

	fileCount, err := s.db.CountFiles()
	if err != nil {
		fileCount = -1
	}
	convCount, err := s.db.CountConversations()
	if err != nil {
		convCount = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_requests":     total,
		"questions_answered": answered,
		"uploads":            uploads,
		"files":              fileCount,
		"conversations":      convCount,
		"uptime_seconds":     int64(uptime.Seconds()),
		"version":            Version,
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func previewOf(text string) string {
	const previewLength = 200
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}
