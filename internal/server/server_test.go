// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/docgenius/internal/cloud"
	"github.com/jeranaias/docgenius/internal/files"
	"github.com/jeranaias/docgenius/internal/storage"
)

// stubAnswerer returns a canned answer or error and records its inputs.
type stubAnswerer struct {
	answer   string
	err      error
	fileName string
	document string
	question string
	calls    int
}

func (a *stubAnswerer) Answer(ctx context.Context, fileName, documentText, question string) (string, error) {
	a.calls++
	a.fileName = fileName
	a.document = documentText
	a.question = question
	if a.err != nil {
		return "", a.err
	}
	return a.answer, nil
}

func newTestServer(t *testing.T, answerer Answerer, opts ...Option) (*Server, *storage.DB) {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "docgenius.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := log.New(os.Stderr)
	logger.SetLevel(log.FatalLevel)

	catalog, err := files.NewCatalog(db, filepath.Join(dir, "uploads"), logger)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}

	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(catalog, db, answerer, opts...), db
}

func uploadRequest(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func askForm(question, text, fileName string) *strings.Reader {
	form := url.Values{}
	form.Set("question", question)
	form.Set("extractedFileText", text)
	form.Set("fileName", fileName)
	return strings.NewReader(form.Encode())
}

// =============================================================================
// File lifecycle
// =============================================================================

func TestFileLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{})
	handler := srv.Handler()

	// Upload
	body, contentType := uploadRequest(t, "report.txt", "quarterly revenue grew nicely")
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Upload status = %d, body %s", rec.Code, rec.Body)
	}
	var meta storage.FileMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if meta.FileName != "report.txt" || meta.WordCount != 4 {
		t.Errorf("Meta = %+v", meta)
	}

	// List
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	var listing struct {
		Files []storage.FileMeta `json:"files"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 1 {
		t.Errorf("Count = %d, want 1", listing.Count)
	}

	// Get full text
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+meta.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Get status = %d", rec.Code)
	}
	var full fileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if full.ExtractedText != "quarterly revenue grew nicely" {
		t.Errorf("ExtractedText = %q", full.ExtractedText)
	}

	// Delete
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/files/"+meta.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Delete status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/"+meta.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Get after delete status = %d", rec.Code)
	}
}

func TestUploadRejectsUnsupported(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{})
	handler := srv.Handler()

	body, contentType := uploadRequest(t, "image.png", "binary junk")
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("Expected error envelope, got %s", rec.Body)
	}
}

// =============================================================================
// Ask
// =============================================================================

func TestAskSuccess(t *testing.T) {
	answerer := &stubAnswerer{answer: "It summarizes Q3 revenue."}
	srv, db := newTestServer(t, answerer)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askForm("What is this document about?", "Revenue grew 20% in Q3.", "report.pdf"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["answer"] != "It summarizes Q3 revenue." {
		t.Errorf("answer = %q", resp["answer"])
	}
	if answerer.document != "Revenue grew 20% in Q3." || answerer.fileName != "report.pdf" {
		t.Errorf("Answerer received %q / %q", answerer.fileName, answerer.document)
	}

	// The confirmed exchange is persisted
	convs, err := db.ListConversations(0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 1 || convs[0].Question != "What is this document about?" {
		t.Errorf("Conversations = %+v", convs)
	}
}

func TestAskQuestionValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{answer: "yes"})
	handler := srv.Handler()

	tests := []struct {
		name     string
		question string
	}{
		{"too short", "hi"},
		{"whitespace only", "   "},
		{"too long", strings.Repeat("q", MaxQuestionLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/ask",
				askForm(tt.question, "document text", "f.txt"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAskRequiresDocument(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{answer: "yes"})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askForm("What is this about?", "", ""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestAskByFileReference(t *testing.T) {
	answerer := &stubAnswerer{answer: "ok"}
	srv, _ := newTestServer(t, answerer)
	handler := srv.Handler()

	// Upload first
	body, contentType := uploadRequest(t, "stored.txt", "stored document body")
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var meta storage.FileMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	// Ask by fileId, no inline text
	form := url.Values{}
	form.Set("question", "What does it say?")
	form.Set("fileId", meta.ID)
	req = httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", rec.Code, rec.Body)
	}
	if answerer.document != "stored document body" || answerer.fileName != "stored.txt" {
		t.Errorf("Answerer received %q / %q", answerer.fileName, answerer.document)
	}
}

func TestAskUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rate limited passes through as 429", cloud.ErrRateLimited, http.StatusTooManyRequests},
		{"not configured", cloud.ErrNotConfigured, http.StatusServiceUnavailable},
		{"auth failed", cloud.ErrAuthFailed, http.StatusBadGateway},
		{"generic upstream failure", fmt.Errorf("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, db := newTestServer(t, &stubAnswerer{err: tt.err})
			handler := srv.Handler()

			req := httptest.NewRequest(http.MethodPost, "/api/ask",
				askForm("What is this about?", "some text", "f.txt"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp["error"] == "" {
				t.Error("Expected error message in envelope")
			}

			// Failed exchanges must not be persisted
			convs, _ := db.ListConversations(0)
			if len(convs) != 0 {
				t.Errorf("Expected no persisted conversations, got %d", len(convs))
			}
		})
	}
}

// =============================================================================
// Conversations
// =============================================================================

func TestConversationEndpoints(t *testing.T) {
	srv, db := newTestServer(t, &stubAnswerer{answer: "a fine answer"})
	handler := srv.Handler()

	// Produce two confirmed exchanges
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/ask",
			askForm(fmt.Sprintf("Question number %d?", i), "doc text", "f.txt"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Ask %d status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	var listing struct {
		Conversations []storage.Conversation `json:"conversations"`
		Count         int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Count != 2 {
		t.Errorf("Count = %d, want 2", listing.Count)
	}

	// Clear
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/conversations", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Clear status = %d", rec.Code)
	}
	convs, _ := db.ListConversations(0)
	if len(convs) != 0 {
		t.Errorf("Expected empty history, got %d", len(convs))
	}
}

// =============================================================================
// Health / stats / limits
// =============================================================================

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q", resp["status"])
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{answer: "hi"})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		askForm("What is this about?", "text", "f.txt"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["questions_answered"].(float64) != 1 {
		t.Errorf("questions_answered = %v", stats["questions_answered"])
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, &stubAnswerer{answer: "hi"}, WithRateLimit(2))
	handler := srv.Handler()

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("Third request status = %d, want 429", last)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatal("Disabled limiter should always allow")
		}
	}
}
