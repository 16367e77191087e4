// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAnswerSuccess(t *testing.T) {
	var captured ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" It is a quarterly report. "}}]}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL), WithModel("test/model"))
	answer, err := c.Answer(context.Background(), "report.pdf", "Revenue grew.", "What is this?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if answer != "It is a quarterly report." {
		t.Errorf("Answer = %q", answer)
	}
	if captured.Model != "test/model" {
		t.Errorf("Model = %q", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("Expected system + user messages, got %+v", captured.Messages)
	}
	user := captured.Messages[1].Content
	if !strings.Contains(user, "report.pdf") || !strings.Contains(user, "What is this?") {
		t.Errorf("User prompt missing document context: %q", user)
	}
}

func TestAnswerNotConfigured(t *testing.T) {
	c := New("")
	_, err := c.Answer(context.Background(), "f", "text", "q")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestAnswerRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	_, err := c.Answer(context.Background(), "f", "text", "q")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
}

func TestAnswerAuthFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("bad-key", WithBaseURL(srv.URL))
	_, err := c.Answer(context.Background(), "f", "text", "q")
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestAnswerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"code":502,"message":"upstream exploded"}}`))
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	_, err := c.Answer(context.Background(), "f", "text", "q")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAnswerEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New("key", WithBaseURL(srv.URL))
	_, err := c.Answer(context.Background(), "f", "text", "q")
	if !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("Expected ErrEmptyAnswer, got %v", err)
	}
}

func TestBuildUserPromptTruncatesDocument(t *testing.T) {
	long := strings.Repeat("a", MaxDocumentChars+500)
	prompt := buildUserPrompt("big.txt", long, "q?")

	if strings.Contains(prompt, long) {
		t.Error("Document text should be truncated")
	}
	if !strings.Contains(prompt, long[:MaxDocumentChars-3]+"...") {
		t.Error("Truncated document text missing from prompt")
	}
}

func TestBuildUserPromptTruncatesOnRuneBoundary(t *testing.T) {
	// Two-byte runes: a byte-indexed cut at the cap would split one.
	long := strings.Repeat("é", MaxDocumentChars+10)
	prompt := buildUserPrompt("utf8.txt", long, "q?")

	if !utf8.ValidString(prompt) {
		t.Fatal("Prompt contains an invalid UTF-8 sequence after truncation")
	}
	if strings.Contains(prompt, long) {
		t.Error("Document text should be truncated")
	}
}
