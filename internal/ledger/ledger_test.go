// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/conversations" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"conversations":[
			{"id":"c2","question":"And the risks?","answer":"Supply chain.","file_name":"report.pdf"},
			{"id":"c1","question":"What is it?","answer":"A report.","file_name":"report.pdf"}
		],"count":2}`))
	}))
	defer srv.Close()

	l := New(srv.URL)
	conversations, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(conversations) != 2 {
		t.Fatalf("Loaded %d conversations, want 2", len(conversations))
	}
	if conversations[0].ID != "c2" {
		t.Errorf("Expected most-recent-first order, got %q first", conversations[0].ID)
	}
	if l.Len() != 2 {
		t.Errorf("Cache Len = %d, want 2", l.Len())
	}
}

func TestLoadFailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := New(srv.URL)
	conversations, err := l.Load(context.Background())

	if err == nil {
		t.Error("Expected a warning error from failed load")
	}
	if conversations == nil || len(conversations) != 0 {
		t.Errorf("Soft failure must yield an empty slice, got %v", conversations)
	}
	if l.Len() != 0 {
		t.Errorf("Cache must stay empty after failed load, Len = %d", l.Len())
	}
}

func TestLoadUnreachableFailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	l := New(srv.URL)
	conversations, err := l.Load(context.Background())
	if err == nil {
		t.Error("Expected error from unreachable service")
	}
	if len(conversations) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(conversations))
	}
}

func TestRecordPrepends(t *testing.T) {
	l := New("http://localhost:0")

	first := l.Record("first question", "first answer", "a.txt")
	second := l.Record("second question", "second answer", "a.txt")

	if first.ID == "" || second.ID == "" {
		t.Error("Record must assign IDs")
	}

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("Len = %d, want 2", len(all))
	}
	if all[0].ID != second.ID {
		t.Error("Most recent record must come first")
	}
	if all[0].Question != "second question" || all[0].Answer != "second answer" {
		t.Errorf("Round-trip mismatch: %+v", all[0])
	}
}

func TestClearAll(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/api/conversations" {
			deleted = true
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"message":"cleared"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := New(srv.URL)
	l.Record("q", "a", "f.txt")

	if err := l.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if !deleted {
		t.Error("Expected DELETE against the persistence service")
	}
	if l.Len() != 0 {
		t.Errorf("Cache Len after clear = %d, want 0", l.Len())
	}
}

func TestClearAllKeepsCacheOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := New(srv.URL)
	l.Record("q", "a", "f.txt")

	if err := l.ClearAll(context.Background()); err == nil {
		t.Fatal("Expected error from failed clear")
	}
	if l.Len() != 1 {
		t.Errorf("Cache must survive a failed clear, Len = %d", l.Len())
	}
}
