// docgenius - document Q&A in the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/docgenius/internal/chat"
	"github.com/jeranaias/docgenius/internal/cloud"
	"github.com/jeranaias/docgenius/internal/config"
	"github.com/jeranaias/docgenius/internal/dispatch"
	"github.com/jeranaias/docgenius/internal/files"
	"github.com/jeranaias/docgenius/internal/ledger"
	"github.com/jeranaias/docgenius/internal/server"
	"github.com/jeranaias/docgenius/internal/storage"
	"github.com/jeranaias/docgenius/internal/store"
	"github.com/jeranaias/docgenius/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

const usage = `docgenius - ask questions about your documents

Usage:
  docgenius                 Start the chat client
  docgenius serve           Start the answering service
  docgenius upload <path>   Upload a document to the service
  docgenius history         Print conversation history
  docgenius clear-history   Delete all conversation history
  docgenius version         Print version information

Environment:
  OPENROUTER_API_KEY        API key for the AI provider (serve)
  DOCGENIUS_SERVER_URL      Answering service URL (client)
`

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "", "chat":
		runTUI()
	case "serve":
		runServe()
	case "upload":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: docgenius upload <path>")
			os.Exit(1)
		}
		runUpload(os.Args[2])
	case "history":
		runHistory()
	case "clear-history":
		runClearHistory()
	case "version", "--version", "-v":
		fmt.Printf("docgenius %s (%s)\n", Version, GitCommit)
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", cmd, usage)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// CHAT CLIENT
// =============================================================================

func runTUI() {
	cfg := loadConfig()
	serverURL := cfg.Client.ServerURL

	msgStore := store.New()
	led := ledger.New(serverURL)
	disp := dispatch.New(serverURL,
		dispatch.WithMaxRetries(cfg.Client.MaxRetries),
		dispatch.WithBaseDelay(cfg.Client.BaseDelay()),
	)

	holder := &ui.ActiveFileHolder{}
	orch := chat.New(msgStore, led, disp, holder.Get)

	m := ui.New(ui.Options{
		Orchestrator:   orch,
		Store:          msgStore,
		Ledger:         led,
		FileClient:     files.NewClient(serverURL),
		ActiveFile:     holder,
		ShowTimestamps: cfg.UI.ShowTimestamps,
		Theme:          cfg.UI.Theme,
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ANSWERING SERVICE
// =============================================================================

func runServe() {
	cfg := loadConfig()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "docgenius",
	})

	db, err := storage.Open(filepath.Join(cfg.Server.DataDir, "docgenius.db"))
	if err != nil {
		logger.Fatal("failed to open database", "err", err)
	}
	defer db.Close()

	catalog, err := files.NewCatalog(db, filepath.Join(cfg.Server.DataDir, "uploads"), logger)
	if err != nil {
		logger.Fatal("failed to create catalog", "err", err)
	}

	if cfg.Server.WatchUploads {
		watcher, err := files.NewWatcher(catalog, files.DefaultWatchDebounce)
		if err != nil {
			logger.Warn("upload watcher unavailable", "err", err)
		} else {
			watcher.Start()
			defer watcher.Close()
			logger.Info("watching upload directory", "dir", catalog.UploadDir())
		}
	}

	if cfg.Cloud.APIKey == "" {
		logger.Warn("no API key configured; /api/ask will be unavailable",
			"hint", "set OPENROUTER_API_KEY")
	}
	answerer := cloud.New(cfg.Cloud.APIKey,
		cloud.WithBaseURL(cfg.Cloud.BaseURL),
		cloud.WithModel(cfg.Cloud.Model),
	)

	srv := server.New(catalog, db, answerer,
		server.WithListenAddr(cfg.Server.ListenAddr),
		server.WithLogger(logger),
		server.WithRateLimit(cfg.Server.RateLimitPerMinute),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("server failed", "err", err)
	}
	logger.Info("shutdown complete")
}

// =============================================================================
// ONE-SHOT COMMANDS
// =============================================================================

func runUpload(path string) {
	cfg := loadConfig()
	client := files.NewClient(cfg.Client.ServerURL)

	meta, err := client.Upload(context.Background(), path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s (%d words)\n", meta.FileName, meta.WordCount)
}

func runHistory() {
	cfg := loadConfig()
	led := ledger.New(cfg.Client.ServerURL)

	convs, err := led.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for _, conv := range convs {
		fmt.Printf("[%s] %s\n", conv.Timestamp.Local().Format("2006-01-02 15:04"), conv.FileName)
		fmt.Printf("  Q: %s\n", conv.Question)
		fmt.Printf("  A: %s\n\n", conv.Answer)
	}
}

func runClearHistory() {
	cfg := loadConfig()
	led := ledger.New(cfg.Client.ServerURL)

	if err := led.ClearAll(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Conversation history cleared.")
}
