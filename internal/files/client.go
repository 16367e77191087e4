// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/docgenius/internal/model"
	"github.com/jeranaias/docgenius/internal/storage"
)

// clientTimeout bounds file API calls from the UI.
const clientTimeout = 30 * time.Second

// Client is the UI-side accessor for the file collaborator. The chat
// core never fetches or stores files itself; it only reads the active
// file this client supplies.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a file API client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

type listFilesResponse struct {
	Files []storage.FileMeta `json:"files"`
	Count int                `json:"count"`
}

// List returns the documents known to the service, newest first.
func (c *Client) List(ctx context.Context) ([]storage.FileMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("file list failed with status %d", resp.StatusCode)
	}

	var payload listFilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse file list: %w", err)
	}
	return payload.Files, nil
}

// Fetch retrieves a document's full extracted text as an ActiveFile.
func (c *Client) Fetch(ctx context.Context, id string) (*model.ActiveFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("file fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("file fetch failed with status %d", resp.StatusCode)
	}

	var file model.ActiveFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	return &file, nil
}

// Upload sends a local document to the service for extraction.
func (c *Client) Upload(ctx context.Context, path string) (*storage.FileMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fileName := filepath.Base(path)
	if err := ValidateUpload(fileName, int64(len(data))); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != "" {
			return nil, fmt.Errorf("upload rejected: %s", envelope.Error)
		}
		return nil, fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	var meta storage.FileMeta
	if err := json.Unmarshal(respBody, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	return &meta, nil
}
