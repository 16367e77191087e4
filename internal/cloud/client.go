// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud implements the upstream LLM client used by the
// answering service.
//
// The client speaks the OpenAI-compatible chat completions API, which
// gives access to multiple providers through a single endpoint. It makes
// exactly one attempt per call: retry policy belongs to the dispatching
// side of the system, and an upstream rate limit is surfaced as
// ErrRateLimited so the HTTP layer can map it straight to a 429.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/docgenius/internal/util"
)

// Configuration constants for the upstream API.
const (
	// DefaultBaseURL is the base URL for the completions API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultModel lets the provider pick the model.
	DefaultModel = "openrouter/auto"

	// DefaultTimeout is the timeout for upstream requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// MaxDocumentChars caps the document text included in a prompt so a
	// large upload cannot blow the model's context window.
	MaxDocumentChars = 8000
)

// Shared HTTP client with connection pooling for all upstream requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// systemPrompt frames every request as document analysis.
const systemPrompt = `You are DocGenius, an AI assistant specialized in document analysis and question answering.

Guidelines:
- Always base your answers on the provided document content
- If information is not in the document, clearly state this
- Provide specific references to relevant sections when possible
- Use clear, professional language and structure responses logically`

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("upstream API key not configured")

	// ErrAuthFailed indicates authentication failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the upstream provider throttled us.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyAnswer indicates the model produced no usable text.
	ErrEmptyAnswer = errors.New("no response from model")
)

// APIError is a non-sentinel upstream failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is a single message in a completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the completions request body.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ChatResponse is the completions response body.
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the upstream completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel overrides the model identifier.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithHTTPClient replaces the shared pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates an upstream client with the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: sharedHTTPClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// =============================================================================
// ANSWER
// =============================================================================

// Answer asks the model one question about one document and returns the
// answer text. Exactly one attempt is made; transient upstream failures
// propagate to the caller as-is.
func (c *Client) Answer(ctx context.Context, fileName, documentText, question string) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	reqBody := ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(fileName, documentText, question)},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "docgenius/0.1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// buildUserPrompt assembles the analysis prompt, truncating the
// document to MaxDocumentChars. The cap counts runes, not bytes, so a
// multi-byte character is never split at the boundary.
func buildUserPrompt(fileName, documentText, question string) string {
	if fileName == "" {
		fileName = "Unknown Document"
	}
	doc := util.TruncateRunes(documentText, MaxDocumentChars)
	return fmt.Sprintf("Document: %s\nContent:\n%s\n\nQuestion: %s\n\nAnswer the question based on the document content above.",
		fileName, doc, question)
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts upstream error responses to Go errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := ""
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		message = apiErr.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, message)
		}
		return ErrAuthFailed
	case http.StatusTooManyRequests:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return ErrRateLimited
	default:
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return &APIError{Status: statusCode, Message: message}
	}
}
