// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package files manages uploaded documents: validation, the extracted
// catalog behind the answering service, an upload-directory watcher,
// and the client-side accessor the terminal UI uses to pick its active
// file.
package files

import (
	"fmt"
	"regexp"

	"github.com/jeranaias/docgenius/internal/extract"
)

// MaxFileSize is the upload size cap.
const MaxFileSize = 16 * 1024 * 1024 // 16MB

// safeFileName permits letters, digits, spaces, dots, hyphens,
// underscores, and parentheses.
var safeFileName = regexp.MustCompile(`^[\w\-. ()]+$`)

// ValidationError describes a rejected upload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateUpload checks an upload's name and size before any bytes are
// processed.
func ValidateUpload(fileName string, size int64) error {
	if fileName == "" {
		return &ValidationError{Reason: "no file provided"}
	}
	if !extract.IsSupported(fileName) {
		return &ValidationError{
			Reason: fmt.Sprintf("unsupported file type; allowed: %v", extract.SupportedExtensions),
		}
	}
	if size <= 0 {
		return &ValidationError{Reason: "file is empty"}
	}
	if size > MaxFileSize {
		return &ValidationError{
			Reason: fmt.Sprintf("file size %.1fMB exceeds the 16MB limit", float64(size)/1024/1024),
		}
	}
	if !safeFileName.MatchString(fileName) {
		return &ValidationError{
			Reason: "invalid filename; use only letters, numbers, spaces, hyphens, and underscores",
		}
	}
	return nil
}
