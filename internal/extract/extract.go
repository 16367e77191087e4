// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package extract pulls plain text out of uploaded documents.
//
// Supported formats: PDF, plain text / Markdown, DOCX, and PPTX. The
// OOXML formats are zip archives of XML parts, so they are walked with
// archive/zip and encoding/xml directly.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for file types outside the
// supported set.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrEmptyDocument is returned when extraction yields no usable text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// SupportedExtensions lists the file extensions extraction understands.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".pptx"}

// IsSupported reports whether the file name carries a supported extension.
func IsSupported(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Text extracts plain text from the document, dispatching on extension.
func Text(fileName string, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		text, err = FromPDF(data)
	case ".txt", ".md":
		text, err = FromPlainText(data)
	case ".docx":
		text, err = FromDOCX(data)
	case ".pptx":
		text, err = FromPPTX(data)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// FromPDF extracts text from a PDF document, page by page.
func FromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// FromPlainText decodes a UTF-8 text or Markdown file.
func FromPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text file is not valid UTF-8")
	}
	return string(data), nil
}

// FromDOCX extracts paragraph text from word/document.xml.
func FromDOCX(data []byte) (string, error) {
	doc, err := readZipPart(data, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}

	text, err := collectOOXMLText(doc, "t", "p")
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	return text, nil
}

// FromPPTX extracts shape text from every slide, in slide order.
func FromPPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}

	var slides []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Strings(slides)

	var out strings.Builder
	for _, name := range slides {
		part, err := readZipFile(zr, name)
		if err != nil {
			return "", fmt.Errorf("failed to read slide %s: %w", name, err)
		}
		text, err := collectOOXMLText(part, "t", "br")
		if err != nil {
			return "", fmt.Errorf("failed to parse slide %s: %w", name, err)
		}
		if text != "" {
			out.WriteString(text)
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// =============================================================================
// OOXML HELPERS
// =============================================================================

// readZipPart returns the named file's contents from a zip archive.
func readZipPart(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return readZipFile(zr, name)
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("missing archive part %s", name)
}

// collectOOXMLText streams an OOXML part, gathering character data
// inside textElem elements and emitting a newline when breakElem closes.
// Element names are matched by local name; OOXML namespaces vary.
func collectOOXMLText(part []byte, textElem, breakElem string) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(part))

	var out strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == textElem {
				inText = true
			}
		case xml.EndElement:
			if el.Name.Local == textElem {
				inText = false
			}
			if el.Name.Local == breakElem {
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(el)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
