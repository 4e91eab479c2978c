// Package loader turns uploaded bytes into plain-text documents.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrLoad = errors.New("load document failed")

// Kind is the document format a loader handles. Anything unrecognised is
// treated as plain text.
type Kind int

const (
	KindText Kind = iota
	KindPDF
	KindJSON
	KindMarkdown
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindJSON:
		return "json"
	case KindMarkdown:
		return "markdown"
	default:
		return "text"
	}
}

// Document is one text segment of an uploaded file. Source is always the
// original filename.
type Document struct {
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// KindFor picks the loader for a declared content type. The filename
// extension is consulted only when the content type is missing or generic.
func KindFor(contentType, filename string) Kind {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch mediaType {
	case "application/pdf":
		return KindPDF
	case "application/json", "text/json":
		return KindJSON
	case "text/markdown", "text/x-markdown":
		return KindMarkdown
	case "", "application/octet-stream":
		return kindFromExt(filename)
	}
	return KindText
}

func kindFromExt(filename string) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF
	case ".json":
		return KindJSON
	case ".md", ".markdown":
		return KindMarkdown
	}
	return KindText
}

// Load parses data according to contentType. Every returned Document has
// Source set to filename; a file with no extractable text is a load error.
func Load(data []byte, contentType, filename string) ([]Document, error) {
	source := filepath.Base(strings.TrimSpace(filename))
	if source == "." || source == string(filepath.Separator) {
		source = "untitled"
	}
	kind := KindFor(contentType, filename)

	var (
		docs []Document
		err  error
	)
	switch kind {
	case KindPDF:
		docs, err = loadPDF(data)
	case KindJSON:
		docs, err = loadJSON(data)
	case KindMarkdown:
		docs, err = loadMarkdown(data)
	default:
		docs, err = loadText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, source, err)
	}

	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		d.Source = source
		if d.Metadata == nil {
			d.Metadata = map[string]string{}
		}
		d.Metadata["source"] = source
		d.Metadata["kind"] = kind.String()
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrLoad, source)
	}
	return out, nil
}

func loadText(data []byte) ([]Document, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, errors.New("text is not valid utf-8")
	}
	return []Document{{Text: string(data)}}, nil
}

// loadJSON keeps the whole document as one segment of compact JSON.
func loadJSON(data []byte) ([]Document, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(data)); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return []Document{{Text: buf.String()}}, nil
}
