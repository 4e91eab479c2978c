package loader

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// loadPDF returns one document per page that has text. The PDF reader
// needs a file path, so the bytes go through a temp file that is removed
// on every return path.
func loadPDF(data []byte) (docs []Document, err error) {
	if len(data) == 0 {
		return nil, errors.New("empty pdf")
	}

	tmp, err := os.CreateTemp("", "vault-upload-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		docs = append(docs, Document{
			Text: text,
			Metadata: map[string]string{
				"page":        strconv.Itoa(i),
				"total_pages": strconv.Itoa(total),
			},
		})
	}
	return docs, nil
}
