// Package chunker splits documents into overlapping, boundary-aware chunks.
package chunker

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/loader"
)

const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 100

	maxIDPrefix = 128
)

// separators are tried coarsest first.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// Chunk is a bounded piece of one document. Start is the rune offset of
// Text inside the document it came from.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Index    int               `json:"index"`
	Start    int               `json:"start"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Chunker struct {
	size    int
	overlap int
	newID   func(source string) string
}

type Option func(*Chunker)

// WithSize sets the maximum chunk length in runes.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets how many runes adjacent chunks share. Negative means none.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap < 0 {
			overlap = 0
		}
		c.overlap = overlap
	}
}

// WithIDFunc replaces the random chunk id generator.
func WithIDFunc(fn func(source string) string) Option {
	return func(c *Chunker) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
		newID:   randomID,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Split chunks docs with the given size and overlap.
func Split(docs []loader.Document, size, overlap int) []Chunk {
	return New(WithSize(size), WithOverlap(overlap)).Split(docs)
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Index counts chunks per source.
func (c *Chunker) Split(docs []loader.Document) []Chunk {
	var chunks []Chunk
	next := map[string]int{}
	for _, doc := range docs {
		for _, s := range c.spans([]rune(doc.Text)) {
			idx := next[doc.Source]
			next[doc.Source] = idx + 1

			meta := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk_index"] = strconv.Itoa(idx)

			chunks = append(chunks, Chunk{
				ID:       c.newID(doc.Source),
				Text:     s.text,
				Source:   doc.Source,
				Index:    idx,
				Start:    s.start,
				Metadata: meta,
			})
		}
	}
	return chunks
}

// SplitText returns only the chunk texts of a single string.
func (c *Chunker) SplitText(text string) []string {
	spans := c.spans([]rune(text))
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.text
	}
	return out
}

type span struct {
	start int
	text  string
}

// spans walks a window of c.size runes over text. Each non-final window is
// cut at the coarsest separator that still leaves more than c.overlap runes,
// and the next window starts c.overlap runes before that cut.
func (c *Chunker) spans(text []rune) []span {
	var out []span
	start := 0
	for start < len(text) {
		if len(text)-start <= c.size {
			out = append(out, span{start: start, text: string(text[start:])})
			break
		}
		end := c.cut(text, start)
		out = append(out, span{start: start, text: string(text[start:end])})
		start = end - c.overlap
	}
	return out
}

// cut returns the end of the window starting at start, always in
// (start+overlap, start+size].
func (c *Chunker) cut(text []rune, start int) int {
	limit := start + c.size
	floor := start + c.overlap
	for _, sep := range separators {
		for i := limit - len(sep); i >= start; i-- {
			end := i + len(sep)
			if end <= floor {
				break
			}
			if hasPrefix(text[i:], sep) {
				return end
			}
		}
	}
	return limit
}

func hasPrefix(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func randomID(source string) string {
	prefix := []rune(source)
	if len(prefix) > maxIDPrefix {
		prefix = prefix[:maxIDPrefix]
	}
	return string(prefix) + "-" + uuid.NewString()
}
