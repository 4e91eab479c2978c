package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/loader"
)

func seqIDs() Option {
	n := 0
	return WithIDFunc(func(source string) string {
		n++
		return fmt.Sprintf("%s#%d", source, n)
	})
}

func TestNewDefaultsAndClamping(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		wantSize    int
		wantOverlap int
	}{
		{"defaults", nil, 256, 100},
		{"custom", []Option{WithSize(100), WithOverlap(10)}, 100, 10},
		{"non-positive size keeps default", []Option{WithSize(0)}, 256, 100},
		{"negative overlap means none", []Option{WithOverlap(-5)}, 256, 0},
		{"overlap not below size", []Option{WithSize(40), WithOverlap(40)}, 40, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.opts...)
			assert.Equal(t, tt.wantSize, c.Size())
			assert.Equal(t, tt.wantOverlap, c.Overlap())
		})
	}
}

func TestSplitFiveHundredChars(t *testing.T) {
	doc := loader.Document{Text: strings.Repeat("a", 500), Source: "a.txt"}

	chunks := New(seqIDs()).Split([]loader.Document{doc})
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 156, 312}, []int{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, 156, chunks[1].Start-chunks[0].Start)
	assert.Equal(t, 156, chunks[2].Start-chunks[1].Start)
	assert.Len(t, chunks[0].Text, 256)
	assert.Len(t, chunks[2].Text, 188)
}

func TestSplitPrefersCoarseBoundaries(t *testing.T) {
	c := New(WithSize(30), WithOverlap(5))

	paragraphs := "First paragraph here.\n\nSecond paragraph that runs on."
	got := c.SplitText(paragraphs)
	assert.Equal(t, "First paragraph here.\n\n", got[0])

	sentences := "One short sentence. Another one follows it here."
	got = c.SplitText(sentences)
	assert.Equal(t, "One short sentence. ", got[0])

	words := "alpha beta gamma delta epsilon zeta eta theta"
	got = c.SplitText(words)
	assert.Equal(t, "alpha beta gamma delta ", got[0])
}

func TestSplitShortAndEmpty(t *testing.T) {
	c := New()
	assert.Empty(t, c.SplitText(""))
	assert.Equal(t, []string{"short"}, c.SplitText("short"))
}

func TestSplitMetadataAndIDs(t *testing.T) {
	docs := []loader.Document{
		{Text: "page one", Source: "p.pdf", Metadata: map[string]string{"page": "1"}},
		{Text: "page two", Source: "p.pdf", Metadata: map[string]string{"page": "2"}},
	}
	chunks := New(seqIDs()).Split(docs)
	require.Len(t, chunks, 2)

	assert.Equal(t, "p.pdf#1", chunks[0].ID)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "2", chunks[1].Metadata["page"])
	assert.Equal(t, "1", chunks[1].Metadata["chunk_index"])
	assert.NotContains(t, docs[1].Metadata, "chunk_index")
}

func TestRandomIDsAreUnique(t *testing.T) {
	chunks := Split([]loader.Document{{Text: strings.Repeat("word ", 200), Source: "w.txt"}}, 50, 10)
	seen := map[string]bool{}
	for _, ch := range chunks {
		assert.True(t, strings.HasPrefix(ch.ID, "w.txt-"))
		assert.False(t, seen[ch.ID])
		seen[ch.ID] = true
	}
}

func TestSplitSizeAndOverlapProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pieces := []string{"lorem", "ipsum", "dolor", "é", "日本語", " ", " ", ". ", "\n", "\n\n", "! "}

	for round := 0; round < 200; round++ {
		var sb strings.Builder
		for n := rng.Intn(400); n > 0; n-- {
			sb.WriteString(pieces[rng.Intn(len(pieces))])
		}
		text := sb.String()
		size := 5 + rng.Intn(120)
		overlap := rng.Intn(size)

		c := New(WithSize(size), WithOverlap(overlap))
		chunks := c.Split([]loader.Document{{Text: text, Source: "doc"}})
		runes := []rune(text)

		var rebuilt []rune
		for i, ch := range chunks {
			n := utf8.RuneCountInString(ch.Text)
			require.LessOrEqual(t, n, size, "round %d chunk %d", round, i)
			require.Equal(t, string(runes[ch.Start:ch.Start+n]), ch.Text)

			if i == 0 {
				rebuilt = append(rebuilt, []rune(ch.Text)...)
				continue
			}
			prev := chunks[i-1]
			prevEnd := prev.Start + utf8.RuneCountInString(prev.Text)
			require.Equal(t, c.Overlap(), prevEnd-ch.Start, "round %d chunk %d", round, i)
			require.Greater(t, ch.Start, prev.Start)
			rebuilt = append(rebuilt, []rune(ch.Text)[c.Overlap():]...)
		}
		require.Equal(t, text, string(rebuilt), "round %d", round)
	}
}
