package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/cache"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "ingest", "chat", "watch"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRootCommandLeavesErrorReportingToMain(t *testing.T) {
	root := newRootCommand()
	assert.True(t, root.SilenceUsage)
	assert.True(t, root.SilenceErrors)

	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"ingest"})
	require.Error(t, root.Execute())
	assert.NotContains(t, buf.String(), "Error:")
}

func TestIngestRequiresArgs(t *testing.T) {
	root := newRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"ingest"})
	assert.Error(t, root.Execute())
}

func TestLoadConfigFromFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\ncollection = \"notes\"\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "notes", cfg.Store.Collection)
}

func TestReadUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi"), 0o644))

	up, err := readUpload(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", up.Name)
	assert.Equal(t, []byte("# hi"), up.Data)

	_, err = readUpload(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPrintFileResult(t *testing.T) {
	buf := &bytes.Buffer{}
	printFileResult(buf, app.FileResult{Name: "a.txt", Status: app.StatusIngested, Kind: "text", Chunks: 2})
	printFileResult(buf, app.FileResult{Name: "b.json", Status: app.StatusFailed, Error: "bad json"})
	out := buf.String()
	assert.Contains(t, out, "a.txt (text, 2 chunks)")
	assert.Contains(t, out, "b.json: bad json")
}

type echoLLM struct{ err error }

func (l echoLLM) Complete(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return "echo: " + messages[len(messages)-1].Content, nil
}

type emptyStore struct{}

func (emptyStore) Count(context.Context) (int64, error) { return 0, nil }
func (emptyStore) Sources(context.Context) ([]model.VaultSource, error) {
	return []model.VaultSource{{Name: "a.txt", Kind: "text", ChunkCount: 3}}, nil
}

func newREPL(llm app.Completer, out *bytes.Buffer) *chatREPL {
	sessions := app.NewSessionService(cache.NewMemorySessionCache(time.Hour),
		app.SessionDefaults{Model: "gemma2:2b", TopK: 3}, []string{"gemma2:2b", "llama3"}, 5)
	return &chatREPL{
		sessions: sessions,
		chat:     app.NewChatService(llm, nil, nil, ai.ChatConfig{}, nil),
		sources:  emptyStore{},
		out:      out,
	}
}

func TestChatREPL(t *testing.T) {
	out := &bytes.Buffer{}
	repl := newREPL(echoLLM{}, out)

	in := strings.NewReader("hello\n/model llama3\n/topk 9\n/topk 2\n/sources\n/bogus\n/quit\nnever sent\n")
	require.NoError(t, repl.run(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "echo: hello")
	assert.Contains(t, text, "model llama3, top-k 3")
	assert.Contains(t, text, "top_k must be between 1 and 5")
	assert.Contains(t, text, "model llama3, top-k 2")
	assert.Contains(t, text, "a.txt (text, 3 chunks)")
	assert.Contains(t, text, "unknown command /bogus")
	assert.NotContains(t, text, "never sent")
}

func TestChatREPLReportsErrors(t *testing.T) {
	out := &bytes.Buffer{}
	repl := newREPL(echoLLM{err: errors.New("model offline")}, out)

	require.NoError(t, repl.run(context.Background(), strings.NewReader("hello\n")))
	assert.Contains(t, out.String(), "error: model offline")
}
