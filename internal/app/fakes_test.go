package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/chunker"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/vectorstore"
)

type completionCall struct {
	cfg      ai.ChatConfig
	messages []ai.ChatMessage
}

// scriptedLLM answers rewrite prompts and chat prompts separately.
type scriptedLLM struct {
	mu         sync.Mutex
	calls      []completionCall
	rewrite    string
	rewriteErr error
	reply      string
	replyErr   error
}

func isRewritePrompt(messages []ai.ChatMessage) bool {
	return len(messages) == 1 && strings.HasPrefix(messages[0].Content, "Rewrite the following query")
}

func (l *scriptedLLM) Complete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, completionCall{cfg: cfg, messages: append([]ai.ChatMessage(nil), messages...)})
	if isRewritePrompt(messages) {
		return l.rewrite, l.rewriteErr
	}
	return l.reply, l.replyErr
}

func (l *scriptedLLM) chatCalls() []completionCall {
	var out []completionCall
	for _, c := range l.calls {
		if !isRewritePrompt(c.messages) {
			out = append(out, c)
		}
	}
	return out
}

func (l *scriptedLLM) rewriteCalls() []completionCall {
	var out []completionCall
	for _, c := range l.calls {
		if isRewritePrompt(c.messages) {
			out = append(out, c)
		}
	}
	return out
}

// streamingLLM adds streaming on top of scriptedLLM.
type streamingLLM struct {
	scriptedLLM
	deltas []string
}

func (l *streamingLLM) StreamComplete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	l.mu.Lock()
	l.calls = append(l.calls, completionCall{cfg: cfg, messages: messages})
	l.mu.Unlock()
	if l.replyErr != nil {
		return "", l.replyErr
	}
	for _, d := range l.deltas {
		if err := onChunk(d); err != nil {
			return "", err
		}
	}
	return strings.Join(l.deltas, ""), nil
}

type fakeContextStore struct {
	results []vectorstore.Result
	err     error
	queries []string
	ks      []int
}

func (s *fakeContextStore) Query(_ context.Context, text string, k int) ([]vectorstore.Result, error) {
	s.queries = append(s.queries, text)
	s.ks = append(s.ks, k)
	if s.err != nil {
		return nil, s.err
	}
	if k > len(s.results) {
		k = len(s.results)
	}
	return s.results[:k], nil
}

type fakeDocumentStore struct {
	mu      sync.Mutex
	added   map[string][]chunker.Chunk
	sources []vectorstore.Source
	failFor string
}

func (s *fakeDocumentStore) Add(_ context.Context, src vectorstore.Source, chunks []chunker.Chunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.Name == s.failFor {
		return 0, fmt.Errorf("%w: refused", ai.ErrEmbeddingService)
	}
	if s.added == nil {
		s.added = map[string][]chunker.Chunk{}
	}
	s.added[src.Name] = append(s.added[src.Name], chunks...)
	s.sources = append(s.sources, src)
	return len(chunks), nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]SessionState
	err      error
}

func (s *memSessionStore) Get(_ context.Context, id string) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	st, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memSessionStore) Save(_ context.Context, state SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.sessions == nil {
		s.sessions = map[string]SessionState{}
	}
	s.sessions[state.ID] = state
	return nil
}

func (s *memSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type fakePublisher struct {
	jobs []IngestJob
	err  error
}

func (p *fakePublisher) PublishIngest(_ context.Context, job IngestJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type memJobStore struct {
	mu      sync.Mutex
	jobs    map[string]JobStatus
	saveErr func(JobStatus) error
}

func (s *memJobStore) SaveJob(_ context.Context, status JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		if err := s.saveErr(status); err != nil {
			return err
		}
	}
	if s.jobs == nil {
		s.jobs = map[string]JobStatus{}
	}
	s.jobs[status.ID] = status
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

var errBoom = errors.New("boom")
