package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
)

const (
	systemInstruction = "You are a helpful assistant that is an expert at extracting the most useful information from a given text. Also bring in extra relevant information to the user query from outside the given context."
	contextHeader     = "\n\nRelevant Context:\n"
	chatMaxTokens     = 2000
	emptyReply        = "The model returned an empty response."
)

// StreamCompleter is a Completer that can also stream deltas.
type StreamCompleter interface {
	Completer
	StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, onChunk func(chunk string) error) (string, error)
}

type ChatService struct {
	llm       Completer
	rewriter  *QueryRewriter
	retriever *Retriever
	base      ai.ChatConfig
	log       *zap.Logger
}

// NewChatService answers turns with llm. base carries the endpoint and
// sampling settings; its Model is replaced by the session's model.
func NewChatService(llm Completer, rewriter *QueryRewriter, retriever *Retriever, base ai.ChatConfig, log *zap.Logger) *ChatService {
	if base.MaxTokens <= 0 {
		base.MaxTokens = chatMaxTokens
	}
	return &ChatService{
		llm:       llm,
		rewriter:  rewriter,
		retriever: retriever,
		base:      base,
		log:       logger.OrNop(log).Named("chat"),
	}
}

// TurnResult describes how a reply was produced.
type TurnResult struct {
	Reply          string   `json:"reply"`
	RewrittenQuery string   `json:"rewritten_query"`
	Context        []string `json:"context"`
}

// Turn runs one conversation turn and returns the next state. On error the
// returned state is the one passed in, so a failed turn leaves no trace.
func (s *ChatService) Turn(ctx context.Context, state SessionState, query string) (SessionState, *TurnResult, error) {
	next, messages, result, err := s.prepare(ctx, state, query)
	if err != nil {
		return state, nil, err
	}

	reply, err := s.llm.Complete(ctx, s.chatConfig(next.Model), messages)
	if err != nil {
		s.log.Error("chat completion failed", zap.String("session", state.ID), zap.Error(err))
		return state, nil, err
	}
	return s.finish(next, result, reply), result, nil
}

// StreamTurn is Turn with the reply delivered through onChunk as it is
// generated. Completers that cannot stream deliver the reply in one chunk.
func (s *ChatService) StreamTurn(ctx context.Context, state SessionState, query string, onChunk func(string) error) (SessionState, *TurnResult, error) {
	next, messages, result, err := s.prepare(ctx, state, query)
	if err != nil {
		return state, nil, err
	}

	var reply string
	if streamer, ok := s.llm.(StreamCompleter); ok {
		reply, err = streamer.StreamComplete(ctx, s.chatConfig(next.Model), messages, onChunk)
	} else {
		reply, err = s.llm.Complete(ctx, s.chatConfig(next.Model), messages)
		if err == nil && onChunk != nil {
			err = onChunk(reply)
		}
	}
	if err != nil {
		s.log.Error("chat stream failed", zap.String("session", state.ID), zap.Error(err))
		return state, nil, err
	}
	return s.finish(next, result, reply), result, nil
}

// prepare appends the user turn, rewrites, retrieves and augments. The
// returned state is a copy of state.
func (s *ChatService) prepare(ctx context.Context, state SessionState, query string) (SessionState, []ai.ChatMessage, *TurnResult, error) {
	raw := normalizeQuery(query)
	if raw == "" {
		return state, nil, nil, ErrQueryEmpty
	}

	next := state.Clone()
	next.History = append(next.History, Turn{Role: RoleUser, Content: raw, Display: raw})

	retrievalQuery := raw
	if len(next.History) > 1 && s.rewriter != nil {
		retrievalQuery = s.rewriter.Rewrite(ctx, raw, next.LastTurns(rewriteHistory), next.Model)
	}

	var contextChunks []string
	if s.retriever != nil {
		chunks, err := s.retriever.Retrieve(ctx, retrievalQuery, next.TopK)
		if err != nil {
			s.log.Warn("retrieval failed, answering without context",
				zap.String("session", state.ID), zap.Error(err))
		} else {
			contextChunks = chunks
		}
	}

	if len(contextChunks) > 0 {
		last := len(next.History) - 1
		next.History[last].Content = raw + contextHeader + strings.Join(contextChunks, "\n")
	}

	messages := make([]ai.ChatMessage, 0, len(next.History)+1)
	messages = append(messages, ai.ChatMessage{Role: RoleSystem, Content: systemInstruction})
	for _, t := range next.History {
		messages = append(messages, ai.ChatMessage{Role: t.Role, Content: t.Content})
	}

	return next, messages, &TurnResult{RewrittenQuery: retrievalQuery, Context: contextChunks}, nil
}

func (s *ChatService) finish(next SessionState, result *TurnResult, reply string) SessionState {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}
	next.History = append(next.History, Turn{Role: RoleAssistant, Content: reply, Display: reply})
	next.UpdatedAt = time.Now()
	result.Reply = reply
	return next
}

func (s *ChatService) chatConfig(model string) ai.ChatConfig {
	cfg := s.base
	if model != "" {
		cfg.Model = model
	}
	return cfg
}
