package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/pkg/logger"
)

const (
	rewriteMaxTokens   = 200
	rewriteTemperature = 0.1
	rewriteHistory     = 2
)

const rewritePromptTemplate = `Rewrite the following query by incorporating relevant context from the conversation history.
The rewritten query should:

- Preserve the core intent and meaning of the original query
- Expand and clarify the query to make it more specific and informative for retrieving relevant context
- Avoid introducing new topics or queries that deviate from the original query
- DONT EVER ANSWER the Original query, but instead focus on rephrasing and expanding it into a new query
- Return the output as plain text, without any additional formatting

Return ONLY the rewritten query text, without any additional formatting or explanations.

Conversation History:
%s

Original query: [%s]

Rewritten query:
`

// Completer runs one chat completion.
type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

// QueryRewriter turns a follow-up question into a standalone retrieval
// query using the tail of the conversation.
type QueryRewriter struct {
	llm  Completer
	base ai.ChatConfig
	log  *zap.Logger
}

// NewQueryRewriter uses base for endpoint and sampling. Zero MaxTokens and
// nil Temperature fall back to 200 and 0.1.
func NewQueryRewriter(llm Completer, base ai.ChatConfig, log *zap.Logger) *QueryRewriter {
	if base.MaxTokens <= 0 {
		base.MaxTokens = rewriteMaxTokens
	}
	if base.Temperature == nil {
		base.Temperature = ai.Temp(rewriteTemperature)
	}
	return &QueryRewriter{llm: llm, base: base, log: logger.OrNop(log).Named("rewriter")}
}

// Rewrite returns the rewritten query. When the model fails or answers with
// nothing usable the raw query is returned instead.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string, history []Turn, model string) string {
	cfg := r.base
	if model != "" {
		cfg.Model = model
	}

	prompt := buildRewritePrompt(query, history)
	out, err := r.llm.Complete(ctx, cfg, []ai.ChatMessage{{Role: RoleSystem, Content: prompt}})
	if err != nil {
		r.log.Warn("rewrite failed, using raw query", zap.Error(err))
		return query
	}
	rewritten := cleanRewrite(out)
	if rewritten == "" {
		r.log.Warn("rewrite returned nothing, using raw query")
		return query
	}
	r.log.Debug("query rewritten", zap.String("query", query), zap.String("rewritten", rewritten))
	return rewritten
}

func buildRewritePrompt(query string, history []Turn) string {
	if len(history) > rewriteHistory {
		history = history[len(history)-rewriteHistory:]
	}
	lines := make([]string, len(history))
	for i, t := range history {
		text := t.Display
		if text == "" {
			text = t.Content
		}
		lines[i] = t.Role + ": " + text
	}
	return fmt.Sprintf(rewritePromptTemplate, strings.Join(lines, "\n"), query)
}

// cleanRewrite drops a leading label and wrapping quotes or brackets that
// small models like to echo back.
func cleanRewrite(out string) string {
	s := strings.TrimSpace(out)
	for _, label := range []string{"Rewritten query:", "Rewritten Query:", "rewritten query:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, label))
	}
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '[' && last == ']') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
