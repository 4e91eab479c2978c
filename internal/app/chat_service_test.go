package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/ai"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/vectorstore"
)

func newChat(llm Completer, store ContextStore) *ChatService {
	base := ai.ChatConfig{BaseURL: "http://llm.test", Model: "default-model", Temperature: ai.Temp(0.7)}
	return NewChatService(llm, NewQueryRewriter(llm, base, nil), NewRetriever(store), base, nil)
}

func freshState() SessionState {
	return NewSessionState(SessionDefaults{Model: "gemma2:2b", TopK: 3})
}

func TestTurnEmptyStoreSendsRawQuery(t *testing.T) {
	llm := &scriptedLLM{reply: "I do not know."}
	chat := newChat(llm, &fakeContextStore{})

	next, res, err := chat.Turn(context.Background(), freshState(), "What is X?")
	require.NoError(t, err)
	assert.Equal(t, "I do not know.", res.Reply)
	assert.Empty(t, res.Context)

	calls := llm.chatCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []ai.ChatMessage{
		{Role: RoleSystem, Content: systemInstruction},
		{Role: RoleUser, Content: "What is X?"},
	}, calls[0].messages)
	assert.Empty(t, llm.rewriteCalls())

	require.Len(t, next.History, 2)
	assert.Equal(t, Turn{Role: RoleUser, Content: "What is X?", Display: "What is X?"}, next.History[0])
	assert.Equal(t, RoleAssistant, next.History[1].Role)
}

func TestTurnAugmentsWithSingleChunk(t *testing.T) {
	llm := &scriptedLLM{reply: "Blue."}
	store := &fakeContextStore{results: []vectorstore.Result{{ChunkID: "sky-1", Text: "  The sky is blue\n"}}}
	chat := newChat(llm, store)

	next, res, err := chat.Turn(context.Background(), freshState(), "What colour is the sky?")
	require.NoError(t, err)
	assert.Equal(t, []string{"The sky is blue"}, res.Context)

	want := "What colour is the sky?\n\nRelevant Context:\nThe sky is blue"
	assert.Equal(t, want, next.History[0].Content)
	assert.Equal(t, "What colour is the sky?", next.History[0].Display)

	calls := llm.chatCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, want, calls[0].messages[1].Content)
	assert.Equal(t, "gemma2:2b", calls[0].cfg.Model)
	assert.Equal(t, chatMaxTokens, calls[0].cfg.MaxTokens)
	assert.Equal(t, []int{3}, store.ks)
}

func TestTurnJoinsContextWithNewlines(t *testing.T) {
	llm := &scriptedLLM{reply: "ok"}
	store := &fakeContextStore{results: []vectorstore.Result{{Text: "a"}, {Text: "b"}, {Text: "c"}}}
	chat := newChat(llm, store)

	state := freshState()
	state.TopK = 2
	next, _, err := chat.Turn(context.Background(), state, "q")
	require.NoError(t, err)
	assert.Equal(t, "q\n\nRelevant Context:\na\nb", next.History[0].Content)
}

func TestSecondTurnRewritesWithHistory(t *testing.T) {
	llm := &scriptedLLM{reply: "first answer", rewrite: "What is the colour of the sky during the day?"}
	store := &fakeContextStore{}
	chat := newChat(llm, store)

	state, _, err := chat.Turn(context.Background(), freshState(), "Tell me about the sky")
	require.NoError(t, err)
	assert.Empty(t, llm.rewriteCalls())

	llm.reply = "second answer"
	state, res, err := chat.Turn(context.Background(), state, "and its colour?")
	require.NoError(t, err)

	rewrites := llm.rewriteCalls()
	require.Len(t, rewrites, 1)
	prompt := rewrites[0].messages[0]
	assert.Equal(t, RoleSystem, prompt.Role)
	assert.Contains(t, prompt.Content, "assistant: first answer\nuser: and its colour?")
	assert.NotContains(t, prompt.Content, "Tell me about the sky")
	assert.Contains(t, prompt.Content, "Original query: [and its colour?]")
	assert.Equal(t, 200, rewrites[0].cfg.MaxTokens)
	require.NotNil(t, rewrites[0].cfg.Temperature)
	assert.InDelta(t, 0.1, *rewrites[0].cfg.Temperature, 1e-9)
	assert.Equal(t, "gemma2:2b", rewrites[0].cfg.Model)

	assert.Equal(t, "What is the colour of the sky during the day?", res.RewrittenQuery)
	assert.Equal(t, []string{"Tell me about the sky", "What is the colour of the sky during the day?"}, store.queries)

	// the rewritten query is only used for retrieval
	assert.Equal(t, "and its colour?", state.History[2].Content)
	chats := llm.chatCalls()
	require.Len(t, chats, 2)
	assert.Len(t, chats[1].messages, 4)
}

func TestTurnCompletionFailureLeavesStateUnchanged(t *testing.T) {
	llm := &scriptedLLM{replyErr: fmt.Errorf("%w: status 500", ai.ErrCompletionService)}
	chat := newChat(llm, &fakeContextStore{results: []vectorstore.Result{{Text: "ctx"}}})

	state := freshState()
	state.History = append(state.History,
		Turn{Role: RoleUser, Content: "hi", Display: "hi"},
		Turn{Role: RoleAssistant, Content: "hello", Display: "hello"},
	)

	next, res, err := chat.Turn(context.Background(), state, "next question")
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrCompletionService)
	assert.Nil(t, res)
	assert.Equal(t, state, next)
	assert.Len(t, state.History, 2)
}

func TestTurnRetrievalFailureDegrades(t *testing.T) {
	llm := &scriptedLLM{reply: "answer"}
	chat := newChat(llm, &fakeContextStore{err: fmt.Errorf("%w: disk", vectorstore.ErrStoreIO)})

	next, res, err := chat.Turn(context.Background(), freshState(), "q")
	require.NoError(t, err)
	assert.Empty(t, res.Context)
	assert.Equal(t, "q", next.History[0].Content)
}

func TestTurnRejectsEmptyQuery(t *testing.T) {
	llm := &scriptedLLM{}
	chat := newChat(llm, &fakeContextStore{})

	state := freshState()
	next, _, err := chat.Turn(context.Background(), state, "   ")
	assert.ErrorIs(t, err, ErrQueryEmpty)
	assert.Equal(t, state, next)
	assert.Empty(t, llm.calls)
}

func TestTurnEmptyReplyPlaceholder(t *testing.T) {
	chat := newChat(&scriptedLLM{reply: "  "}, &fakeContextStore{})

	next, res, err := chat.Turn(context.Background(), freshState(), "q")
	require.NoError(t, err)
	assert.Equal(t, emptyReply, res.Reply)
	assert.Equal(t, emptyReply, next.History[1].Content)
}

func TestHistoryAlternatesRoles(t *testing.T) {
	chat := newChat(&scriptedLLM{reply: "r", rewrite: "rw"}, &fakeContextStore{})

	state := freshState()
	var err error
	for i := 0; i < 4; i++ {
		state, _, err = chat.Turn(context.Background(), state, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}
	require.Len(t, state.History, 8)
	for i, turn := range state.History {
		if i%2 == 0 {
			assert.Equal(t, RoleUser, turn.Role)
		} else {
			assert.Equal(t, RoleAssistant, turn.Role)
		}
	}
}

func TestStreamTurn(t *testing.T) {
	llm := &streamingLLM{deltas: []string{"Bl", "ue"}}
	chat := newChat(llm, &fakeContextStore{})

	var got []string
	next, res, err := chat.StreamTurn(context.Background(), freshState(), "sky?", func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bl", "ue"}, got)
	assert.Equal(t, "Blue", res.Reply)
	assert.Equal(t, "Blue", next.History[1].Display)
}

func TestStreamTurnFallsBackToComplete(t *testing.T) {
	chat := newChat(&scriptedLLM{reply: "whole"}, &fakeContextStore{})

	var got []string
	_, res, err := chat.StreamTurn(context.Background(), freshState(), "q", func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"whole"}, got)
	assert.Equal(t, "whole", res.Reply)
}
