package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/model"
)

const chatHelp = `commands:
  /model <name>   switch chat model
  /topk <n>       number of context chunks
  /sources        list ingested files
  /reset          start a new conversation
  /quit           exit`

func createChatCommand(open appOpener) *cobra.Command {
	var showContext bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			repl := &chatREPL{
				sessions:    a.Sessions,
				chat:        a.Chat,
				sources:     a.Store,
				showContext: showContext,
				out:         cmd.OutOrStdout(),
			}
			return repl.run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved chunks before each reply")
	return cmd
}

type sourceLister interface {
	Count(ctx context.Context) (int64, error)
	Sources(ctx context.Context) ([]model.VaultSource, error)
}

type chatREPL struct {
	sessions    *app.SessionService
	chat        *app.ChatService
	sources     sourceLister
	showContext bool
	out         io.Writer
}

func (r *chatREPL) run(ctx context.Context, in io.Reader) error {
	state, err := r.sessions.Create(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.sessions.Delete(ctx, state.ID) }()

	if n, err := r.sources.Count(ctx); err == nil {
		fmt.Fprintf(r.out, "model %s, top-k %d, %d chunks in store. /help for commands.\n", state.Model, state.TopK, n)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			next, quit := r.command(ctx, state, line)
			if quit {
				return nil
			}
			state = next
			continue
		}

		next, result, err := r.chat.StreamTurn(ctx, state, line, func(chunk string) error {
			_, werr := io.WriteString(r.out, chunk)
			return werr
		})
		fmt.Fprintln(r.out)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			continue
		}
		if r.showContext {
			for i, c := range result.Context {
				fmt.Fprintf(r.out, "  [%d] %s\n", i+1, oneLine(c, 120))
			}
		}
		state = next
	}
}

func (r *chatREPL) command(ctx context.Context, state app.SessionState, line string) (app.SessionState, bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return state, true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/reset":
		_ = r.sessions.Delete(ctx, state.ID)
		fresh, err := r.sessions.Create(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return state, false
		}
		fmt.Fprintln(r.out, "conversation cleared")
		return fresh, false
	case "/model":
		if len(fields) != 2 {
			fmt.Fprintf(r.out, "models: %s\n", strings.Join(r.sessions.Models(), ", "))
			return state, false
		}
		return r.update(ctx, state, fields[1], 0), false
	case "/topk":
		if len(fields) != 2 {
			fmt.Fprintf(r.out, "top-k is %d (1-%d)\n", state.TopK, r.sessions.MaxTopK())
			return state, false
		}
		k, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintf(r.out, "error: %q is not a number\n", fields[1])
			return state, false
		}
		return r.update(ctx, state, "", k), false
	case "/sources":
		sources, err := r.sources.Sources(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return state, false
		}
		if len(sources) == 0 {
			fmt.Fprintln(r.out, "store is empty")
		}
		for _, s := range sources {
			fmt.Fprintf(r.out, "  %s (%s, %d chunks)\n", s.Name, s.Kind, s.ChunkCount)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %s\n", fields[0])
	}
	return state, false
}

func (r *chatREPL) update(ctx context.Context, state app.SessionState, model string, topK int) app.SessionState {
	next, err := r.sessions.UpdateSettings(state, model, topK)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return state
	}
	if err := r.sessions.Save(ctx, next); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return state
	}
	fmt.Fprintf(r.out, "model %s, top-k %d\n", next.Model, next.TopK)
	return next
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
