package app

import (
	"context"
	"strings"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/vectorstore"
)

// ContextStore answers similarity queries.
type ContextStore interface {
	Query(ctx context.Context, text string, k int) ([]vectorstore.Result, error)
}

type Retriever struct {
	store ContextStore
}

func NewRetriever(store ContextStore) *Retriever {
	return &Retriever{store: store}
}

// Retrieve returns the trimmed texts of the k best chunks for query. The
// store clamps k, so any positive value is accepted.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	results, err := r.store.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(results))
	for _, res := range results {
		if text := strings.TrimSpace(res.Text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}
