package retrieval

import (
	"context"
	"fmt"

	"personal-knowledge-be/pkg/embedding"

	"github.com/google/uuid"
)

// ContextSnippet is a retrieved passage with provenance. Produced per request,
// never persisted.
type ContextSnippet struct {
	Text     string
	SourceID string
	Score    float32
}

// DocumentChunk is one indexed chunk of a source document.
type DocumentChunk struct {
	Id         uuid.UUID
	SourceID   string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// ChunkStore holds indexed chunks and answers nearest-neighbour queries.
type ChunkStore interface {
	Add(ctx context.Context, chunk *DocumentChunk) error
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ContextSnippet, error)
	Count(ctx context.Context) (int64, error)
}

// Retriever turns a query string into ranked context snippets.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]ContextSnippet, error)
}

// EmbeddingRetriever embeds the query and delegates ranking to a ChunkStore.
type EmbeddingRetriever struct {
	store    ChunkStore
	embedder embedding.EmbeddingProvider
}

func NewEmbeddingRetriever(store ChunkStore, embedder embedding.EmbeddingProvider) *EmbeddingRetriever {
	return &EmbeddingRetriever{
		store:    store,
		embedder: embedder,
	}
}

func (r *EmbeddingRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextSnippet, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, query, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.Search(ctx, queryEmbedding, topK)
}
