package retrieval

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps chunks and embeddings in process memory. Good enough for
// a personal document set; the pgvector store covers anything larger.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks []*DocumentChunk
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Add(ctx context.Context, chunk *DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *InMemoryStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ContextSnippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk *DocumentChunk
		score float32
	}

	results := make([]scored, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		results = append(results, scored{
			chunk: chunk,
			score: cosineSimilarity(queryEmbedding, chunk.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	snippets := make([]ContextSnippet, len(results))
	for i, r := range results {
		snippets[i] = ContextSnippet{
			Text:     r.chunk.Text,
			SourceID: r.chunk.SourceID,
			Score:    r.score,
		}
	}
	return snippets, nil
}

func (s *InMemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

// cosineSimilarity assumes both vectors are already unit-normalized, so the
// dot product is the similarity.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
