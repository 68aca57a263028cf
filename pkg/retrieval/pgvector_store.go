package retrieval

import (
	"context"

	"personal-knowledge-be/internal/model"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// PgVectorStore persists chunks in Postgres and ranks with pgvector cosine
// distance. Requires the vector extension and the document_chunks table.
type PgVectorStore struct {
	db *gorm.DB
}

func NewPgVectorStore(db *gorm.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Add(ctx context.Context, chunk *DocumentChunk) error {
	m := model.DocumentChunk{
		Id:             chunk.Id,
		SourceId:       chunk.SourceID,
		ChunkIndex:     chunk.ChunkIndex,
		Document:       chunk.Text,
		EmbeddingValue: pgvector.NewVector(chunk.Embedding),
	}
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *PgVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ContextSnippet, error) {
	if topK <= 0 {
		topK = 5
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so
	// 1 - (embedding_value <=> query_vector) is the similarity score.
	type result struct {
		model.DocumentChunk
		Similarity float32
	}
	var results []result

	queryVector := pgvector.NewVector(queryEmbedding)

	err := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Order("similarity DESC").
		Limit(topK).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	snippets := make([]ContextSnippet, len(results))
	for i, r := range results {
		snippets[i] = ContextSnippet{
			Text:     r.Document,
			SourceID: r.SourceId,
			Score:    r.Similarity,
		}
	}
	return snippets, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.DocumentChunk{}).Count(&count).Error
	return count, err
}
