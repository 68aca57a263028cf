package service

import (
	"context"
	"encoding/json"
	"os"

	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/logger"
	"personal-knowledge-be/pkg/embedding"
	"personal-knowledge-be/pkg/retrieval"
	"personal-knowledge-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IIndexerService interface {
	Consume(ctx context.Context) error
}

// indexerService subscribes to index messages, chunks the document, embeds
// each chunk and writes it to the chunk store.
type indexerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	chunkStore        retrieval.ChunkStore
	embeddingProvider embedding.EmbeddingProvider
	chunkSize         int
	chunkOverlap      int
	logger            logger.ILogger
}

func NewIndexerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	chunkStore retrieval.ChunkStore,
	embeddingProvider embedding.EmbeddingProvider,
	chunkSize, chunkOverlap int,
	log logger.ILogger,
) IIndexerService {
	return &indexerService{
		pubSub:            pubSub,
		topicName:         topicName,
		chunkStore:        chunkStore,
		embeddingProvider: embeddingProvider,
		chunkSize:         chunkSize,
		chunkOverlap:      chunkOverlap,
		logger:            log,
	}
}

func (is *indexerService) Consume(ctx context.Context) error {
	messages, err := is.pubSub.Subscribe(ctx, is.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			is.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (is *indexerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.IndexDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		is.logger.Error("INDEXER_SERVICE", "failed to unmarshal index message", map[string]interface{}{
			"error": err.Error(),
		})
		// Ack invalid messages to prevent infinite retry.
		msg.Ack()
		return
	}

	content, err := os.ReadFile(payload.Path)
	if err != nil {
		is.logger.Error("INDEXER_SERVICE", "failed to read document", map[string]interface{}{
			"source_id": payload.SourceId,
			"path":      payload.Path,
			"error":     err.Error(),
		})
		// File moved or deleted since the scan. Ack.
		msg.Ack()
		return
	}

	chunks := utils.SplitText(string(content), is.chunkSize, is.chunkOverlap)

	for i, chunk := range chunks {
		vector, err := is.embeddingProvider.Embed(ctx, chunk, embedding.TaskDocument)
		if err != nil {
			is.logger.Error("INDEXER_SERVICE", "failed to embed chunk", map[string]interface{}{
				"source_id":   payload.SourceId,
				"chunk_index": i,
				"error":       err.Error(),
			})
			msg.Nack()
			return
		}

		err = is.chunkStore.Add(ctx, &retrieval.DocumentChunk{
			Id:         uuid.New(),
			SourceID:   payload.SourceId,
			ChunkIndex: i,
			Text:       chunk,
			Embedding:  vector,
		})
		if err != nil {
			is.logger.Error("INDEXER_SERVICE", "failed to store chunk", map[string]interface{}{
				"source_id":   payload.SourceId,
				"chunk_index": i,
				"error":       err.Error(),
			})
			msg.Nack()
			return
		}
	}

	is.logger.Info("INDEXER_SERVICE", "document indexed", map[string]interface{}{
		"source_id": payload.SourceId,
		"chunks":    len(chunks),
	})
	msg.Ack()
}
