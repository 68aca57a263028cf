package service

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"strings"

	"personal-knowledge-be/internal/dto"
	"personal-knowledge-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ILibraryService walks the document directory and publishes one index
// message per readable source file.
type ILibraryService interface {
	PublishAll(ctx context.Context) (int, error)
	PublishDocument(ctx context.Context, sourceId, path string) error
}

type libraryService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	dataDir   string
	logger    logger.ILogger
}

func NewLibraryService(pubSub *gochannel.GoChannel, topicName, dataDir string, log logger.ILogger) ILibraryService {
	return &libraryService{
		pubSub:    pubSub,
		topicName: topicName,
		dataDir:   dataDir,
		logger:    log,
	}
}

func indexableFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (ls *libraryService) PublishAll(ctx context.Context) (int, error) {
	published := 0
	err := filepath.WalkDir(ls.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableFile(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(ls.dataDir, path)
		if relErr != nil {
			rel = d.Name()
		}
		if pubErr := ls.PublishDocument(ctx, rel, path); pubErr != nil {
			return pubErr
		}
		published++
		return nil
	})
	if err != nil {
		return published, err
	}
	ls.logger.Info("LIBRARY_SERVICE", "document scan complete", map[string]interface{}{
		"dir":       ls.dataDir,
		"published": published,
	})
	return published, nil
}

func (ls *libraryService) PublishDocument(ctx context.Context, sourceId, path string) error {
	payload, err := json.Marshal(dto.IndexDocumentMessage{SourceId: sourceId, Path: path})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return ls.pubSub.Publish(ls.topicName, msg)
}
