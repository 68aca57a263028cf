package bootstrap

import (
	"context"
	"log"

	"personal-knowledge-be/internal/config"
	"personal-knowledge-be/internal/constant"
	"personal-knowledge-be/internal/controller"
	"personal-knowledge-be/internal/pkg/logger"
	"personal-knowledge-be/internal/repository/memory"
	redisrepo "personal-knowledge-be/internal/repository/redis"
	"personal-knowledge-be/internal/service"
	"personal-knowledge-be/pkg/llm/factory"
	"personal-knowledge-be/pkg/prompt"
	"personal-knowledge-be/pkg/retrieval"
	"personal-knowledge-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"personal-knowledge-be/pkg/embedding"
)

type Container struct {
	// Controllers
	ChatController    controller.IChatController
	LibraryController controller.ILibraryController

	// Background services (exposed for main.go to run)
	IndexerService service.IIndexerService
	LibraryService service.ILibraryService

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.LogLevel, cfg.App.Environment == "production")

	// Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// Embedding provider
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "gemini" {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Ai.GeminiKey)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	} else {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbedModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbedModel)
	}

	// LLM provider
	llmBaseURL := cfg.Ai.OpenAIBaseURL
	if cfg.Ai.LLMProvider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL,
		cfg.Keys.OpenAI,
		cfg.Agent.RequestTimeout,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// System prompt from disk, with a built-in fallback
	promptLoader := prompt.NewLoader(cfg.Prompt.BasePath)
	systemPrompt := promptLoader.LoadPromptOr(cfg.Prompt.SystemPromptName, constant.DefaultSystemPromptV1)
	assembler := prompt.NewAssembler(systemPrompt)

	// Chunk store
	var chunkStore retrieval.ChunkStore
	if cfg.Retrieval.Store == "pgvector" && db != nil {
		chunkStore = retrieval.NewPgVectorStore(db)
		log.Printf("[INFO] Using chunk store: PGVECTOR")
	} else {
		chunkStore = retrieval.NewInMemoryStore()
		log.Printf("[INFO] Using chunk store: MEMORY")
	}
	retriever := retrieval.NewEmbeddingRetriever(chunkStore, embeddingProvider)

	// Session store
	var sessionRepo store.SessionStore
	if cfg.Session.Store == "redis" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		sessionRepo = redisrepo.NewSessionRepository(rdb, systemPrompt)
		log.Printf("[INFO] Using session store: REDIS")
	} else {
		sessionRepo = memory.NewSessionRepository(systemPrompt)
		log.Printf("[INFO] Using session store: MEMORY")
	}

	// Services
	libraryService := service.NewLibraryService(pubSub, cfg.Retrieval.IndexTopic, cfg.Retrieval.DataDir, sysLogger)
	indexerService := service.NewIndexerService(
		pubSub,
		cfg.Retrieval.IndexTopic,
		chunkStore,
		embeddingProvider,
		cfg.Retrieval.ChunkSize,
		cfg.Retrieval.ChunkLap,
		sysLogger,
	)
	chatService := service.NewChatService(cfg, llmProvider, retriever, assembler, sessionRepo, sysLogger)

	return &Container{
		ChatController:    controller.NewChatController(chatService, cfg.Agent.HealthcheckOn, sysLogger),
		LibraryController: controller.NewLibraryController(libraryService, chunkStore),
		IndexerService:    indexerService,
		LibraryService:    libraryService,
		Logger:            sysLogger,
	}
}
