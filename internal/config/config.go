package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is loaded once at process start and treated as immutable afterwards.
type Config struct {
	App       AppConfig
	Agent     AgentConfig
	Prompt    PromptConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Keys      APIKeys
	Ai        AIConfig
}

type AppConfig struct {
	Host               string
	Port               string
	Environment        string
	LogFilePath        string
	LogLevel           string
	CorsAllowedOrigins string
	RedisURL           string
}

type AgentConfig struct {
	Description      string
	Endpoint         string
	HealthcheckOn    bool
	Models           []string
	RequestTimeout   time.Duration
	RetryTimeout     time.Duration
	RetryMaxAttempts int
}

type PromptConfig struct {
	BasePath         string
	SystemPromptName string
}

type RetrievalConfig struct {
	DataDir    string
	Store      string // "memory" or "pgvector"
	TopK       int
	ChunkSize  int
	ChunkLap   int
	IndexTopic string
}

type SessionConfig struct {
	Store        string // "memory" or "redis"
	HistoryLimit int
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	OpenAI string
}

type AIConfig struct {
	LLMProvider       string // "openai" or "ollama"
	LLMModel          string
	OpenAIBaseURL     string
	OllamaBaseURL     string
	EmbeddingProvider string // "ollama" or "gemini"
	OllamaEmbedModel  string
	GeminiKey         string
}

const defaultConfigPath = "cfg.ini"

// Load reads .env then the INI settings file. Missing files fall back to
// environment variables and built-in defaults so tests can run without any
// config on disk.
func Load() *Config {
	return LoadFrom(defaultConfigPath)
}

func LoadFrom(iniPath string) *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	v := viper.New()
	v.SetConfigFile(iniPath)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("Note: settings file %s not readable (%v), using defaults", iniPath, err)
	}

	return &Config{
		App: AppConfig{
			Host:               getIni(v, "host", getEnv("APP_HOST", "0.0.0.0")),
			Port:               getIni(v, "port", getEnv("APP_PORT", "8010")),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getIni(v, "log_file_name", "logs/knowledge_agent.log"),
			LogLevel:           getIni(v, "log_level", "info"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Agent: AgentConfig{
			Description:      getIni(v, "agent_description", "Personal knowledge agent"),
			Endpoint:         getIni(v, "agent_endpoint", "/v1/chat/completions"),
			HealthcheckOn:    getIniBool(v, "endpoint_healthcheck", true),
			Models:           splitList(getIni(v, "models", "gpt-4,gpt-4o-mini")),
			RequestTimeout:   getIniDuration(v, "request_timeout", 120*time.Second),
			RetryTimeout:     getIniDuration(v, "retry_timeout", 5*time.Second),
			RetryMaxAttempts: getIniInt(v, "retry_max_attempts", 1),
		},
		Prompt: PromptConfig{
			BasePath:         getIni(v, "prompt_base_path", "prompts"),
			SystemPromptName: getIni(v, "system_prompt_name", "system_prompt"),
		},
		Retrieval: RetrievalConfig{
			DataDir:    getIni(v, "data_dir", "data"),
			Store:      getIni(v, "retriever_store", "memory"),
			TopK:       getIniInt(v, "retrieval_top_k", 3),
			ChunkSize:  getIniInt(v, "chunk_size", 1500),
			ChunkLap:   getIniInt(v, "chunk_overlap", 200),
			IndexTopic: getEnv("INDEX_DOCUMENT_TOPIC_NAME", "INDEX_DOCUMENT"),
		},
		Session: SessionConfig{
			Store:        getIni(v, "session_store", "memory"),
			HistoryLimit: getIniInt(v, "history_limit", 20),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			OpenAI: getEnv("OPENAI_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMModel:          getEnv("LLM_MODEL", "gpt-4"),
			OpenAIBaseURL:     getEnv("OPENAI_API_URL", "https://api.openai.com/v1"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			OllamaEmbedModel:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			GeminiKey:         getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
	}
}

// INI keys live under the [Settings] section, mirroring the original cfg.ini.
func getIni(v *viper.Viper, key, fallback string) string {
	full := "Settings." + key
	if v.IsSet(full) {
		if s := v.GetString(full); s != "" {
			return s
		}
	}
	return fallback
}

func getIniInt(v *viper.Viper, key string, fallback int) int {
	full := "Settings." + key
	// An explicit 0 in the file must win over the fallback, e.g.
	// history_limit = 0 disables the history cap.
	if v.IsSet(full) {
		return v.GetInt(full)
	}
	return fallback
}

func getIniBool(v *viper.Viper, key string, fallback bool) bool {
	full := "Settings." + key
	if v.IsSet(full) {
		return v.GetBool(full)
	}
	return fallback
}

// getIniDuration reads a float number of seconds, the unit the original
// settings file used for retry_timeout and request_timeout.
func getIniDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	full := "Settings." + key
	if v.IsSet(full) {
		if secs := v.GetFloat64(full); secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
