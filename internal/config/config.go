package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int              `json:"port"`
	Database  DatabaseConfig   `json:"database"`
	LogConfig logger.LogConfig `json:"log_config"`
	FileStore FileStoreConfig  `json:"file_store"`
	AI        AIConfig         `json:"ai"`
	RAG       RAGConfig        `json:"rag"`
	Chat      ChatConfig       `json:"chat"`
	Jobs      JobsConfig       `json:"jobs"`
	CORS      []string         `json:"cors"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Timeout  int         `json:"timeout"`
	Data     interface{} `json:"data"`
	Fallback []AIConfig  `json:"fallback"`
}

type RAGConfig struct {
	VectorDimension        int `json:"vector_dimension"`
	AttachmentChunkSize    int `json:"attachment_chunk_size"`
	AttachmentChunkOverlap int `json:"attachment_chunk_overlap"`
	AttachmentContextLimit int `json:"attachment_context_limit"`
	KnowledgeContextLimit  int `json:"knowledge_context_limit"`
	KnowledgeScanLimit     int `json:"knowledge_scan_limit"`
	QueryCacheSize         int `json:"query_cache_size"`
	QueryCacheTTLSeconds   int `json:"query_cache_ttl_seconds"`
}

type ChatConfig struct {
	StreamBuffer           int   `json:"stream_buffer"`
	PersistPartialOnError  bool  `json:"persist_partial_on_error"`
	LockIdleSeconds        int   `json:"lock_idle_seconds"`
	ProfileCacheSize       int   `json:"profile_cache_size"`
	ProfileCacheTTLSeconds int   `json:"profile_cache_ttl_seconds"`
	MaxMessageChars        int   `json:"max_message_chars"`
	UploadLimitBytes       int64 `json:"upload_limit_bytes"`
	SendIntervalMillis     int   `json:"send_interval_millis"`
}

type JobsConfig struct {
	ParsePendingSpec string `json:"parse_pending_spec"`
	ParseBatchSize   int    `json:"parse_batch_size"`
	LockSweepSpec    string `json:"lock_sweep_spec"`
}

// Load reads a JSON or YAML (by extension) config file. A .env file next to
// the working directory is loaded first so secrets can stay out of the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var cfg Config
	if err := decode(path, raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var tree interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return err
		}
		data, err := json.Marshal(tree)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(raw, cfg)
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "deepseek"
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120
	}
	if cfg.AI.Data == nil {
		cfg.AI.Data = map[string]interface{}{}
	}
	if data, ok := cfg.AI.Data.(map[string]interface{}); ok {
		if key, _ := data["api_key"].(string); key == "" {
			if env := firstEnv("MCHAT_AI_API_KEY", "DEEPSEEK_API_KEY"); env != "" {
				data["api_key"] = env
			}
		}
	}

	rag := &cfg.RAG
	if rag.VectorDimension <= 0 {
		rag.VectorDimension = 96
	}
	if rag.AttachmentChunkSize <= 0 {
		rag.AttachmentChunkSize = 800
	}
	if rag.AttachmentChunkOverlap <= 0 {
		rag.AttachmentChunkOverlap = 120
	}
	if rag.AttachmentChunkOverlap >= rag.AttachmentChunkSize {
		return fmt.Errorf("rag.attachment_chunk_overlap must be smaller than rag.attachment_chunk_size")
	}
	if rag.AttachmentContextLimit <= 0 {
		rag.AttachmentContextLimit = 4
	}
	if rag.KnowledgeContextLimit <= 0 {
		rag.KnowledgeContextLimit = 5
	}
	if rag.KnowledgeScanLimit <= 0 {
		rag.KnowledgeScanLimit = 2000
	}
	if rag.QueryCacheSize == 0 {
		rag.QueryCacheSize = 1024
	}
	if rag.QueryCacheTTLSeconds == 0 {
		rag.QueryCacheTTLSeconds = 600
	}

	chat := &cfg.Chat
	if chat.StreamBuffer <= 0 {
		chat.StreamBuffer = 32
	}
	if chat.LockIdleSeconds <= 0 {
		chat.LockIdleSeconds = 1800
	}
	if chat.ProfileCacheSize <= 0 {
		chat.ProfileCacheSize = 256
	}
	if chat.ProfileCacheTTLSeconds <= 0 {
		chat.ProfileCacheTTLSeconds = 300
	}
	if chat.MaxMessageChars <= 0 {
		chat.MaxMessageChars = 8000
	}
	if chat.UploadLimitBytes <= 0 {
		chat.UploadLimitBytes = 20 * 1024 * 1024
	}

	if cfg.Jobs.ParsePendingSpec == "" {
		cfg.Jobs.ParsePendingSpec = "*/1 * * * *"
	}
	if cfg.Jobs.ParseBatchSize <= 0 {
		cfg.Jobs.ParseBatchSize = 10
	}
	if cfg.Jobs.LockSweepSpec == "" {
		cfg.Jobs.LockSweepSpec = "*/10 * * * *"
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
