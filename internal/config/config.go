// Package config loads the RAG service configuration: compiled-in
// defaults, optionally overlaid by a YAML file, then by RAGMCP_*
// environment variables as the highest-priority layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// Config is the complete service configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Eval       EvalConfig       `yaml:"eval" json:"eval"`
}

// SearchConfig configures retrieval defaults shared across strategies.
type SearchConfig struct {
	DefaultK            int           `yaml:"default_k" json:"default_k"`
	DefaultStrategy     document.StrategyName `yaml:"default_strategy" json:"default_strategy"`
	RRFConstant         int           `yaml:"rrf_constant" json:"rrf_constant"`
	StrategyCompareTimeout time.Duration `yaml:"strategy_compare_timeout" json:"strategy_compare_timeout"`
	ConcurrencyCap      int           `yaml:"concurrency_cap" json:"concurrency_cap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the LLM client used by multi-query, rerank, and
// the evaluator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// VectorStoreConfig configures the in-process HNSW graph.
type VectorStoreConfig struct {
	Dimensions int     `yaml:"dimensions" json:"dimensions"`
	Metric     string  `yaml:"metric" json:"metric"`
	MinScore   float32 `yaml:"min_score" json:"min_score"`
}

// CacheConfig selects and configures the retrieval result cache.
type CacheConfig struct {
	Backend    string        `yaml:"backend" json:"backend"` // "lru" | "redis"
	Size       int           `yaml:"size" json:"size"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	RedisAddr  string        `yaml:"redis_addr" json:"redis_addr"`
	RedisDB    int           `yaml:"redis_db" json:"redis_db"`
}

// ServerConfig configures the MCP transport and logging.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"` // "stdio" | "http"
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// EvalConfig configures the golden-dataset-backed quality evaluator.
type EvalConfig struct {
	DatasetPath    string `yaml:"dataset_path" json:"dataset_path"`
	RequireDataset bool   `yaml:"require_dataset" json:"require_dataset"`
}

// Default builds a Config populated with compiled-in defaults.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			DefaultK:               5,
			DefaultStrategy:        document.StrategyAuto,
			RRFConstant:            60,
			StrategyCompareTimeout: 10 * time.Second,
			ConcurrencyCap:         8,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "qwen3-embedding:8b",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		VectorStore: VectorStoreConfig{
			Dimensions: 768,
			Metric:     "cos",
			MinScore:   0.0,
		},
		Cache: CacheConfig{
			Backend: "lru",
			Size:    2000,
			TTL:     time.Hour,
			RedisDB: 0,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Host:      "127.0.0.1",
			Port:      8765,
			LogLevel:  "info",
		},
		Eval: EvalConfig{
			RequireDataset: false,
		},
	}
}

// Load applies the three-layer precedence: compiled defaults, an
// optional YAML file (project-local ".ragmcp.yaml" overriding the user
// config at ~/.config/ragmcp/config.yaml, if both exist), then
// RAGMCP_* environment variables.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	if path := userConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("load user config: %w", err)
		}
	}

	projectPath := filepath.Join(projectDir, ".ragmcp.yaml")
	if fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, fmt.Errorf("load project config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func userConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragmcp", "config.yaml")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// loadYAML overlays fields present in the file at path onto c. Fields
// absent from the document are left at whatever c already held.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides is the highest-priority layer: RAGMCP_* environment
// variables, applied last so they win over both config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGMCP_DEFAULT_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.DefaultK = n
		}
	}
	if v := os.Getenv("RAGMCP_DEFAULT_STRATEGY"); v != "" {
		c.Search.DefaultStrategy = document.StrategyName(v)
	}
	if v := os.Getenv("RAGMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("RAGMCP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("RAGMCP_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("RAGMCP_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("RAGMCP_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("RAGMCP_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("RAGMCP_CACHE_REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("RAGMCP_SERVER_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("RAGMCP_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("RAGMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("RAGMCP_EVAL_DATASET_PATH"); v != "" {
		c.Eval.DatasetPath = v
	}
	if v := os.Getenv("RAGMCP_EVAL_REQUIRE_DATASET"); v != "" {
		c.Eval.RequireDataset = v == "true" || v == "1"
	}
}

// Validate rejects configurations that would misbehave at runtime
// rather than fail loudly at startup.
func (c *Config) Validate() error {
	if c.Search.DefaultK < 1 {
		return fmt.Errorf("search.default_k must be >= 1, got %d", c.Search.DefaultK)
	}
	if c.Cache.Backend != "lru" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be \"lru\" or \"redis\", got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required when cache.backend is \"redis\"")
	}
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("server.transport must be \"stdio\" or \"http\", got %q", c.Server.Transport)
	}
	if c.VectorStore.Dimensions < 1 {
		return fmt.Errorf("vector_store.dimensions must be >= 1, got %d", c.VectorStore.Dimensions)
	}
	return nil
}
