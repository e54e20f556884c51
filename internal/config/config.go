package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragstream API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Generation  GenerationConfig  `yaml:"generation"`
	Chat        ChatConfig        `yaml:"chat"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// VectorStoreConfig holds vector store connection settings.
type VectorStoreConfig struct {
	Backend    string         `yaml:"backend"` // redis, pgvector (default: redis)
	Collection string         `yaml:"collection"`
	Redis      RedisConfig    `yaml:"redis"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds PostgreSQL connection settings for the pgvector backend.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	Active      string                      `yaml:"active"` // vectorizer used for queries
	CacheTTLSec int                         `yaml:"cache_ttl_sec"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
}

// RetrievalConfig holds search settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`

	// HybridAlpha is the dense weight in [0, 1]; 1 disables the keyword
	// leg. A pointer distinguishes an explicit 0 (keyword-only) from an
	// absent value, which defaults to 0.6.
	HybridAlpha *float64 `yaml:"hybrid_alpha"`

	CandidateMultiplier int              `yaml:"candidate_multiplier"`
	Preprocess          PreprocessConfig `yaml:"preprocess"`
}

// Alpha returns the effective hybrid weight.
func (r RetrievalConfig) Alpha() float64 {
	if r.HybridAlpha == nil {
		return 0.6
	}
	return *r.HybridAlpha
}

// PreprocessConfig holds keyword-leg query preprocessing settings.
type PreprocessConfig struct {
	CompoundTerms []string            `yaml:"compound_terms"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	Stopwords     []string            `yaml:"stopwords"`
}

// RerankConfig holds reranker settings. An empty approach disables reranking.
type RerankConfig struct {
	Approach   string         `yaml:"approach"` // "", ml, llm, chain
	Provider   string         `yaml:"provider"` // local, jina
	Model      string         `yaml:"model"`
	ModelPath  string         `yaml:"model_path"`
	APIKey     string         `yaml:"api_key"`
	BaseURL    string         `yaml:"base_url"`
	TimeoutSec int            `yaml:"timeout_sec"`
	Stages     []RerankConfig `yaml:"stages"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`
}

// ChatConfig holds chat pipeline settings.
type ChatConfig struct {
	TopN int `yaml:"top_n"` // documents fed to the generator per turn
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "redis"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "documents"
	}
	if c.VectorStore.Redis.ReadinessTimeout <= 0 {
		c.VectorStore.Redis.ReadinessTimeout = 10
	}
	if c.VectorStore.Postgres.Table == "" {
		c.VectorStore.Postgres.Table = "documents"
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 86400
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.CandidateMultiplier <= 0 {
		c.Retrieval.CandidateMultiplier = 2
	}
	if c.Chat.TopN <= 0 {
		c.Chat.TopN = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.VectorStore.Backend {
	case "redis":
		if len(c.VectorStore.Redis.Addrs) == 0 {
			return fmt.Errorf("vector_store.redis.addrs is required")
		}
	case "pgvector":
		if c.VectorStore.Postgres.DSN == "" {
			return fmt.Errorf("vector_store.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("vector_store.backend must be \"redis\" or \"pgvector\", got %q",
			c.VectorStore.Backend)
	}

	if a := c.Retrieval.HybridAlpha; a != nil && (*a < 0 || *a > 1) {
		return fmt.Errorf("retrieval.hybrid_alpha must be within [0, 1], got %g", *a)
	}

	if c.Embedding.Active != "" {
		vec, ok := c.Embedding.Vectorizers[c.Embedding.Active]
		if !ok {
			return fmt.Errorf("embedding.active references unknown vectorizer %q", c.Embedding.Active)
		}
		if vec.Provider != "" {
			if _, ok := c.Embedding.Providers[vec.Provider]; !ok {
				return fmt.Errorf("embedding.vectorizers.%s.provider references unknown provider %q",
					c.Embedding.Active, vec.Provider)
			}
		}
		if vec.Dimensions <= 0 {
			return fmt.Errorf("embedding.vectorizers.%s.dimensions must be positive", c.Embedding.Active)
		}
	}

	switch c.Rerank.Approach {
	case "", "ml", "llm", "chain":
		// ok
	default:
		return fmt.Errorf("rerank.approach must be \"ml\", \"llm\" or \"chain\", got %q",
			c.Rerank.Approach)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
