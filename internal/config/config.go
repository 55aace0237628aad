package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type LLMConfig struct {
	Provider     string
	Model        string
	EmbedModel   string
	BaseURL      string
	EmbedBaseURL string
	APIKey       string
	Timeout      string
}

type StorageConfig struct {
	DataDir        string
	DocumentsDir   string
	RulesPath      string
	RulesOutputDir string
}

type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

const defaultTimeout = 120 * time.Second

// Providers lists the supported llm.provider values.
var Providers = []string{"gemini", "ollama", "openrouter"}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Provider:   "gemini",
			Model:      "gemini-1.5-flash-latest",
			EmbedModel: "text-embedding-004",
			Timeout:    defaultTimeout.String(),
		},
		Storage: StorageConfig{
			DataDir:        dataDir,
			DocumentsDir:   filepath.Join(dataDir, "documents"),
			RulesPath:      filepath.Join(dataDir, "shariah_rules_explicit.json"),
			RulesOutputDir: filepath.Join(dataDir, "output_rules"),
		},
		Retrieval: RetrievalConfig{
			TopK:         2,
			ChunkSize:    1200,
			ChunkOverlap: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the YAML config file, environment variables
// and the secrets file, in increasing order of precedence for non-secret
// keys. Secrets come from the environment first and the secrets file second.
//
// The config file lives at $XDG_CONFIG_HOME/asave/config.yaml and the secrets
// file at $XDG_DATA_HOME/asave/secrets.json. Environment variables are named
// ASAVE_<SECTION>_<KEY>; GOOGLE_API_KEY is honoured for the gemini provider.
//
// Load does not check that a usable backend is configured; call Validate
// before building one.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), newSecretsFile(secretsFilePath()))
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if cfg.LLM.APIKey == "" && cfg.LLM.Provider == "gemini" {
		cfg.LLM.APIKey = lookupEnv("GOOGLE_API_KEY")
	}

	return cfg, nil
}

// Validate reports configuration that cannot produce a working backend.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openrouter":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("missing required config: API key for provider %q. "+
				"Set it via environment variable ASAVE_LLM_API_KEY (or GOOGLE_API_KEY for gemini) "+
				"or run `asave config set llm.api_key <key>`", c.LLM.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid config: unknown llm.provider %q (want one of %v)", c.LLM.Provider, Providers)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid config: llm.timeout %q: %w", c.LLM.Timeout, err)
	}
	return nil
}

// TimeoutDuration returns llm.timeout, falling back to the default when it
// does not parse.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}
