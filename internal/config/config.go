package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds connection details for the OpenAI-compatible API used
// for both embeddings and chat completions. The API key is resolved from the
// environment, never stored in the config file.
type OpenAIConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	EmbedModel  string  `yaml:"embed_model"`
	ChatModel   string  `yaml:"chat_model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float64 `yaml:"temperature"`
}

// ChunkerConfig configures how document text is split into windows.
type ChunkerConfig struct {
	WindowSize    int `yaml:"window_size"`
	WindowOverlap int `yaml:"window_overlap"`
}

// EnricherConfig configures contextual chunk enrichment.
type EnricherConfig struct {
	Workers    int `yaml:"workers"`
	MaxRetries int `yaml:"max_retries"`
}

// StoreConfig selects and configures the vector store implementation.
type StoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// RetrieverConfig configures similarity retrieval.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Enricher  EnricherConfig  `yaml:"enricher"`
	Store     StoreConfig     `yaml:"store"`
	Retriever RetrieverConfig `yaml:"retriever"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.EmbedModel == "" {
		cfg.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 60
	}
	// Temperature stays 0 unless set explicitly: answers are later checked
	// against citations, and nonzero temperature reduces citation fidelity.
	if cfg.Chunker.WindowSize == 0 {
		cfg.Chunker.WindowSize = 3500
	}
	if cfg.Chunker.WindowOverlap < 0 {
		cfg.Chunker.WindowOverlap = 0
	}
	if cfg.Enricher.Workers == 0 {
		cfg.Enricher.Workers = 4
	}
	if cfg.Enricher.MaxRetries == 0 {
		cfg.Enricher.MaxRetries = 2
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "my_context_db.sqlite"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "my_context_db"
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
}
