// Package config handles ragchat configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/ragchat/config.yaml, /etc/ragchat/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ragchat", "config.yaml"))
	}

	paths = append(paths, "/etc/ragchat/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all ragchat configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Agent      AgentConfig      `yaml:"agent"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"baseurl"` // Ollama URL (e.g., http://localhost:11434)
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
}

// AgentConfig bounds the answer loop.
type AgentConfig struct {
	// MaxRounds is the number of rounds in which retrieval tools are
	// offered to the model. The loop makes at most MaxRounds+1 LLM calls.
	// Zero means tool-free: a single call with no tools.
	MaxRounds int `yaml:"max_rounds"`
	// ToolTimeoutSec bounds each individual tool execution (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// HistoryWindow is how many prior user/assistant exchanges are fed
	// back into the transcript from the session store (default 2).
	HistoryWindow int `yaml:"history_window"`
}

// ChunkingConfig controls document splitting during ingestion.
type ChunkingConfig struct {
	Size    int `yaml:"size"`    // target chunk size in characters (default 800)
	Overlap int `yaml:"overlap"` // characters shared between adjacent chunks (default 100)
}

// Load reads configuration from a YAML file. A .env file in the working
// directory, if present, is loaded first so that ${VAR} references in the
// YAML (e.g. ${ANTHROPIC_API_KEY}) resolve against it.
func Load(path string) (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 800,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Agent: AgentConfig{
			MaxRounds:      2,
			ToolTimeoutSec: 30,
			HistoryWindow:  2,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 100,
		},
		DataDir: "./data",
	}
}
