package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how document pages are split into segments.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// LLMConfig configures the hosted language model used for answering.
// The API key is named by environment variable and never stored here.
type LLMConfig struct {
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	Temperature  float64 `yaml:"temperature"`
	MaxNewTokens int     `yaml:"max_new_tokens"`
	TopK         int     `yaml:"top_k"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
}

// TimeoutDuration returns the model call timeout as a duration.
func (c LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetrieverConfig controls how many segments are fetched per question.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// MemoryConfig bounds the conversation history replayed to the model.
type MemoryConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// SummarizerConfig configures the document digest shown after indexing.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig controls where structured logs are written. The TUI owns the
// terminal, so logs go to a file.
type LogConfig struct {
	File string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Memory      MemoryConfig      `yaml:"memory"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// Parameter bounds for the tunable pipeline knobs. Values outside these
// ranges are rejected by Validate.
const (
	MinChunkSize    = 100
	MaxChunkSize    = 1000
	MinChunkOverlap = 10
	MaxChunkOverlap = 200
	MinMaxNewTokens = 224
	MaxMaxNewTokens = 4096
	MinSampleTopK   = 1
	MaxSampleTopK   = 10

	// MinRetrieveK is the smallest retrieval count that can still feed the
	// two-excerpt citation panel.
	MinRetrieveK = 2
)

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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfchat/config.yaml and returns them.
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

// Validate checks the tunable values against their allowed ranges.
func (cfg *AppConfig) Validate() error {
	if cfg.Chunker.ChunkSize < MinChunkSize || cfg.Chunker.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk_size %d out of range [%d, %d]", cfg.Chunker.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if cfg.Chunker.ChunkOverlap < MinChunkOverlap || cfg.Chunker.ChunkOverlap > MaxChunkOverlap {
		return fmt.Errorf("chunk_overlap %d out of range [%d, %d]", cfg.Chunker.ChunkOverlap, MinChunkOverlap, MaxChunkOverlap)
	}
	if cfg.Chunker.ChunkOverlap >= cfg.Chunker.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d", cfg.Chunker.ChunkOverlap, cfg.Chunker.ChunkSize)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 1 {
		return fmt.Errorf("llm temperature %.2f out of range [0, 1]", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxNewTokens < MinMaxNewTokens || cfg.LLM.MaxNewTokens > MaxMaxNewTokens {
		return fmt.Errorf("llm max_new_tokens %d out of range [%d, %d]", cfg.LLM.MaxNewTokens, MinMaxNewTokens, MaxMaxNewTokens)
	}
	if cfg.LLM.TopK < MinSampleTopK || cfg.LLM.TopK > MaxSampleTopK {
		return fmt.Errorf("llm top_k %d out of range [%d, %d]", cfg.LLM.TopK, MinSampleTopK, MaxSampleTopK)
	}
	if cfg.Retriever.TopK < MinRetrieveK {
		return fmt.Errorf("retriever top_k %d below minimum %d", cfg.Retriever.TopK, MinRetrieveK)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Chunker:     ChunkerConfig{ChunkSize: 600, ChunkOverlap: 40},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		LLM: LLMConfig{
			Model:        "mistralai/Mixtral-8x7B-Instruct-v0.1",
			BaseURL:      "https://api-inference.huggingface.co/models",
			APIKeyEnv:    "HF_API_TOKEN",
			Temperature:  0.7,
			MaxNewTokens: 1024,
			TopK:         3,
			TimeoutSecs:  120,
		},
		Retriever:  RetrieverConfig{TopK: 3},
		Memory:     MemoryConfig{MaxTurns: 20},
		Summarizer: SummarizerConfig{MaxSentences: 5},
		Log:        LogConfig{File: "pdfchat.log"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = def.Chunker.ChunkOverlap
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = def.LLM.APIKeyEnv
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = def.LLM.Temperature
	}
	if cfg.LLM.MaxNewTokens == 0 {
		cfg.LLM.MaxNewTokens = def.LLM.MaxNewTokens
	}
	if cfg.LLM.TopK == 0 {
		cfg.LLM.TopK = def.LLM.TopK
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = def.Retriever.TopK
	}
	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = def.Memory.MaxTurns
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = def.Summarizer.MaxSentences
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}
}
