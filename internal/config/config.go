package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API and its on-disk folders.
type ServerConfig struct {
	Addr                string `yaml:"addr"`
	DataDir             string `yaml:"data_dir"`
	PersistDir          string `yaml:"persist_dir"`
	MaxUploadMB         int    `yaml:"max_upload_mb"`
	ReadTimeoutSecs     int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int    `yaml:"write_timeout_secs"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// ClientConfig configures the chat UI's connection to the HTTP API.
type ClientConfig struct {
	APIURL      string `yaml:"api_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ExtractorConfig configures text extraction from uploaded files.
type ExtractorConfig struct {
	MaxPDFPages int `yaml:"max_pdf_pages"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HuggingFaceEmbedderConfig holds configuration for the HF feature-extraction embedder.
type HuggingFaceEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GenAIEmbedderConfig holds configuration for the Gemini embedder.
type GenAIEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                     `yaml:"type"`
	OpenAI      *OpenAIEmbedderConfig      `yaml:"openai,omitempty"`
	HuggingFace *HuggingFaceEmbedderConfig `yaml:"huggingface,omitempty"`
	GenAI       *GenAIEmbedderConfig       `yaml:"genai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
}

// LLMConfig selects and configures the hosted language model.
type LLMConfig struct {
	Type              string  `yaml:"type"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	ContextWindow     int     `yaml:"context_window"`
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	// MaxRetries is the number of extra attempts on transient failures; 0 disables retries.
	MaxRetries        *int    `yaml:"max_retries"`
}

// RetrievalConfig configures how many chunks feed the prompt.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k"`
	Concurrency int `yaml:"concurrency"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Client      ClientConfig      `yaml:"client"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
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

// Validate rejects unknown component types and nonsensical sizes.
func (c *AppConfig) Validate() error {
	checks := []struct {
		field string
		value string
		valid []string
	}{
		{"embedder.type", c.Embedder.Type, []string{"tfidf", "openai", "huggingface", "genai"}},
		{"chunker.type", c.Chunker.Type, []string{"sentence"}},
		{"vector_store.type", c.VectorStore.Type, []string{"local", "qdrant"}},
		{"llm.type", c.LLM.Type, []string{"huggingface", "openai", "anthropic", "genai"}},
		{"summarizer.type", c.Summarizer.Type, []string{"frequency"}},
		{"log.format", c.Log.Format, []string{"json", "console"}},
	}
	for _, chk := range checks {
		if !contains(chk.valid, chk.value) {
			return fmt.Errorf("%w: unknown %s %q", ErrInvalid, chk.field, chk.value)
		}
	}
	if c.LLM.MaxNewTokens >= c.LLM.ContextWindow {
		return fmt.Errorf("%w: llm.max_new_tokens (%d) must be below llm.context_window (%d)",
			ErrInvalid, c.LLM.MaxNewTokens, c.LLM.ContextWindow)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalid)
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Collection == "") {
		return fmt.Errorf("%w: qdrant config missing", ErrInvalid)
	}
	return nil
}

const defaultMaxRetries = 3

// Retries returns MaxRetries, or the default when it was not configured.
func (l LLMConfig) Retries() int {
	if l.MaxRetries == nil {
		return defaultMaxRetries
	}
	return max(*l.MaxRetries, 0)
}

func ptr[T any](v T) *T { return &v }

// ErrInvalid is returned by Validate and Load for unusable configuration.
var ErrInvalid = errors.New("invalid config")

// Duration converts a seconds field into a time.Duration.
func Duration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// MaxUploadBytes returns the upload size limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
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
	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = ":8000"
	}
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if s.PersistDir == "" {
		s.PersistDir = "db"
	}
	if s.MaxUploadMB == 0 {
		s.MaxUploadMB = 32
	}
	if s.ReadTimeoutSecs == 0 {
		s.ReadTimeoutSecs = 60
	}
	if s.WriteTimeoutSecs == 0 {
		s.WriteTimeoutSecs = 600
	}
	if s.ShutdownTimeoutSecs == 0 {
		s.ShutdownTimeoutSecs = 10
	}

	if cfg.Client.APIURL == "" {
		cfg.Client.APIURL = "http://localhost:8000"
	}
	if cfg.Client.TimeoutSecs == 0 {
		cfg.Client.TimeoutSecs = 300
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.OverlapSentences == 0 {
		cfg.Chunker.OverlapSentences = 1
	}

	if cfg.Embedder.Type == "" {
		// the Hugging Face LLM already needs HF_TOKEN, so retrieval can be
		// semantic too; other backends default to the offline TF-IDF
		cfg.Embedder.Type = "tfidf"
		if cfg.LLM.Type == "" || cfg.LLM.Type == "huggingface" {
			cfg.Embedder.Type = "huggingface"
		}
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
	case "huggingface":
		if cfg.Embedder.HuggingFace == nil {
			cfg.Embedder.HuggingFace = &HuggingFaceEmbedderConfig{}
		}
		h := cfg.Embedder.HuggingFace
		if h.BaseURL == "" {
			h.BaseURL = "https://router.huggingface.co/hf-inference/models"
		}
		if h.APIKeyEnv == "" {
			h.APIKeyEnv = "HF_TOKEN"
		}
		if h.Model == "" {
			h.Model = "BAAI/bge-small-en-v1.5"
		}
		if h.TimeoutSecs == 0 {
			h.TimeoutSecs = 30
		}
	case "genai":
		if cfg.Embedder.GenAI == nil {
			cfg.Embedder.GenAI = &GenAIEmbedderConfig{}
		}
		g := cfg.Embedder.GenAI
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-embedding-001"
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "local"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Host == "" {
			q.Host = "localhost"
		}
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.Collection == "" {
			q.Collection = "docqa"
		}
	}

	l := &cfg.LLM
	if l.Type == "" {
		l.Type = "huggingface"
	}
	if l.BaseURL == "" {
		switch l.Type {
		case "huggingface":
			l.BaseURL = "https://router.huggingface.co/v1"
		case "openai":
			l.BaseURL = "https://api.openai.com/v1"
		}
	}
	if l.APIKeyEnv == "" {
		switch l.Type {
		case "huggingface":
			l.APIKeyEnv = "HF_TOKEN"
		case "openai":
			l.APIKeyEnv = "OPENAI_API_KEY"
		case "anthropic":
			l.APIKeyEnv = "ANTHROPIC_API_KEY"
		case "genai":
			l.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if l.Model == "" {
		switch l.Type {
		case "anthropic":
			l.Model = "claude-3-5-haiku-latest"
		case "genai":
			l.Model = "gemini-2.0-flash"
		default:
			l.Model = "meta-llama/Meta-Llama-3-8B-Instruct"
		}
	}
	if l.ContextWindow == 0 {
		l.ContextWindow = 3900
	}
	if l.MaxNewTokens == 0 {
		l.MaxNewTokens = 1000
	}
	if l.Temperature == 0 {
		l.Temperature = 0.5
	}
	if l.TimeoutSecs == 0 {
		l.TimeoutSecs = 120
	}
	if l.MaxRetries == nil {
		l.MaxRetries = ptr(defaultMaxRetries)
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 2
	}
	if cfg.Retrieval.Concurrency == 0 {
		cfg.Retrieval.Concurrency = 4
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
