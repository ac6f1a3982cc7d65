package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address        string        `yaml:"address"`
		UploadDir      string        `yaml:"upload_dir"`
		MaxUploadMB    int64         `yaml:"max_upload_mb"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Embedder struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Device    string `yaml:"device"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedder"`

	Vault struct {
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		URL        string `yaml:"url"`
		Collection string `yaml:"collection"`
		VectorDim  int    `yaml:"vector_dim"`
	} `yaml:"vault"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Workflow struct {
		TopK       int  `yaml:"top_k"`
		Synthesize bool `yaml:"synthesize"`
	} `yaml:"workflow"`

	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Scraper struct {
		MaxDepth          int      `yaml:"max_depth"`
		RateLimit         float64  `yaml:"rate_limit"`
		IgnorePatterns    []string `yaml:"ignore_patterns"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/inspira/config.yaml"),
			"/etc/inspira/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	presetDefaults(&config)
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	presetDefaults(config)
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

// presetDefaults fills fields whose zero value is meaningful. It runs before
// the file is decoded so an explicit zero in the file wins.
func presetDefaults(config *Config) {
	config.Processor.ChunkSize = 500
	config.Processor.ChunkOverlap = 50
}

func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8000"
	}
	if config.Server.UploadDir == "" {
		config.Server.UploadDir = os.TempDir()
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 2 * time.Minute
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "bge-m3"
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Device == "" {
		config.Embedder.Device = "auto"
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}

	if config.Vault.Backend == "" {
		config.Vault.Backend = "sqlite"
	}
	if config.Vault.Path == "" {
		config.Vault.Path = "./inspira_db"
	}
	if config.Vault.Collection == "" {
		config.Vault.Collection = "user_inspiration"
	}
	if config.Vault.VectorDim == 0 {
		config.Vault.VectorDim = 1024
	}

	if config.Workflow.TopK == 0 {
		config.Workflow.TopK = 3
	}

	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 1
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		if config.Embedder.Provider == "" || config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Vault.URL = dbURL
	}
	if addr := os.Getenv("INSPIRA_ADDR"); addr != "" {
		config.Server.Address = addr
	}
	if path := os.Getenv("INSPIRA_VAULT_PATH"); path != "" {
		config.Vault.Path = path
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.Embedder.APIKey == "" {
		config.Embedder.APIKey = key
	}
}
