package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Server
	if c.Server.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "server.address",
			Message: "listen address is required",
		})
	}

	if c.Server.MaxUploadMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_mb",
			Message: "max_upload_mb must be positive",
		})
	}

	// Embedder
	switch c.Embedder.Provider {
	case "ollama":
		if c.Embedder.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "Ollama base URL is required",
			})
		} else if !isHTTPURL(c.Embedder.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "openai":
		if c.Embedder.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.api_key",
				Message: "api_key is required for the openai provider",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.Embedder.Provider),
		})
	}

	switch c.Embedder.Device {
	case "auto", "gpu", "cuda", "cpu":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.device",
			Message: fmt.Sprintf("unsupported device: %s", c.Embedder.Device),
		})
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Vault
	switch c.Vault.Backend {
	case "sqlite":
		if c.Vault.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "vault.path",
				Message: "path is required for the sqlite backend",
			})
		}
	case "pgvector":
		if c.Vault.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "vault.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if u, err := url.Parse(c.Vault.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "vault.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "vault.backend",
			Message: fmt.Sprintf("unsupported backend: %s", c.Vault.Backend),
		})
	}

	if c.Vault.Collection == "" {
		errors = append(errors, ValidationError{
			Field:   "vault.collection",
			Message: "collection is required",
		})
	}

	if c.Vault.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "vault.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Workflow
	if c.Workflow.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "workflow.top_k",
			Message: "top_k must be positive",
		})
	}

	// LLM is only used when the workflow synthesizes answers
	if c.Workflow.Synthesize {
		if !isHTTPURL(c.LLM.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid Ollama base URL",
			})
		}
		if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
			errors = append(errors, ValidationError{
				Field:   "llm.max_tokens",
				Message: "max_tokens must be between 1 and 4096",
			})
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
			errors = append(errors, ValidationError{
				Field:   "llm.temperature",
				Message: "temperature must be between 0 and 1",
			})
		}
	}

	// Scraper
	if c.Scraper.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must not be negative",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unsupported log level: %s", c.Log.Level),
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
