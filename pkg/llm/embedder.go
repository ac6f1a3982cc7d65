package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

var ErrCountMismatch = errors.New("embedding count does not match input count")

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider  string // ollama or openai
	Model     string
	BaseURL   string
	APIKey    string
	Device    string // auto, gpu or cpu
	BatchSize int
}

// Embedder turns text into unit-length vectors. The model client is built
// once and shared by every call; it is safe for concurrent use.
type Embedder struct {
	config  EmbedderConfig
	client  embeddings.Embedder
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewEmbedderWithConfig(config EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "bge-m3"
	}
	if config.Device == "" {
		config.Device = "auto"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		opts := []ollama.Option{
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		}
		if config.Device == "cpu" {
			opts = append(opts, ollama.WithRunnerNumGPU(0))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		client = llm
	case "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Provider)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	logger.Info("Loaded embedding model",
		zap.String("provider", config.Provider),
		zap.String("model", config.Model),
		zap.String("device", deviceLabel(config)),
	)

	return NewEmbedderWithClient(emb, config, logger), nil
}

// NewEmbedderWithClient wraps an existing embedding client.
func NewEmbedderWithClient(client embeddings.Embedder, config EmbedderConfig, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		config: config,
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "embedder",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				// Caller cancellation says nothing about the model server.
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		logger: logger.Named("embedder"),
	}
}

// EmbedDocuments embeds texts in one batch, preserving order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.logger.Debug("Vectorizing chunks", zap.Int("count", len(texts)))

	res, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	vectors := res.([][]float32)
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrCountMismatch, len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = Normalize(v)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	return Normalize(res.([]float32)), nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func deviceLabel(config EmbedderConfig) string {
	switch {
	case config.Provider != "ollama":
		return "remote"
	case config.Device == "cpu":
		return "CPU"
	case config.Device == "gpu" || config.Device == "cuda":
		return "GPU"
	default:
		return "auto"
	}
}
