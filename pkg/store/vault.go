// Package store persists embedded chunks and answers similarity queries.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/inspira/internal/models"
	"github.com/xhad/inspira/internal/types"
	"github.com/xhad/inspira/pkg/metrics"
)

const (
	DefaultCollection = "user_inspiration"
	DefaultSource     = "pdf_upload"
)

var (
	ErrEmptyChunk     = errors.New("chunk text is empty")
	ErrMetadataLength = errors.New("metadata count does not match chunk count")
	ErrInvalidK       = errors.New("k must be positive")
)

// Config selects and configures the vault backend.
type Config struct {
	Backend    string // sqlite or pgvector
	Path       string
	URL        string
	Collection string
	VectorDim  int
}

// Vault is the persistent collection of embedded chunks. It is safe for
// concurrent use when its backend and embedder are.
type Vault struct {
	backend  types.VectorBackend
	embedder types.Embedder
	metrics  *metrics.Collector
	logger   *zap.Logger
}

type Option func(*Vault)

func WithLogger(logger *zap.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger.Named("vault")
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(v *Vault) { v.metrics = m }
}

func New(backend types.VectorBackend, embedder types.Embedder, opts ...Option) *Vault {
	v := &Vault{
		backend:  backend,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Open builds the configured backend and wraps it in a Vault.
func Open(ctx context.Context, config Config, embedder types.Embedder, opts ...Option) (*Vault, error) {
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}

	var backend types.VectorBackend
	switch config.Backend {
	case "", "sqlite":
		b, err := OpenSQLite(config.Path, config.Collection)
		if err != nil {
			return nil, err
		}
		backend = b
	case "pgvector":
		b, err := NewPGVector(ctx, PGVectorConfig{
			ConnString: config.URL,
			Collection: config.Collection,
			VectorDim:  config.VectorDim,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported vault backend: %s", config.Backend)
	}

	return New(backend, embedder, opts...), nil
}

// Store embeds chunks and writes them with fresh IDs. Nothing is written
// unless every chunk embeds. A nil metadata slice tags each chunk with the
// default source.
func (v *Vault) Store(ctx context.Context, chunks []string, metadata []map[string]interface{}) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	if metadata != nil && len(metadata) != len(chunks) {
		return nil, fmt.Errorf("%w: %d metadata for %d chunks", ErrMetadataLength, len(metadata), len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			return nil, fmt.Errorf("chunk %d: %w", i, ErrEmptyChunk)
		}
	}

	vectors, err := v.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	now := time.Now()
	ids := make([]string, len(chunks))
	entries := make([]models.VaultEntry, len(chunks))
	for i, c := range chunks {
		meta := map[string]interface{}{"source": DefaultSource}
		if metadata != nil && metadata[i] != nil {
			meta = metadata[i]
		}
		ids[i] = uuid.NewString()
		entries[i] = models.VaultEntry{
			ID:        ids[i],
			Document:  c,
			Embedding: vectors[i],
			Metadata:  meta,
			CreatedAt: now,
		}
	}

	if err := v.backend.Upsert(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	v.metrics.ObserveStored(len(ids))
	v.logger.Info("Stored chunks", zap.Int("count", len(ids)))
	return ids, nil
}

// Search returns up to k chunk texts, most similar first.
func (v *Vault) Search(ctx context.Context, query string, k int) ([]string, error) {
	results, err := v.SearchResults(ctx, query, k)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Document
	}
	return docs, nil
}

// SearchResults is Search with IDs, metadata and cosine scores.
func (v *Vault) SearchResults(ctx context.Context, query string, k int) (results []models.SearchResult, err error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	defer func() { v.metrics.ObserveSearch(err) }()

	n, err := v.backend.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []models.SearchResult{}, nil
	}

	vector, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err = v.backend.Query(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	v.logger.Debug("Vault search", zap.Int("k", k), zap.Int("hits", len(results)))
	return results, nil
}

func (v *Vault) Count(ctx context.Context) (int, error) {
	return v.backend.Count(ctx)
}

func (v *Vault) Close() error {
	return v.backend.Close()
}
