package types

import (
	"context"

	"github.com/xhad/inspira/internal/models"
)

// Core interfaces
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

type Chunker interface {
	Split(text string) ([]string, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorBackend interface {
	Upsert(ctx context.Context, entries []models.VaultEntry) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type Vault interface {
	Store(ctx context.Context, chunks []string, metadata []map[string]interface{}) ([]string, error)
	Search(ctx context.Context, query string, k int) ([]string, error)
}

type Workflow interface {
	Invoke(ctx context.Context, question string, clientContext []string) (*models.GraphState, error)
}
