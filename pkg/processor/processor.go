package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/inspira/internal/models"
)

var ErrInvalidChunkConfig = errors.New("chunk_size must be positive and chunk_overlap must be non-negative and less than chunk_size")

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// Separators are tried in order before falling back to hard cuts.
	Separators []string
}

// Processor splits text into overlapping chunks sized for embedding.
type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
	}
}

// NewWithConfig validates the chunk parameters as given. A zero overlap is
// valid; a zero chunk size is not.
func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " ", ""}
	}
	if config.ChunkSize <= 0 || config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w (chunk_size=%d, chunk_overlap=%d)", ErrInvalidChunkConfig, config.ChunkSize, config.ChunkOverlap)
	}

	return &Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
		),
	}, nil
}

// Split returns the chunks of text in source order. Whitespace-only input
// yields no chunks.
func (p *Processor) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := p.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks, nil
}

func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	var processed []models.ProcessedDocument

	for _, doc := range docs {
		chunks, err := p.Split(cleanText(doc.Content))
		if err != nil {
			return nil, fmt.Errorf("failed to process document %s: %w", documentName(doc), err)
		}

		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   chunks,
		})
	}

	return processed, nil
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func documentName(doc models.Document) string {
	switch {
	case doc.Filename != "":
		return doc.Filename
	case doc.URL != "":
		return doc.URL
	default:
		return doc.ID
	}
}
