// Package testutil holds in-process stand-ins for the model server and
// fixtures shared by package tests.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedding client. Each token
// increments one hashed dimension; vectors are not normalized.
type HashEmbedder struct {
	Dim   int
	Err   error
	calls atomic.Int64
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.Err != nil {
		return nil, h.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.vector(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	h.calls.Add(1)
	if h.Err != nil {
		return nil, h.Err
	}
	return h.vector(text), nil
}

// Calls reports how many embedding requests were made.
func (h *HashEmbedder) Calls() int {
	return int(h.calls.Load())
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.Dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[int(f.Sum32())%h.Dim]++
	}
	return v
}
