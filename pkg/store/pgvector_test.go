package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/inspira/internal/testutil"
	"github.com/xhad/inspira/pkg/llm"
	"github.com/xhad/inspira/pkg/store"
)

func TestPGVectorVault(t *testing.T) {
	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	backend, err := store.NewPGVector(ctx, store.PGVectorConfig{
		ConnString: connString,
		Collection: "test_inspiration",
		VectorDim:  64,
	})
	require.NoError(t, err)

	emb := llm.NewEmbedderWithClient(testutil.NewHashEmbedder(64), llm.EmbedderConfig{}, nil)
	v := store.New(backend, emb)
	defer v.Close()

	before, err := v.Count(ctx)
	require.NoError(t, err)

	ids, err := v.Store(ctx, []string{"This is chunk 1", "Something else entirely"}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	after, err := v.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+2, after)

	results, err := v.SearchResults(ctx, "This is chunk 1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "This is chunk 1", results[0].Document)
	assert.Equal(t, "pdf_upload", results[0].Metadata["source"])
}
