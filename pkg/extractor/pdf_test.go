package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/inspira/internal/testutil"
)

func TestExtractMultiPage(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WritePDF(t, dir, "two-pages.pdf", "Hello world", "Goodbye")

	e := NewPDFExtractor(nil)
	text := e.Extract(context.Background(), path)

	assert.Equal(t, "Hello world Goodbye", text)
}

func TestExtractCollapsesWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WritePDF(t, dir, "spaces.pdf", "  lots   of\tspace  ", "and    more")

	text := NewPDFExtractor(nil).Extract(context.Background(), path)

	assert.Equal(t, "lots of space and more", text)
	assert.NotRegexp(t, `\s{2,}`, text)
}

func TestExtractFailuresReturnEmpty(t *testing.T) {
	dir := t.TempDir()

	notPDF := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("just some text, not a pdf"), 0644))

	truncated := filepath.Join(dir, "truncated.pdf")
	full := testutil.BuildPDF("Hello world")
	require.NoError(t, os.WriteFile(truncated, full[:len(full)/2], 0644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.pdf")},
		{"plain text", notPDF},
		{"truncated pdf", truncated},
		{"directory", dir},
	}

	e := NewPDFExtractor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, "", e.Extract(context.Background(), tt.path))
			})
		})
	}
}

func TestExtractCancelled(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WritePDF(t, dir, "doc.pdf", "Hello world")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, "", NewPDFExtractor(nil).Extract(ctx, path))
}
