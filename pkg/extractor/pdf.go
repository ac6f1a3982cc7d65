package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PDFExtractor pulls plain text out of PDF files.
type PDFExtractor struct {
	logger *zap.Logger
}

func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{logger: logger.Named("extractor")}
}

// Extract returns the text of every page in document order with all
// whitespace runs collapsed to single spaces. Any failure is logged and
// yields an empty string; no partial text is returned.
func (e *PDFExtractor) Extract(ctx context.Context, path string) string {
	text, err := e.extract(ctx, path)
	if err != nil {
		e.logger.Warn("Error processing PDF", zap.String("path", path), zap.Error(err))
		return ""
	}
	return cleanText(text)
}

func (e *PDFExtractor) extract(ctx context.Context, path string) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var builder strings.Builder

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
