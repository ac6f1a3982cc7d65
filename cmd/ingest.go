package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/inspira/internal/models"
	"github.com/xhad/inspira/pkg/scraper"
)

const fileSource = "file_ingest"

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	docsURL := fs.String("url", "", "Website to crawl and ingest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	patterns := fs.Args()
	if *docsURL == "" && len(patterns) == 0 {
		return fmt.Errorf("nothing to ingest: pass -url or at least one glob pattern")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var docs []models.Document

	if len(patterns) > 0 {
		fileDocs, err := a.loadFiles(ctx, patterns)
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
	}

	if *docsURL != "" {
		webDocs, err := a.scrapeSite(ctx, *docsURL)
		if err != nil {
			return err
		}
		docs = append(docs, webDocs...)
	}

	if len(docs) == 0 {
		color.Yellow("No text found to ingest")
		return nil
	}

	return a.storeDocuments(ctx, docs)
}

func (a *app) loadFiles(ctx context.Context, patterns []string) ([]models.Document, error) {
	seen := map[string]bool{}
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() || seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	if len(paths) == 0 {
		return nil, nil
	}

	bar := getProgressBar(len(paths), "📄 Reading files...")
	var docs []models.Document
	for _, path := range paths {
		text, err := a.readText(ctx, path)
		bar.Add(1)
		if err != nil {
			a.logger.Warn("Skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}
		docs = append(docs, models.Document{
			ID:       uuid.NewString(),
			Filename: filepath.Base(path),
			Title:    filepath.Base(path),
			Content:  text,
			Metadata: map[string]interface{}{
				"source":   fileSource,
				"filename": filepath.Base(path),
				"path":     path,
			},
		})
	}
	bar.Finish()
	color.Green("\n✓ Read %d of %d files\n", len(docs), len(paths))

	return docs, nil
}

func (a *app) readText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return a.extractor.Extract(ctx, path), nil
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func (a *app) scrapeSite(ctx context.Context, docsURL string) ([]models.Document, error) {
	color.Blue("\nStarting documentation pipeline for %s\n", docsURL)

	var processedCount int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:           docsURL,
		MaxDepth:          a.config.Scraper.MaxDepth,
		RateLimit:         a.config.Scraper.RateLimit,
		IgnorePatterns:    a.config.Scraper.IgnorePatterns,
		AllowedExtensions: a.config.Scraper.AllowedExtensions,
		OnProgress: func(url string) {
			atomic.AddInt32(&processedCount, 1)
		},
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	scrapingBar := getProgressBar(-1, "📄 Scraping documentation...")
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				scrapingBar.Set(int(atomic.LoadInt32(&processedCount)))
			}
		}
	}()

	docs, err := s.Scrape(ctx, docsURL)
	close(done)
	scrapingBar.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to scrape documents: %w", err)
	}
	color.Green("\n✓ Scraped %d documents\n", len(docs))

	return docs, nil
}

// storeDocuments chunks every document and stores each one in a single
// vault write, so a document is either fully present or absent.
func (a *app) storeDocuments(ctx context.Context, docs []models.Document) error {
	processed, err := a.processor.Process(docs)
	if err != nil {
		return err
	}

	total := 0
	for _, p := range processed {
		total += len(p.Chunks)
	}

	storageBar := getProgressBar(total, "💾 Storing in vault...")
	startTime := time.Now()
	stored := 0
	for _, p := range processed {
		if len(p.Chunks) == 0 {
			continue
		}

		metadata := make([]map[string]interface{}, len(p.Chunks))
		for i := range p.Chunks {
			meta := map[string]interface{}{"chunk_index": i}
			for k, v := range p.Metadata {
				meta[k] = v
			}
			metadata[i] = meta
		}

		if _, err := a.vault.Store(ctx, p.Chunks, metadata); err != nil {
			return fmt.Errorf("failed to store %s: %w", documentLabel(p.Document), err)
		}

		stored += len(p.Chunks)
		storageBar.Add(len(p.Chunks))
		rate := float64(stored) / time.Since(startTime).Seconds()
		storageBar.Describe(color.BlueString("💾 Storing in vault... (%.1f chunks/sec)", rate))
	}
	storageBar.Finish()

	count, err := a.vault.Count(ctx)
	if err != nil {
		return err
	}
	color.Green("\n✓ Stored %d chunks from %d documents (%d in %s)\n",
		stored, len(processed), count, a.config.Vault.Collection)
	return nil
}

func documentLabel(doc models.Document) string {
	if doc.Filename != "" {
		return doc.Filename
	}
	return doc.URL
}
