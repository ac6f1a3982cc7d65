package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xhad/inspira/pkg/config"
	"github.com/xhad/inspira/pkg/extractor"
	"github.com/xhad/inspira/pkg/llm"
	"github.com/xhad/inspira/pkg/logging"
	"github.com/xhad/inspira/pkg/metrics"
	"github.com/xhad/inspira/pkg/processor"
	"github.com/xhad/inspira/pkg/store"
	"github.com/xhad/inspira/pkg/workflow"
)

const usage = `Usage: inspira <command> [flags]

Commands:
  serve                      run the HTTP API (default)
  ingest [-url URL] GLOB...  load PDFs, text files or a website into the vault
  chat                       ask questions from the terminal

Run "inspira <command> -h" for command flags.
`

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		return runServe(args)
	case "ingest":
		return runIngest(args)
	case "chat":
		return runChat(args)
	case "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// app holds the long-lived components shared by every command. They are
// built once and reused for the life of the process.
type app struct {
	config    *config.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	extractor *extractor.PDFExtractor
	processor *processor.Processor
	vault     *store.Vault
	workflow  *workflow.Workflow
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		Device:    cfg.Embedder.Device,
		BatchSize: cfg.Embedder.BatchSize,
	}, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.New("inspira")

	vault, err := store.Open(ctx, store.Config{
		Backend:    cfg.Vault.Backend,
		Path:       cfg.Vault.Path,
		URL:        cfg.Vault.URL,
		Collection: cfg.Vault.Collection,
		VectorDim:  cfg.Vault.VectorDim,
	}, embedder, store.WithLogger(logger), store.WithMetrics(collector))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		vault.Close()
		return nil, err
	}

	opts := []workflow.Option{
		workflow.WithTopK(cfg.Workflow.TopK),
		workflow.WithLogger(logger),
	}
	if cfg.Workflow.Synthesize {
		chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			BaseURL:     cfg.LLM.BaseURL,
		})
		if err != nil {
			vault.Close()
			return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		opts = append(opts, workflow.WithSynthesizer(chatEngine))
	}

	wf, err := workflow.New(ctx, vault, opts...)
	if err != nil {
		vault.Close()
		return nil, err
	}

	logger.Info("Vault ready",
		zap.String("backend", cfg.Vault.Backend),
		zap.String("collection", cfg.Vault.Collection),
		zap.Bool("synthesize", cfg.Workflow.Synthesize),
	)

	return &app{
		config:    cfg,
		logger:    logger,
		metrics:   collector,
		extractor: extractor.NewPDFExtractor(logger),
		processor: proc,
		vault:     vault,
		workflow:  wf,
	}, nil
}

func (a *app) Close() {
	if err := a.vault.Close(); err != nil {
		a.logger.Warn("Failed to close vault", zap.Error(err))
	}
	_ = a.logger.Sync()
}
