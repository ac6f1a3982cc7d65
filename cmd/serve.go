package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/xhad/inspira/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.config.Server
	if *addr != "" {
		cfg.Address = *addr
	}

	srv := server.New(server.Config{
		Address:        cfg.Address,
		UploadDir:      cfg.UploadDir,
		MaxUploadMB:    cfg.MaxUploadMB,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}, server.Dependencies{
		Extractor: a.extractor,
		Chunker:   a.processor,
		Vault:     a.vault,
		Workflow:  a.workflow,
		Metrics:   a.metrics,
		Logger:    a.logger,
	})

	return srv.ListenAndServe(ctx)
}
