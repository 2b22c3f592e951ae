// Package main is the entry point for the beatgrid API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/james-see/beatgrid/pkg/api"
	"github.com/james-see/beatgrid/pkg/config"
	"github.com/james-see/beatgrid/pkg/converter"
	"github.com/james-see/beatgrid/pkg/logging"
	"github.com/james-see/beatgrid/pkg/store"
)

func main() {
	port := flag.Int("port", 0, "Server port (default from config)")
	configPath := flag.String("config", "", "Config file")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	if configPath == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.Init(cfg.Log.Level, cfg.Log.Format, false)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	var repo store.Repository = store.NewMemoryStore()
	if dir, err := cfg.ResolveDataDir(); err == nil {
		repo = store.NewFileStore(filepath.Join(dir, "beats.json"))
	}

	conv := converter.New(nil, converter.WithSampleRate(cfg.Audio.SampleRate), converter.WithLogger(logger))
	if cfg.Audio.SampleDir != "" {
		conv.SetSampleLoader(converter.NewFileSampleLoader(cfg.Audio.SampleDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting beatgrid API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)

	s := api.NewServer(conv, repo, api.WithBaseURL(cfg.Server.BaseURL), api.WithLogger(logger))
	return s.Run(ctx, fmt.Sprintf(":%d", port))
}
