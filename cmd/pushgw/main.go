package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/engine/loopback"
	"github.com/DeBrosOfficial/pushbridge/pkg/gateway"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		OutputFile:   cfg.Logging.OutputFile,
		EnableColors: cfg.Logging.OutputFile == "",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	engine := loopback.New(loopback.Config{
		BufferSize: cfg.Engine.BufferSize,
		Logger:     logger,
	})

	manager, err := client.NewManager(callback.WithLogger(logger))
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "failed to create callback manager", zap.Error(err))
		return 1
	}

	gwCfg, err := gateway.ConfigFromFile(cfg)
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "invalid gateway configuration", zap.Error(err))
		return 1
	}
	g, err := gateway.New(logger, gwCfg, gateway.Dependencies{
		Engine:      engine,
		Publisher:   engine,
		Manager:     manager,
		EngineStats: func() any { return engine.Stats() },
	})
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "failed to initialize gateway", zap.Error(err))
		return 1
	}

	// Start server
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- g.ListenAndServe()
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			logger.ComponentError(logging.ComponentGeneral, "HTTP server error", zap.Error(err))
			exitCode = 1
		}
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Shutting down push gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Shutdown(ctx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "HTTP server shutdown error", zap.Error(err))
	}
	if err := engine.Close(); err != nil {
		logger.ComponentWarn(logging.ComponentEngine, "engine close error", zap.Error(err))
	}
	if err := manager.Close(); err != nil {
		// Streams that were still closing hold registrations; force release.
		logger.ComponentWarn(logging.ComponentCallback, "clients still registered at shutdown", zap.Error(err))
		manager.Shutdown()
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Push gateway shutdown complete")
	return exitCode
}
