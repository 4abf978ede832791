// Package cmd orchestrates the run and cleanup modes of the magicgate
// binary.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/magicgate/magicgate/internal/api"
	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/routes"
	signalsink "github.com/magicgate/magicgate/internal/signal"
	"github.com/magicgate/magicgate/internal/token"
	"github.com/magicgate/magicgate/internal/watcher"
)

// StartService builds the registry from the configured route tree, opens
// the token store, starts the HTTP server and the config watcher, and
// blocks until a shutdown signal arrives.
func StartService(cfg *config.Config, configPath string) {
	registry, err := routes.BuildRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to build route registry: %v", err)
	}
	log.Infof("registered %d protected paths", registry.Len())

	store, err := token.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	signals := signalsink.NewDispatcher()
	signals.Register(signalsink.NewLoggerSink())

	server, err := api.NewServer(cfg, registry, store, signals)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configWatcher, err := watcher.NewWatcher(configPath, func(newCfg *config.Config) {
		rebuilt, errBuild := routes.BuildRegistry(newCfg)
		if errBuild != nil {
			log.Errorf("invalid route tree in reloaded config, keeping previous routes: %v", errBuild)
			return
		}
		registry.Adopt(rebuilt)
		server.UpdateConfig(newCfg)
	})
	if err != nil {
		log.Fatalf("failed to create config watcher: %v", err)
	}
	if err = configWatcher.Start(ctx); err != nil {
		log.Fatalf("failed to start config watcher: %v", err)
	}
	defer func() {
		_ = configWatcher.Stop()
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errChan:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case <-sigChan:
		log.Debug("received shutdown signal, cleaning up")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err = server.Stop(shutdownCtx); err != nil {
			log.Errorf("error stopping server: %v", err)
		}
	}
}
