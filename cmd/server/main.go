package main

import (
	"flag"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/magicgate/magicgate/internal/cmd"
	"github.com/magicgate/magicgate/internal/config"
	"github.com/magicgate/magicgate/internal/logging"
)

func main() {
	var cleanup bool
	var configPath string

	flag.BoolVar(&cleanup, "cleanup", false, "Delete expired and exhausted access tokens, then exit")
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.Parse()

	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		configPath = filepath.Join(wd, "config.yaml")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.Setup(cfg.Debug)
	if err = logging.SetOutputToFile(cfg.LoggingToFile); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}

	if cleanup {
		cmd.CleanupTokens(cfg)
		return
	}
	cmd.StartService(cfg, configPath)
}
