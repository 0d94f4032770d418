package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"weather-tasks/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.ConfigureLogger(log.StandardLogger(), cfg.Debug, cfg.LogFormat)

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
