package main

import (
	"flag"
	"log"

	"simplicity-itsm/config"
	"simplicity-itsm/core/appbootstrap"
	"simplicity-itsm/core/utils"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := utils.NewLogger(cfg.AppEnv)
	defer logger.Sync()

	if err := appbootstrap.Run(cfg, logger); err != nil {
		logger.Errorf("fatal: %v", err)
		logger.Sync()
		log.Fatal(err)
	}
}
