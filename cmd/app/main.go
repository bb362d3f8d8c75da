package main

import (
	"context"
	"flag"
	"log"
	"os"
	_ "time/tzdata"

	"BriefMaker/internal/di"
	"BriefMaker/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("symbols=%d indexes=%d timezone=%s", len(cfg.Brief.Symbols), len(cfg.Brief.Indexes), cfg.Session.Timezone)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run blocks until a signal or a fatal component error.
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
