package main

import (
	"context"
	"log"
	"os"

	"github.com/aussiebroadwan/wateroflife/internal/auth/app"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; deployments inject the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
