package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/pearls-cli/internal/adapters/driving/cli"
)

func main() {
	// Pick up OPENAI_API_KEY and friends from a local .env if present.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
