package main

import (
	"os"

	"budgetsync/internal/cli"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
