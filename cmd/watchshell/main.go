package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/alasdair-cooper/watch-history/internal/cli"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "watchshell:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
