package main

import (
	"os"

	"github.com/wonny/eodsnap/cmd/eodsnap/commands"
)

// main is the entry point for the eodsnap CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/eodsnap [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
