// Command radius is the thin CLI front-end over the policy kernel: reading
// one event from stdin (hook), running a long-lived check server (serve),
// or validating configuration (doctor). The actual evaluation surface is
// internal/runtime.Runtime — this package only parses flags and wires I/O.
package main

import (
	"log/slog"
	"os"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
