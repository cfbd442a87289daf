package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/zkb/internal"
	"github.com/cruciblehq/zkb/internal/cli"
	"github.com/cruciblehq/zkb/internal/logging"
)

// The entry point for zkb.
//
// Initializes logging, displays startup information, and executes the root
// command. Exits with 130 when interrupted and 1 on any other error.
func main() {
	level := new(slog.LevelVar)
	level.Set(internal.LogLevel())
	slog.SetDefault(logging.New(os.Stderr, level))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("zkb is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(level); err != nil {
		slog.Error(err.Error())
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
