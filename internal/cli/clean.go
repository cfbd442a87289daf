package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Represents the 'zkb clean' command.
//
// Removes directories on the host only; no container is started.
type CleanCmd struct {
	Resources bool `help:"Also remove the cached toolchains and kernel sources."`
}

// Executes the clean command.
func (c *CleanCmd) Run(ctx context.Context) error {
	cfg, err := parseConfig(os.Environ())
	if err != nil {
		return err
	}

	ws, err := cfg.workspace()
	if err != nil {
		return err
	}

	dirs := ws.All()
	if c.Resources {
		dirs = append(dirs, cfg.cacheRoot())
	}

	return removeAll(dirs)
}

// Removes every directory in dirs.
func removeAll(dirs []string) error {
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		slog.Info("removed", "dir", dir)
	}
	return nil
}
