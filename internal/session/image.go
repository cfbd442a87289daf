package session

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// Image reference used when none is configured.
const DefaultImageRef = "zkb-builder:latest"

//go:embed Dockerfile
var defaultDockerfile []byte

// Returns the embedded builder Dockerfile.
func DefaultDockerfile() []byte {
	return defaultDockerfile
}

// Writes the embedded Dockerfile into dir and returns an image built from it.
func DefaultImage(dir string) (Image, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Image{}, fmt.Errorf("create build context: %w", err)
	}
	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, defaultDockerfile, 0o644); err != nil {
		return Image{}, fmt.Errorf("write Dockerfile: %w", err)
	}
	return Image{Ref: DefaultImageRef, Dockerfile: path, Context: dir}, nil
}
