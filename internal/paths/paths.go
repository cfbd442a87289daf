package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "zkb"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory holding cached toolchains and kernel sources.
//
//	Linux:   $XDG_CACHE_HOME/zkb/resources
//	macOS:   ~/Library/Caches/zkb/resources
func Resources() string {
	return filepath.Join(xdg.CacheHome, appName, "resources")
}

// Path to the directory holding per-key lock files.
//
//	Linux:   $XDG_RUNTIME_DIR/zkb/locks or ~/.cache/zkb/run/locks
func Locks() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName, "locks")
	}
	return filepath.Join(xdg.CacheHome, appName, "run", "locks")
}

// Directory layout of a build workspace.
type Workspace struct {
	Root string // Workspace root, bind mounted into containers at the same path.
}

// Directory where kernel sources are prepared and built.
func (w Workspace) Kernel() string {
	return filepath.Join(w.Root, "kernel")
}

// Directory where collected assets are stored.
func (w Workspace) Assets() string {
	return filepath.Join(w.Root, "assets")
}

// Directory where packaged bundles are written.
func (w Workspace) Bundle() string {
	return filepath.Join(w.Root, "bundle")
}

// All managed directories, in creation order.
func (w Workspace) All() []string {
	return []string{w.Kernel(), w.Assets(), w.Bundle()}
}
