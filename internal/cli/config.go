package cli

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/cruciblehq/zkb/internal/paths"
)

// Settings read from the environment.
type Config struct {
	Workdir     string           `env:"ZKB_WORKDIR"`      // Workspace root. Empty uses the current directory.
	CacheDir    string           `env:"ZKB_CACHE_DIR"`    // Resource cache. Empty uses the XDG cache.
	Devices     string           `env:"ZKB_DEVICES"`      // Device list replacing the built-in one.
	Resources   string           `env:"ZKB_RESOURCES"`    // Resource catalog replacing the built-in one.
	ConanRemote string           `env:"ZKB_CONAN_REMOTE"` // Conan upload target.
	Jobs        int              `env:"ZKB_JOBS"`         // Parallel make jobs.
	Image       ImageConfig      `envPrefix:"ZKB_"`
	Containerd  ContainerdConfig `envPrefix:"ZKB_CONTAINERD_"`
}

// Image settings of containerized runs.
type ImageConfig struct {
	Ref        string `env:"IMAGE"`         // Image reference. Empty builds the default image.
	Dockerfile string `env:"DOCKERFILE"`    // Dockerfile building Ref.
	Archive    string `env:"IMAGE_ARCHIVE"` // OCI archive imported as Ref (containerd only).
}

// Connection settings of the containerd environment.
type ContainerdConfig struct {
	Address     string `env:"ADDRESS" envDefault:"/run/containerd/containerd.sock"`
	Namespace   string `env:"NAMESPACE" envDefault:"zkb"`
	Snapshotter string `env:"SNAPSHOTTER"`
}

// Parses the configuration from environ.
func parseConfig(environ []string) (*Config, error) {
	var cfg Config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Returns the workspace rooted at the configured directory.
func (c *Config) workspace() (paths.Workspace, error) {
	root := c.Workdir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return paths.Workspace{}, err
		}
		root = wd
	}
	return paths.Workspace{Root: root}, nil
}

// Returns the resource cache root.
func (c *Config) cacheRoot() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return paths.Resources()
}

// Returns the directory next to the resource cache holding generated state.
func (c *Config) stateDir() string {
	return filepath.Dir(c.cacheRoot())
}

// Returns the home directory of container processes.
func (c *Config) homeDir() string {
	return filepath.Join(c.stateDir(), "home")
}
