package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/zkb/internal"
	"github.com/cruciblehq/zkb/internal/manifest"
	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/pipeline"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/resource"
	"github.com/cruciblehq/zkb/internal/runtime"
	"github.com/cruciblehq/zkb/internal/session"
	"github.com/cruciblehq/zkb/internal/shell"
)

// Flags shared by the pipeline subcommands.
type Target struct {
	Env        request.Environment `short:"e" default:"docker" enum:"local,docker,podman,containerd" help:"Where the pipeline runs (${enum})."`
	Codename   string              `short:"c" required:"" help:"Device codename."`
	CleanImage bool                `help:"Remove the container image after the run."`
	Rebuild    bool                `help:"Rebuild or pull the container image even if present."`
}

// Runs a pipeline against a host or container executor.
type runFunc func(ctx context.Context, p *pipeline.Pipeline) error

// Where a pipeline runs.
//
// Each environment has exactly one implementation, selected in [newRunner].
type runner interface {
	run(ctx context.Context, opts pipeline.Options, fn runFunc) error
}

// Runs pipelines directly on the host.
type localRunner struct {
	root string
}

func (r localRunner) run(ctx context.Context, opts pipeline.Options, fn runFunc) error {
	opts.Executor = &shell.Host{Dir: r.root, Stream: commandStream()}
	return fn(ctx, pipeline.New(opts))
}

// Runs pipelines inside a container session.
type sessionRunner struct {
	engine     session.Engine
	image      session.Image
	opts       session.Options
	cleanImage bool
}

func (r sessionRunner) run(ctx context.Context, opts pipeline.Options, fn runFunc) error {
	for _, dir := range r.opts.Mounts {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return fmt.Errorf("%w: %w", session.ErrContainerSession, err)
		}
	}

	return session.Run(ctx, r.engine, r.image, r.opts, r.cleanImage, func(ctx context.Context, s *session.Session) error {
		opts.Executor = s
		return fn(ctx, pipeline.New(opts))
	})
}

// Selects the runner for env.
//
// The returned close function releases engine connections and must be called
// once the runner is no longer needed.
func newRunner(env request.Environment, cfg *Config, t Target, ws paths.Workspace) (runner, func(), error) {
	noop := func() {}

	// Containers run as the caller. HOME is a mounted directory it owns.
	home := cfg.homeDir()
	sessOpts := session.Options{
		Mounts:  []string{ws.Root, cfg.cacheRoot(), home},
		Workdir: ws.Root,
		Env: []string{
			internal.VersionEnv + "=" + internal.ExportVersion(),
			"HOME=" + home,
		},
		User: session.CurrentUser(),
	}

	switch env {
	case request.EnvLocal:
		return localRunner{root: ws.Root}, noop, nil

	case request.EnvDocker, request.EnvPodman:
		image, err := cliImage(cfg, t)
		if err != nil {
			return nil, nil, err
		}
		engine := session.NewCLI(string(env))
		if stream := commandStream(); stream != nil {
			engine.Stream = stream
		}
		return sessionRunner{engine: engine, image: image, opts: sessOpts, cleanImage: t.CleanImage}, noop, nil

	case request.EnvContainerd:
		if cfg.Image.Ref == "" && cfg.Image.Archive == "" {
			return nil, nil, fmt.Errorf("%w: containerd needs ZKB_IMAGE or ZKB_IMAGE_ARCHIVE", manifest.ErrValidation)
		}
		rt, err := runtime.New(runtime.Config{
			Address:     cfg.Containerd.Address,
			Namespace:   cfg.Containerd.Namespace,
			Snapshotter: cfg.Containerd.Snapshotter,
			Stream:      commandStream(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", session.ErrContainerSession, err)
		}
		image := session.Image{Ref: cfg.Image.Ref, Archive: cfg.Image.Archive, Rebuild: t.Rebuild}
		closeFn := func() {
			if err := rt.Close(); err != nil {
				slog.Warn("failed to close containerd client", "error", err)
			}
		}
		return sessionRunner{engine: rt, image: image, opts: sessOpts, cleanImage: t.CleanImage}, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("%w: %w: environment %q", manifest.ErrValidation, request.ErrUnknownValue, env)
	}
}

// Returns the image of a docker or podman run.
//
// Without a configured reference the embedded Dockerfile is written next to
// the resource cache and built.
func cliImage(cfg *Config, t Target) (session.Image, error) {
	if cfg.Image.Archive != "" {
		return session.Image{}, fmt.Errorf("%w: ZKB_IMAGE_ARCHIVE is only supported with containerd", manifest.ErrValidation)
	}
	if cfg.Image.Ref != "" {
		return session.Image{Ref: cfg.Image.Ref, Dockerfile: cfg.Image.Dockerfile, Rebuild: t.Rebuild}, nil
	}

	image, err := session.DefaultImage(filepath.Join(cfg.stateDir(), "image"))
	if err != nil {
		return session.Image{}, fmt.Errorf("%w: %w", session.ErrContainerSession, err)
	}
	if cfg.Image.Dockerfile != "" {
		image.Dockerfile = cfg.Image.Dockerfile
		image.Context = filepath.Dir(cfg.Image.Dockerfile)
	}
	image.Rebuild = t.Rebuild
	return image, nil
}

// Validates the request, selects the environment and runs fn.
func dispatch(ctx context.Context, t Target, check manifest.Check, fn runFunc) error {
	cfg, err := parseConfig(os.Environ())
	if err != nil {
		return fmt.Errorf("%w: %w", manifest.ErrValidation, err)
	}

	devices := manifest.Default()
	if cfg.Devices != "" {
		if devices, err = manifest.Load(cfg.Devices); err != nil {
			return err
		}
	}
	check.Environment = t.Env
	check.Codename = t.Codename
	if err := devices.Validate(check, manifest.DetectHost()); err != nil {
		return err
	}

	ws, err := cfg.workspace()
	if err != nil {
		return err
	}

	var catalog *resource.Catalog
	if cfg.Resources != "" {
		if catalog, err = resource.LoadCatalog(cfg.Resources); err != nil {
			return err
		}
	}

	r, closeFn, err := newRunner(t.Env, cfg, t, ws)
	if err != nil {
		return err
	}
	defer closeFn()

	slog.Debug("dispatching", "command", check.Command, "env", t.Env, "workspace", ws.Root)

	return r.run(ctx, pipeline.Options{
		Workspace:   ws,
		CacheRoot:   cfg.cacheRoot(),
		Catalog:     catalog,
		Locker:      resource.FileLocker{Dir: paths.Locks()},
		Version:     internal.ExportVersion(),
		Jobs:        cfg.Jobs,
		ConanRemote: cfg.ConanRemote,
	}, fn)
}
