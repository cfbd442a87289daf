package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/shell"
)

// Conan remote used when none is configured.
const DefaultConanRemote = "zkb"

// Produces a kernel image.
type KernelBuilder interface {
	Run(ctx context.Context, req request.Build) (string, error)
}

// Produces an asset directory.
type AssetsCollector interface {
	Run(ctx context.Context, req request.Assets) (string, error)
}

// Controls an [Orchestrator].
type Options struct {
	Workspace   paths.Workspace // Workspace whose bundle directory receives the package.
	Kernel      KernelBuilder   // Builds the kernel.
	Assets      AssetsCollector // Collects the assets.
	Executor    shell.Executor  // Runs conan. Nil uses a [shell.Host].
	Version     string          // Package version. Empty uses the kernel version.
	ConanRemote string          // Upload target. Empty uses [DefaultConanRemote].
}

// Runs both pipelines and packages their outputs.
type Orchestrator struct {
	ws          paths.Workspace
	kernel      KernelBuilder
	assets      AssetsCollector
	executor    shell.Executor
	version     string
	conanRemote string
}

// Creates an orchestrator from opts.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		ws:          opts.Workspace,
		kernel:      opts.Kernel,
		assets:      opts.Assets,
		executor:    opts.Executor,
		version:     opts.Version,
		conanRemote: opts.ConanRemote,
	}
	if o.executor == nil {
		o.executor = &shell.Host{}
	}
	if o.conanRemote == "" {
		o.conanRemote = DefaultConanRemote
	}
	return o
}

// Checks that pkg and upload can be combined.
//
// Upload is only supported for conan packages.
func Validate(pkg request.PackageType, upload bool) error {
	if _, err := request.ParsePackageType(string(pkg)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if upload && pkg != request.PackageConan {
		return fmt.Errorf("%w: upload requires package type %q, got %q", ErrInvalidConfiguration, request.PackageConan, pkg)
	}
	return nil
}

// Builds the kernel, collects the assets and packages both as pkg.
//
// The configuration is validated before any stage runs. A clean build
// request cleans the kernel, asset and bundle directories and returns a nil
// artifact.
func (o *Orchestrator) Run(ctx context.Context, build request.Build, assets request.Assets, pkg request.PackageType, upload bool) (*request.BundleArtifact, error) {
	if err := Validate(pkg, upload); err != nil {
		return nil, err
	}

	if build.Clean {
		return nil, o.clean(ctx, build, assets)
	}

	slog.Info("building bundle", "codename", build.Codename, "package", pkg, "upload", upload)

	image, err := o.kernel.Run(ctx, build)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	assetDir, err := o.assets.Run(ctx, assets)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}

	artifact := &request.BundleArtifact{
		KernelImage: image,
		AssetDir:    assetDir,
		PackageType: pkg,
	}

	if err := o.prepareDir(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPackage, err)
	}

	name := o.name(build)
	switch pkg {
	case request.PackageFull:
		artifact.Path, err = o.packFull(name, image, assetDir)
	case request.PackageSlim:
		artifact.Path, err = o.packSlim(name, image, assetDir)
	case request.PackageConan:
		artifact.Path, err = o.packConan(ctx, build, image, assetDir, upload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPackage, pkg, err)
	}

	slog.Info("bundle packaged", "path", artifact.Path)
	return artifact, nil
}

// Cleans every pipeline workspace.
func (o *Orchestrator) clean(ctx context.Context, build request.Build, assets request.Assets) error {
	assets.Clean = true
	if _, err := o.kernel.Run(ctx, build); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if _, err := o.assets.Run(ctx, assets); err != nil {
		return fmt.Errorf("assets: %w", err)
	}

	slog.Info("cleaning bundle directory", "dir", o.ws.Bundle())
	if err := os.RemoveAll(o.ws.Bundle()); err != nil {
		return fmt.Errorf("%w: %w", ErrPackage, err)
	}
	return nil
}

// Replaces the bundle directory with an empty one.
func (o *Orchestrator) prepareDir() error {
	if err := os.RemoveAll(o.ws.Bundle()); err != nil {
		return err
	}
	return os.MkdirAll(o.ws.Bundle(), paths.DefaultDirMode)
}

// Returns the bundle name, e.g. "zkb-dumpling-pa-5.10-ksu".
func (o *Orchestrator) name(build request.Build) string {
	parts := []string{"zkb", build.Codename, string(build.Base), build.KernelVersion}
	if build.KSU {
		parts = append(parts, "ksu")
	}
	return strings.Join(parts, "-")
}

// Returns the package version.
func (o *Orchestrator) packageVersion(build request.Build) string {
	if o.version != "" {
		return o.version
	}
	return build.KernelVersion
}

func (o *Orchestrator) packFull(name, image, assetDir string) (string, error) {
	dest := filepath.Join(o.ws.Bundle(), name+".tar.xz")
	err := writeTarXz(dest, []entry{
		{src: image, name: filepath.Join(name, filepath.Base(image))},
		{src: assetDir, name: filepath.Join(name, "assets")},
	})
	return dest, err
}

func (o *Orchestrator) packSlim(name, image, assetDir string) (string, error) {
	dest := filepath.Join(o.ws.Bundle(), name+"-slim.tar.xz")
	err := writeTarXz(dest, []entry{
		{src: image, name: filepath.Join(name, filepath.Base(image))},
		{src: filepath.Join(assetDir, manifestName), name: filepath.Join(name, manifestName)},
	})
	return dest, err
}
