package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/zkb/internal/bundle"
	"github.com/cruciblehq/zkb/internal/manifest"
	"github.com/cruciblehq/zkb/internal/pipeline"
	"github.com/cruciblehq/zkb/internal/request"
)

// Represents the 'zkb bundle' command.
type BundleCmd struct {
	Target      `embed:""`
	KernelFlags `embed:""`
	AssetsFlags `embed:""`
	Package     request.PackageType `short:"p" name:"package-type" default:"full" enum:"conan,slim,full" help:"Bundle format (${enum})."`
	ConanUpload bool                `name:"conan-upload" help:"Upload the conan package to the configured remote."`
	Clean       bool                `help:"Only remove the kernel, asset and bundle directories."`
}

// Executes the bundle command.
func (c *BundleCmd) Run(ctx context.Context) error {
	if err := bundle.Validate(c.Package, c.ConanUpload); err != nil {
		return err
	}

	check := manifest.Check{Command: manifest.CommandBundle, Defconfig: c.Defconfig}
	build := c.KernelFlags.request(c.Codename, c.Clean)
	assets := request.Assets{
		Codename: c.Codename,
		Base:     c.Base,
		Chroot:   c.Chroot,
		ROMOnly:  c.ROMOnly,
		KSU:      c.KSU,
		Clean:    c.Clean,
	}

	return dispatch(ctx, c.Target, check, func(ctx context.Context, p *pipeline.Pipeline) error {
		artifact, err := p.RunBundle(ctx, build, assets, c.Package, c.ConanUpload)
		if err != nil {
			return err
		}
		if artifact == nil {
			slog.Info("bundle directories cleaned")
			return nil
		}
		slog.Info("bundle packaged", "type", artifact.PackageType, "path", artifact.Path, "kernel", artifact.KernelImage)
		fmt.Println(artifact.Path)
		return nil
	})
}
