package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/zkb/internal/manifest"
	"github.com/cruciblehq/zkb/internal/pipeline"
	"github.com/cruciblehq/zkb/internal/request"
)

// Flags describing an asset collection.
type AssetsFlags struct {
	Chroot  request.Chroot `default:"full" enum:"full,minimal" help:"Kali NetHunter chroot flavour (${enum})."`
	ROMOnly bool           `name:"rom-only" help:"Download only the ROM."`
}

// Represents the 'zkb assets' command.
type AssetsCmd struct {
	Target      `embed:""`
	AssetsFlags `embed:""`
	Base        request.Base `short:"b" default:"los" enum:"los,pa,x,aosp" help:"ROM base (${enum})."`
	KSU         bool         `name:"ksu" help:"Include the KernelSU manager."`
	Clean       bool         `help:"Only remove the asset directory."`
}

// Executes the assets command.
func (c *AssetsCmd) Run(ctx context.Context) error {
	check := manifest.Check{Command: manifest.CommandAssets}
	req := request.Assets{
		Codename: c.Codename,
		Base:     c.Base,
		Chroot:   c.Chroot,
		ROMOnly:  c.ROMOnly,
		KSU:      c.KSU,
		Clean:    c.Clean,
	}

	return dispatch(ctx, c.Target, check, func(ctx context.Context, p *pipeline.Pipeline) error {
		dir, err := p.RunAssetsCollection(ctx, req)
		if err != nil {
			return err
		}
		if req.Clean {
			slog.Info("asset directory cleaned")
			return nil
		}
		slog.Info("assets collected", "dir", dir)
		fmt.Println(dir)
		return nil
	})
}
