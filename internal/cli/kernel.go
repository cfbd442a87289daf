package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/zkb/internal/manifest"
	"github.com/cruciblehq/zkb/internal/pipeline"
	"github.com/cruciblehq/zkb/internal/request"
)

// Flags describing a kernel build.
type KernelFlags struct {
	Base      request.Base `short:"b" default:"los" enum:"los,pa,x,aosp" help:"Kernel base (${enum})."`
	LKV       string       `name:"lkv" default:"4.4" help:"Linux kernel version."`
	KSU       bool         `name:"ksu" help:"Apply the KernelSU patch."`
	Defconfig string       `type:"path" help:"Custom defconfig file."`
}

// Returns the build request of the flags.
func (f KernelFlags) request(codename string, clean bool) request.Build {
	return request.Build{
		Codename:      codename,
		Base:          f.Base,
		KernelVersion: f.LKV,
		KSU:           f.KSU,
		Defconfig:     f.Defconfig,
		Clean:         clean,
	}
}

// Represents the 'zkb kernel' command.
type KernelCmd struct {
	Target      `embed:""`
	KernelFlags `embed:""`
	Clean       bool `help:"Only remove the kernel build directory."`
}

// Executes the kernel command.
func (c *KernelCmd) Run(ctx context.Context) error {
	check := manifest.Check{Command: manifest.CommandKernel, Defconfig: c.Defconfig}
	req := c.request(c.Codename, c.Clean)

	return dispatch(ctx, c.Target, check, func(ctx context.Context, p *pipeline.Pipeline) error {
		image, err := p.RunKernelBuild(ctx, req)
		if err != nil {
			return err
		}
		if req.Clean {
			slog.Info("kernel directory cleaned")
			return nil
		}
		slog.Info("kernel built", "image", image, "fetches", p.ResourceFetches())
		fmt.Println(image)
		return nil
	})
}
