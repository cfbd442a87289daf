package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/resource"
	"github.com/cruciblehq/zkb/internal/shell"
)

const (

	// KernelSU setup script, run inside the kernel source tree.
	DefaultKSUSetupURL = "https://raw.githubusercontent.com/tiann/KernelSU/main/kernel/setup.sh"

	// Name under which a custom defconfig is installed into the source tree.
	customDefconfig = "zkb_defconfig"

	// Out-of-tree build directory, relative to the source tree.
	outDir = "out"
)

// Kernel image names in lookup order.
var imageNames = []string{"Image.gz-dtb", "Image.gz", "Image"}

// Resolves build resources for a key.
type Resolver interface {
	Resolve(ctx context.Context, key request.ResourceKey) (*resource.Resolved, error)
	Catalog() *resource.Catalog
}

// Controls a [Builder].
type Options struct {
	Workspace   paths.Workspace // Workspace whose kernel directory holds the build.
	Resources   Resolver        // Source of toolchains and kernel sources.
	Executor    shell.Executor  // Runs toolchain commands.
	Version     string          // Value exported as KVERSION to the build.
	Jobs        int             // Parallel make jobs. Zero uses the CPU count.
	KSUSetupURL string          // KernelSU setup script. Empty uses [DefaultKSUSetupURL].
}

// Builds kernels.
type Builder struct {
	ws          paths.Workspace
	resources   Resolver
	executor    shell.Executor
	version     string
	jobs        int
	ksuSetupURL string
}

// Creates a builder from opts.
func New(opts Options) *Builder {
	b := &Builder{
		ws:          opts.Workspace,
		resources:   opts.Resources,
		executor:    opts.Executor,
		version:     opts.Version,
		jobs:        opts.Jobs,
		ksuSetupURL: opts.KSUSetupURL,
	}
	if b.executor == nil {
		b.executor = &shell.Host{}
	}
	if b.jobs <= 0 {
		b.jobs = goruntime.NumCPU()
	}
	if b.ksuSetupURL == "" {
		b.ksuSetupURL = DefaultKSUSetupURL
	}
	return b
}

// State of a single build as it moves through the stages.
type run struct {
	req      request.Build
	resolved *resource.Resolved
	src      string    // Workspace copy of the kernel source.
	env      *buildEnv // Environment of toolchain commands.
	image    string    // Located kernel image.
}

// A named build stage and the error reported when it fails.
type stage struct {
	name     string
	sentinel error
	fn       func(ctx context.Context, r *run) error
}

// Runs the build for req and returns the path of the kernel image.
//
// A clean request removes the kernel workspace and returns an empty path
// without running any other stage.
func (b *Builder) Run(ctx context.Context, req request.Build) (string, error) {
	if req.Clean {
		return "", b.clean(ctx)
	}

	slog.Info("building kernel",
		"codename", req.Codename,
		"base", req.Base,
		"kernel", req.KernelVersion,
		"ksu", req.KSU,
	)

	r := &run{req: req, env: newBuildEnv()}
	for _, st := range b.stages() {
		slog.Info(fmt.Sprintf("stage %s", st.name), "codename", req.Codename)
		if err := st.fn(ctx, r); err != nil {
			if errors.Is(err, st.sentinel) {
				return "", fmt.Errorf("stage %s: %w", st.name, err)
			}
			return "", fmt.Errorf("%w: stage %s: %w", st.sentinel, st.name, err)
		}
	}

	slog.Info("kernel built", "image", r.image)
	return r.image, nil
}

func (b *Builder) stages() []stage {
	return []stage{
		{"resolve", resource.ErrResourceFetch, b.resolve},
		{"ksu", ErrPatchApply, b.patchKSU},
		{"defconfig", ErrConfigApply, b.configure},
		{"make", ErrBuildTool, b.make},
		{"locate", ErrBuildTool, b.locate},
	}
}

// Removes the kernel workspace.
func (b *Builder) clean(ctx context.Context) error {
	slog.Info("cleaning kernel workspace", "dir", b.ws.Kernel())
	cmd := shell.Command{Line: "rm -rf " + shell.Quote(b.ws.Kernel())}
	if _, err := shell.Run(ctx, b.executor, "remove kernel workspace", cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return nil
}

// Resolves resources and prepares a workspace copy of the kernel source.
//
// The cached source is never modified; patches and build output go to the
// copy.
func (b *Builder) resolve(ctx context.Context, r *run) error {
	res, err := b.resources.Resolve(ctx, r.req.ResourceKey())
	if err != nil {
		return err
	}
	r.resolved = res

	if err := os.MkdirAll(b.ws.Kernel(), paths.DefaultDirMode); err != nil {
		return err
	}

	r.src = filepath.Join(b.ws.Kernel(), "source")
	line := fmt.Sprintf("rm -rf %s && cp -a %s %s",
		shell.Quote(r.src), shell.Quote(res.Source()), shell.Quote(r.src))
	if _, err := shell.Run(ctx, b.executor, "copy kernel source", shell.Command{Line: line}); err != nil {
		return err
	}

	r.env.chdir(r.src)
	r.env.prependPath(filepath.Join(res.Toolchain(), "bin"))
	r.env.apply(map[string]string{
		"ARCH":                "arm64",
		"SUBARCH":             "arm64",
		"CC":                  "clang",
		"CLANG_TRIPLE":        "aarch64-linux-gnu-",
		"CROSS_COMPILE":       "aarch64-linux-gnu-",
		"CROSS_COMPILE_ARM32": "arm-linux-gnueabi-",
	})
	if b.version != "" {
		r.env.apply(map[string]string{"KVERSION": b.version})
	}
	return nil
}

// Applies the KernelSU patch set when requested.
func (b *Builder) patchKSU(ctx context.Context, r *run) error {
	if !r.req.KSU {
		return nil
	}

	line := fmt.Sprintf("curl -LSs %s | bash -", shell.Quote(b.ksuSetupURL))
	if _, err := shell.Run(ctx, b.executor, "kernelsu setup", r.env.command(line)); err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(r.src, "KernelSU")); err != nil {
		return fmt.Errorf("kernelsu sources missing after setup: %w", err)
	}
	return nil
}

// Generates the kernel configuration.
//
// A custom defconfig is installed into the source tree under a fixed name;
// otherwise the base default from the catalog is used. With KernelSU the
// option is enabled on top and the configuration is refreshed.
func (b *Builder) configure(ctx context.Context, r *run) error {
	key := r.req.ResourceKey()

	target := b.resources.Catalog().Defconfig(key)
	if r.req.Defconfig != "" {
		data, err := os.ReadFile(r.req.Defconfig)
		if err != nil {
			return err
		}
		dst := filepath.Join(r.src, "arch", "arm64", "configs", customDefconfig)
		if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, paths.DefaultFileMode); err != nil {
			return err
		}
		target = customDefconfig
	}
	if target == "" {
		return fmt.Errorf("no default configuration for %s", key)
	}

	slog.Debug("applying configuration", "defconfig", target)
	if _, err := shell.Run(ctx, b.executor, "make "+target, r.env.command(b.makeLine(target))); err != nil {
		return err
	}

	if !r.req.KSU {
		return nil
	}

	line := fmt.Sprintf("./scripts/config --file %s -e KSU", filepath.Join(outDir, ".config"))
	if _, err := shell.Run(ctx, b.executor, "enable kernelsu", r.env.command(line)); err != nil {
		return err
	}
	_, err := shell.Run(ctx, b.executor, "make olddefconfig", r.env.command(b.makeLine("olddefconfig")))
	return err
}

// Runs the kernel build.
func (b *Builder) make(ctx context.Context, r *run) error {
	_, err := shell.Run(ctx, b.executor, "make", r.env.command(b.makeLine()))
	return err
}

// Finds the produced kernel image.
func (b *Builder) locate(ctx context.Context, r *run) error {
	boot := filepath.Join(r.src, outDir, "arch", "arm64", "boot")
	for _, name := range imageNames {
		p := filepath.Join(boot, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			r.image = p
			return nil
		}
	}
	return fmt.Errorf("no kernel image in %s (looked for %s)", boot, strings.Join(imageNames, ", "))
}

// Builds a make invocation for targets.
//
// CC and CLANG_TRIPLE are passed as make variables because the kernel
// Makefile assigns them unconditionally.
func (b *Builder) makeLine(targets ...string) string {
	args := []string{
		"make",
		fmt.Sprintf("-j%d", b.jobs),
		"O=" + outDir,
		`CC="$CC"`,
		`CLANG_TRIPLE="$CLANG_TRIPLE"`,
	}
	return strings.Join(append(args, targets...), " ")
}
