package pipeline

import (
	"context"
	"net/http"

	"github.com/cruciblehq/zkb/internal/assets"
	"github.com/cruciblehq/zkb/internal/build"
	"github.com/cruciblehq/zkb/internal/bundle"
	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/resource"
	"github.com/cruciblehq/zkb/internal/rom"
	"github.com/cruciblehq/zkb/internal/shell"
)

// Configures a [Pipeline].
type Options struct {
	Workspace   paths.Workspace   // Working directories of the three processes.
	Executor    shell.Executor    // Runs every external command. Nil uses a [shell.Host].
	CacheRoot   string            // Resource cache. Empty uses [paths.Resources].
	Catalog     *resource.Catalog // Resource sources. Nil uses [resource.DefaultCatalog].
	Locker      resource.Locker   // Cross-process cache exclusion. Nil disables it.
	Vendors     rom.Registry      // ROM clients. Nil uses [rom.DefaultRegistry].
	ROM         rom.Options       // Vendor client options, mainly for endpoint overrides.
	HTTPClient  *http.Client      // Client for every download. Nil uses http.DefaultClient.
	Version     string            // Exported as KVERSION and used as package version.
	Jobs        int               // Parallel make jobs. Zero uses the CPU count.
	ConanRemote string            // Conan upload target.

	ChrootBaseURL string // Overrides the NetHunter rootfs location.
	KSUReleaseURL string // Overrides the KernelSU release endpoint.
	KSUSetupURL   string // Overrides the KernelSU setup script.
}

// Runs kernel builds, asset collections and bundles.
type Pipeline struct {
	resources *resource.Manager
	kernel    *build.Builder
	assets    *assets.Collector
	bundle    *bundle.Orchestrator
}

// Wires a pipeline from opts.
func New(opts Options) *Pipeline {
	if opts.Executor == nil {
		opts.Executor = &shell.Host{}
	}
	if opts.CacheRoot == "" {
		opts.CacheRoot = paths.Resources()
	}

	resources := resource.New(resource.Options{
		Root:     opts.CacheRoot,
		Catalog:  opts.Catalog,
		Executor: opts.Executor,
		Client:   opts.HTTPClient,
		Locker:   opts.Locker,
	})

	kernel := build.New(build.Options{
		Workspace:   opts.Workspace,
		Resources:   resources,
		Executor:    opts.Executor,
		Version:     opts.Version,
		Jobs:        opts.Jobs,
		KSUSetupURL: opts.KSUSetupURL,
	})

	collector := assets.New(assets.Options{
		Workspace:     opts.Workspace,
		Vendors:       opts.Vendors,
		ROM:           opts.ROM,
		Client:        opts.HTTPClient,
		ChrootBaseURL: opts.ChrootBaseURL,
		KSUReleaseURL: opts.KSUReleaseURL,
	})

	return &Pipeline{
		resources: resources,
		kernel:    kernel,
		assets:    collector,
		bundle: bundle.New(bundle.Options{
			Workspace:   opts.Workspace,
			Kernel:      kernel,
			Assets:      collector,
			Executor:    opts.Executor,
			Version:     opts.Version,
			ConanRemote: opts.ConanRemote,
		}),
	}
}

// Builds a kernel and returns the image path.
func (p *Pipeline) RunKernelBuild(ctx context.Context, req request.Build) (string, error) {
	return p.kernel.Run(ctx, req)
}

// Collects assets and returns the asset directory.
func (p *Pipeline) RunAssetsCollection(ctx context.Context, req request.Assets) (string, error) {
	return p.assets.Run(ctx, req)
}

// Builds a kernel, collects assets and packages both.
func (p *Pipeline) RunBundle(ctx context.Context, b request.Build, a request.Assets, pkg request.PackageType, upload bool) (*request.BundleArtifact, error) {
	return p.bundle.Run(ctx, b, a, pkg, upload)
}

// Number of resources fetched from their source during this pipeline's life.
func (p *Pipeline) ResourceFetches() int64 {
	return p.resources.Fetches()
}
