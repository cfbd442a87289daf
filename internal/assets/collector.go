package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cruciblehq/zkb/internal/fetch"
	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/rom"
)

const (

	// Location of the NetHunter rootfs archives.
	DefaultChrootBaseURL = "https://kali.download/nethunter-images/current/rootfs"

	// GitHub API endpoint of the latest KernelSU release.
	DefaultKSUReleaseURL = "https://api.github.com/repos/tiann/KernelSU/releases/latest"

	// Name of the manifest written into the asset directory.
	ManifestName = "manifest.json"
)

// Controls a [Collector].
type Options struct {
	Workspace     paths.Workspace // Workspace whose asset directory receives the files.
	Vendors       rom.Registry    // ROM clients by base. Nil uses [rom.DefaultRegistry].
	ROM           rom.Options     // Options passed to the vendor client.
	Client        *http.Client    // Downloads assets. Nil uses http.DefaultClient.
	ChrootBaseURL string          // Empty uses [DefaultChrootBaseURL].
	KSUReleaseURL string          // Empty uses [DefaultKSUReleaseURL].
}

// Collects assets.
type Collector struct {
	ws            paths.Workspace
	vendors       rom.Registry
	romOpts       rom.Options
	client        *http.Client
	chrootBaseURL string
	ksuReleaseURL string
	now           func() time.Time
}

// Creates a collector from opts.
func New(opts Options) *Collector {
	c := &Collector{
		ws:            opts.Workspace,
		vendors:       opts.Vendors,
		romOpts:       opts.ROM,
		client:        opts.Client,
		chrootBaseURL: opts.ChrootBaseURL,
		ksuReleaseURL: opts.KSUReleaseURL,
		now:           time.Now,
	}
	if c.vendors == nil {
		c.vendors = rom.DefaultRegistry()
	}
	if c.romOpts.HTTPClient == nil {
		c.romOpts.HTTPClient = c.client
	}
	if c.chrootBaseURL == "" {
		c.chrootBaseURL = DefaultChrootBaseURL
	}
	if c.ksuReleaseURL == "" {
		c.ksuReleaseURL = DefaultKSUReleaseURL
	}
	return c
}

// State of a single collection.
type collection struct {
	req      request.Assets
	dir      string
	release  *rom.Release
	manifest Manifest
}

// Collects the assets for req and returns the asset directory.
//
// A clean request removes the asset directory and returns an empty path
// without running any other stage. A ROM-only request skips the chroot and
// KernelSU stages but still writes manifest.json, which slim bundles package
// in place of the assets.
func (c *Collector) Run(ctx context.Context, req request.Assets) (string, error) {
	dir := c.ws.Assets()

	if req.Clean {
		slog.Info("cleaning asset directory", "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("%w: %w", ErrAssetFetch, err)
		}
		return "", nil
	}

	slog.Info("collecting assets",
		"codename", req.Codename,
		"base", req.Base,
		"chroot", req.Chroot,
		"rom_only", req.ROMOnly,
		"ksu", req.KSU,
	)

	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("%w: empty %s: %w", ErrAssetFetch, dir, err)
	}
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAssetFetch, err)
	}

	col := &collection{
		req: req,
		dir: dir,
		manifest: Manifest{
			Codename: req.Codename,
			Base:     req.Base,
			Created:  c.now().UTC(),
		},
	}

	stages := []struct {
		name string
		skip bool
		fn   func(ctx context.Context, col *collection) error
	}{
		{"release", false, c.resolveRelease},
		{"rom", false, c.downloadROM},
		{"chroot", req.ROMOnly, c.downloadChroot},
		{"ksu", req.ROMOnly || !req.KSU, c.downloadKSU},
		{"manifest", false, c.writeManifest},
	}

	for _, st := range stages {
		if st.skip {
			continue
		}
		if err := st.fn(ctx, col); err != nil {
			return "", fmt.Errorf("%w: stage %s: %w", ErrAssetFetch, st.name, err)
		}
	}

	slog.Info("assets collected", "dir", dir, "files", len(col.manifest.Files))
	return dir, nil
}

// Resolves the latest ROM release through the vendor client.
func (c *Collector) resolveRelease(ctx context.Context, col *collection) error {
	client, err := c.vendors.New(col.req.Base, c.romOpts)
	if err != nil {
		return err
	}

	identity := client.Identity(col.req.Codename)
	release, err := client.LatestRelease(ctx, identity)
	if err != nil {
		return err
	}

	slog.Info("resolved rom release",
		"vendor", release.Vendor,
		"device", identity,
		"version", release.Version,
	)
	col.release = release
	return nil
}

func (c *Collector) downloadROM(ctx context.Context, col *collection) error {
	r := col.release
	name := r.Filename
	if name == "" {
		name = path.Base(r.URL)
	}

	f, err := c.download(ctx, col, KindROM, r.URL, name)
	if err != nil {
		return err
	}
	f.Version = r.Version
	return nil
}

func (c *Collector) downloadChroot(ctx context.Context, col *collection) error {
	name := fmt.Sprintf("kali-nethunter-rootfs-%s-arm64.tar.xz", col.req.Chroot)
	_, err := c.download(ctx, col, KindChroot, c.chrootBaseURL+"/"+name, name)
	return err
}

// Downloads the KernelSU manager APK of the latest release.
func (c *Collector) downloadKSU(ctx context.Context, col *collection) error {
	var rel githubRelease
	if err := fetch.JSON(ctx, c.client, c.ksuReleaseURL, &rel); err != nil {
		return err
	}

	asset, ok := rel.apk()
	if !ok {
		return errors.New("kernelsu release has no manager apk")
	}

	f, err := c.download(ctx, col, KindKSU, asset.URL, asset.Name)
	if err != nil {
		return err
	}
	f.Version = rel.TagName
	return nil
}

func (c *Collector) writeManifest(ctx context.Context, col *collection) error {
	return col.manifest.Write(filepath.Join(col.dir, ManifestName))
}

// Downloads url into the asset directory and records it in the manifest.
func (c *Collector) download(ctx context.Context, col *collection, kind Kind, url, name string) (*File, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid asset file name %q", name)
	}

	slog.Info(fmt.Sprintf("downloading %s", kind), "url", url)
	d, err := fetch.File(ctx, c.client, url, filepath.Join(col.dir, name), "")
	if err != nil {
		return nil, err
	}

	col.manifest.Files = append(col.manifest.Files, File{
		Kind:   kind,
		Name:   name,
		URL:    url,
		Digest: d.Digest,
		Size:   d.Size,
	})
	return &col.manifest.Files[len(col.manifest.Files)-1], nil
}
