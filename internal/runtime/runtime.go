package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/zkb/internal/session"
	"github.com/cruciblehq/zkb/internal/shell"
)

const (

	// Snapshotter used when none is configured.
	DefaultSnapshotter = "overlayfs"

	// Namespace used when none is configured.
	DefaultNamespace = "zkb"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Connection settings for a containerd daemon.
type Config struct {
	Address     string    // Path of the containerd socket.
	Namespace   string    // Namespace scoping every operation. Empty uses [DefaultNamespace].
	Snapshotter string    // Snapshotter for container filesystems. Empty uses [DefaultSnapshotter].
	Shell       string    // Shell interpreting command lines. Empty uses [shell.DefaultShell].
	Stream      io.Writer // Optional writer receiving live exec output.
}

// Session engine backed by a containerd client.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter for container filesystems.
	shell       string             // Shell interpreting command lines.
	stream      io.Writer          // Optional live output writer.
	platform    string             // OCI platform of created containers.
}

// Creates a runtime connected to the containerd socket in cfg.
//
// The runtime must be closed when no longer needed.
func New(cfg Config) (*Runtime, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	client, err := containerd.New(cfg.Address, containerd.WithDefaultNamespace(ns))
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrRuntime, cfg.Address, err)
	}

	rt := &Runtime{
		client:      client,
		snapshotter: cfg.Snapshotter,
		shell:       cfg.Shell,
		stream:      cfg.Stream,
		platform:    defaultPlatform(),
	}
	if rt.snapshotter == "" {
		rt.snapshotter = DefaultSnapshotter
	}
	if rt.shell == "" {
		rt.shell = shell.DefaultShell
	}
	return rt, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Implements [session.Engine].
func (rt *Runtime) Name() string {
	return "containerd"
}

// Imports, pulls or reuses the image and unpacks it for the host platform.
//
// An archive is imported and tagged with image.Ref, or with a tag derived
// from the archive path when no reference is given. Otherwise an image
// already present under image.Ref is reused unless image.Rebuild is set.
func (rt *Runtime) Prepare(ctx context.Context, image session.Image) (string, error) {
	switch {
	case image.Dockerfile != "":
		return "", fmt.Errorf("%w: containerd cannot build %s, use a prebuilt image", ErrUnsupportedSource, image.Dockerfile)
	case image.Archive != "":
		tag := image.Ref
		if tag == "" {
			tag = imageTag(image.Archive)
		}
		if err := rt.importImage(ctx, image.Archive, tag); err != nil {
			return "", err
		}
		return tag, nil
	case image.Ref == "":
		return "", fmt.Errorf("%w: image reference is required", ErrUnsupportedSource)
	}

	if !image.Rebuild {
		if _, err := rt.client.ImageService().Get(ctx, image.Ref); err == nil {
			if err := rt.unpackImage(ctx, image.Ref); err != nil {
				return "", fmt.Errorf("%w: %w", ErrRuntime, err)
			}
			slog.Info("reusing container image", "engine", rt.Name(), "image", image.Ref)
			return image.Ref, nil
		} else if !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %w", ErrRuntime, err)
		}
	}

	slog.Info("pulling container image", "image", image.Ref, "platform", rt.platform)
	_, err := rt.client.Pull(ctx, image.Ref,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
		containerd.WithPlatform(rt.platform),
	)
	if err != nil {
		return "", fmt.Errorf("%w: pull %s: %w", ErrRuntime, image.Ref, err)
	}
	return image.Ref, nil
}

// Removes an image and all containers created from it.
//
// Removing a missing image is not an error.
func (rt *Runtime) RemoveImage(ctx context.Context, ref string) error {
	ctrs, err := rt.client.Containers(ctx, fmt.Sprintf("image==%s", ref))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	for _, ctr := range ctrs {
		if err := rt.container(ctr.ID()).destroy(ctx); err != nil {
			return err
		}
	}

	if err := rt.client.ImageService().Delete(ctx, ref); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("image removed", "image", ref)
	return nil
}

// Imports an OCI archive, tags it, and unpacks it for the host platform.
func (rt *Runtime) importImage(ctx context.Context, path, tag string) error {
	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: import %s: %w", ErrRuntime, path, err)
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return fmt.Errorf("%w: tag %s: %w", ErrRuntime, tag, err)
	}

	if err := rt.unpackImage(ctx, tag); err != nil {
		return fmt.Errorf("%w: unpack %s: %w", ErrRuntime, tag, err)
	}

	slog.Debug("image imported", "archive", path, "tag", tag)
	return nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. A multi-platform image is a
// single record whose index references the per-platform manifests.
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	switch len(imported) {
	case 0:
		return images.Image{}, ErrEmptyArchive
	case 1:
		return imported[0], nil
	default:
		return images.Image{}, ErrMultipleImages
	}
}

// Tags an imported image, replacing the target of an existing tag.
//
// The source record is removed when its name differs from the tag.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Unpacks the image layers for the host platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, tag string) error {
	image, err := rt.resolveImage(ctx, tag)
	if err != nil {
		return err
	}
	return image.Unpack(ctx, rt.snapshotter)
}

// Looks up a tagged image and selects the manifest for the host platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag string) (containerd.Image, error) {
	p, err := platforms.Parse(rt.platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Produces an image tag from an archive path.
//
// The path is hashed so the tag is a valid reference whatever characters the
// path contains.
func imageTag(path string) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("import/%s:latest", hex.EncodeToString(h[:]))
}

// Returns the OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
