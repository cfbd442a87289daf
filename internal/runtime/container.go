package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/zkb/internal/session"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Observed state of a container.
type ContainerState string

const (
	ContainerNotCreated ContainerState = "not-created"
	ContainerStopped    ContainerState = "stopped"
	ContainerRunning    ContainerState = "running"
)

// Handle for a build container identified by its containerd ID.
type container struct {
	client      *containerd.Client // Containerd client for managing the container.
	id          string             // Containerd container ID, also the snapshot key.
	platform    string             // OCI platform (e.g., "linux/arm64").
	snapshotter string             // Snapshotter holding the container filesystem.
}

func (rt *Runtime) container(id string) *container {
	return &container{
		client:      rt.client,
		id:          id,
		platform:    rt.platform,
		snapshotter: rt.snapshotter,
	}
}

// Creates the container and starts its long-running task.
//
// A stale container with the same ID is removed first. Mounts are bind
// mounted read-write at the same path inside the container.
func (rt *Runtime) Start(ctx context.Context, ref, id string, opts session.Options) error {
	c := rt.container(id)

	state, err := rt.Status(ctx, id)
	if err != nil {
		return err
	}
	if state != ContainerNotCreated {
		slog.Warn("removing stale container", "id", id, "state", state)
		if err := c.destroy(ctx); err != nil {
			return err
		}
	}

	image, err := rt.resolveImage(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", ErrRuntime, ref, err)
	}

	ctr, err := c.create(ctx, image, opts)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrRuntime, id, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return fmt.Errorf("%w: start %s: %w", ErrRuntime, id, err)
	}

	slog.Debug("container started", "id", id, "image", ref)
	return nil
}

// Kills the task and deletes the container with its snapshot.
//
// Removing a missing container is not an error.
func (rt *Runtime) Remove(ctx context.Context, id string) error {
	return rt.container(id).destroy(ctx)
}

// Queries the current state of the container.
func (rt *Runtime) Status(ctx context.Context, id string) (ContainerState, error) {
	ctr, err := rt.client.LoadContainer(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerNotCreated, nil
		}
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ContainerStopped, nil
		}
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return stateOf(status.Status), nil
}

// Maps a task status onto a [ContainerState].
func stateOf(status containerd.ProcessStatus) ContainerState {
	if status == containerd.Running {
		return ContainerRunning
	}
	return ContainerStopped
}

// Creates the containerd container with the build configuration.
func (c *container) create(ctx context.Context, image containerd.Image, opts session.Options) (containerd.Container, error) {
	specOpts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(c.platform),
		oci.WithImageConfig(image),
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostResolvconf,
		oci.WithMounts(bindMounts(opts.Mounts)),
		oci.WithProcessArgs("sleep", "infinity"),
	}
	if len(opts.Env) > 0 {
		specOpts = append(specOpts, oci.WithEnv(opts.Env))
	}
	if opts.Workdir != "" {
		specOpts = append(specOpts, oci.WithProcessCwd(opts.Workdir))
	}
	specOpts = append(specOpts, userOpts(opts.User)...)

	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(c.snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(specOpts...),
	)
}

// Runs container processes as u. Exec processes inherit the identity from
// the container spec.
func userOpts(u *session.User) []oci.SpecOpts {
	if u == nil {
		return nil
	}
	return []oci.SpecOpts{oci.WithUIDGID(uint32(u.UID), uint32(u.GID))}
}

// Starts the container's long-running task with no attached IO.
func (c *container) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Kills any running task and deletes the container along with its snapshot.
func (c *container) destroy(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: load %s: %w", ErrRuntime, c.id, err)
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: delete %s: %w", ErrRuntime, c.id, err)
	}
	return nil
}

// Builds read-write bind mounts placing each host path at the same location.
func bindMounts(paths []string) []specs.Mount {
	mounts := make([]specs.Mount, 0, len(paths))
	for _, p := range paths {
		mounts = append(mounts, specs.Mount{
			Destination: p,
			Source:      p,
			Type:        "bind",
			Options:     []string{"rbind", "rw"},
		})
	}
	return mounts
}
