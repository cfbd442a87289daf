package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/zkb/internal/shell"
)

// Container CLIs sharing the docker command surface.
const (
	Docker = "docker"
	Podman = "podman"
)

// Runs a container CLI binary with arguments.
//
// A non-zero exit code is reported in the result, not as an error.
type Runner interface {
	Run(ctx context.Context, stream io.Writer, binary string, args ...string) (*shell.Result, error)
}

// Engine relaying every operation to a docker-compatible CLI.
type CLI struct {
	Binary string    // CLI binary, [Docker] or [Podman].
	Stream io.Writer // Optional writer receiving live build and exec output.
	Runner Runner    // Process runner. Nil uses os/exec.
}

// Creates a CLI engine for binary.
func NewCLI(binary string) *CLI {
	return &CLI{Binary: binary}
}

// Implements [Engine].
func (c *CLI) Name() string {
	return c.Binary
}

// Builds, pulls or reuses the image.
//
// An image already present under image.Ref is reused unless image.Rebuild is
// set. With a Dockerfile the image is built and tagged; otherwise it is pulled.
func (c *CLI) Prepare(ctx context.Context, image Image) (string, error) {
	if image.Ref == "" {
		return "", errors.New("image reference is required")
	}
	if image.Archive != "" {
		return "", fmt.Errorf("%s engine cannot import OCI archives", c.Binary)
	}

	if !image.Rebuild {
		res, err := c.run(ctx, nil, "image", "inspect", image.Ref)
		if err != nil {
			return "", err
		}
		if res.ExitCode == 0 {
			slog.Info("reusing container image", "engine", c.Binary, "image", image.Ref)
			return image.Ref, nil
		}
	}

	if image.Dockerfile == "" {
		if err := c.check(ctx, c.Stream, "pull", image.Ref); err != nil {
			return "", err
		}
		return image.Ref, nil
	}

	buildCtx := image.Context
	if buildCtx == "" {
		buildCtx = filepath.Dir(image.Dockerfile)
	}
	if err := c.check(ctx, c.Stream, "build", "-t", image.Ref, "-f", image.Dockerfile, buildCtx); err != nil {
		return "", err
	}
	return image.Ref, nil
}

// Starts a detached container that idles until removed.
//
// With a user set, docker runs the container as that uid and gid while
// podman maps the caller into the container with keep-id.
func (c *CLI) Start(ctx context.Context, ref, id string, opts Options) error {
	args := []string{"run", "-d", "--name", id}
	if opts.User != nil {
		if c.Binary == Podman {
			args = append(args, "--userns=keep-id")
		} else {
			args = append(args, "--user", opts.User.String())
		}
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", m+":"+m)
	}
	if opts.Workdir != "" {
		args = append(args, "-w", opts.Workdir)
	}
	for _, e := range opts.Env {
		args = append(args, "-e", e)
	}
	args = append(args, ref, "sleep", "infinity")

	return c.check(ctx, nil, args...)
}

// Runs cmd through "sh -c" inside the container.
func (c *CLI) Exec(ctx context.Context, id string, cmd shell.Command) (*shell.Result, error) {
	args := []string{"exec"}
	if cmd.Dir != "" {
		args = append(args, "-w", cmd.Dir)
	}
	for _, e := range cmd.Env {
		args = append(args, "-e", e)
	}
	args = append(args, id, "sh", "-c", cmd.Line)

	return c.run(ctx, c.Stream, args...)
}

// Force-removes the container.
func (c *CLI) Remove(ctx context.Context, id string) error {
	res, err := c.run(ctx, nil, "rm", "-f", id)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !notFound(res.Stderr) {
		return fmt.Errorf("%s rm: exit code %d: %s", c.Binary, res.ExitCode, shell.Tail(res.Stderr, 5))
	}
	return nil
}

// Removes the image.
func (c *CLI) RemoveImage(ctx context.Context, ref string) error {
	res, err := c.run(ctx, nil, "rmi", ref)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !notFound(res.Stderr) {
		return fmt.Errorf("%s rmi: exit code %d: %s", c.Binary, res.ExitCode, shell.Tail(res.Stderr, 5))
	}
	return nil
}

func (c *CLI) run(ctx context.Context, stream io.Writer, args ...string) (*shell.Result, error) {
	runner := c.Runner
	if runner == nil {
		runner = execRunner{}
	}
	slog.Debug("running container cli", "binary", c.Binary, "args", strings.Join(args, " "))
	return runner.Run(ctx, stream, c.Binary, args...)
}

func (c *CLI) check(ctx context.Context, stream io.Writer, args ...string) error {
	res, err := c.run(ctx, stream, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s %s: exit code %d: %s", c.Binary, args[0], res.ExitCode, shell.Tail(res.Stderr, 10))
	}
	return nil
}

func notFound(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such") || strings.Contains(s, "not found") || strings.Contains(s, "not known")
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stream io.Writer, binary string, args ...string) (*shell.Result, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, stream)
		cmd.Stderr = io.MultiWriter(&stderr, stream)
	}

	err := cmd.Run()
	res := &shell.Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%s: %w", binary, err)
	}
}
