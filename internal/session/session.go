package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cruciblehq/zkb/internal/shell"
	"github.com/google/uuid"
)

// Upper bound on teardown after the caller's context is gone.
const teardownTimeout = 2 * time.Minute

// Lifecycle state of a [Session].
type State int

const (
	StateUninitialized State = iota
	StateImageReady
	StateRunning
	StateExecuting
	StateTerminated
)

// Returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateImageReady:
		return "image-ready"
	case StateRunning:
		return "running"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Describes the image a session runs.
type Image struct {
	Ref        string // Image reference. Built images are tagged with it.
	Dockerfile string // Dockerfile to build from. Empty pulls or reuses Ref.
	Context    string // Build context directory for Dockerfile.
	Archive    string // OCI archive to import instead of pulling (containerd only).
	Rebuild    bool   // Build or pull even if Ref already exists.
}

// Configures the running container.
type Options struct {
	Env     []string // "KEY=value" entries applied to every command.
	Mounts  []string // Host directories bind mounted at the same path.
	Workdir string   // Default working directory of commands.
	User    *User    // Identity of container processes. Nil keeps the image default.
}

// Numeric identity container processes run as.
//
// Files written to bind mounts are owned by this identity, so it normally
// matches the host user that reads and removes them afterwards.
type User struct {
	UID int
	GID int
}

// Returns "uid:gid".
func (u User) String() string {
	return fmt.Sprintf("%d:%d", u.UID, u.GID)
}

// Returns the identity of the calling process, or nil when it is root.
func CurrentUser() *User {
	uid := os.Getuid()
	if uid <= 0 {
		return nil
	}
	return &User{UID: uid, GID: os.Getgid()}
}

// Container engine driven by a session.
//
// Implementations must treat Remove of a missing container and RemoveImage
// of a missing image as success.
type Engine interface {
	Name() string
	Prepare(ctx context.Context, image Image) (ref string, err error)
	Start(ctx context.Context, ref, id string, opts Options) error
	Exec(ctx context.Context, id string, cmd shell.Command) (*shell.Result, error)
	Remove(ctx context.Context, id string) error
	RemoveImage(ctx context.Context, ref string) error
}

// A container owned by a single pipeline invocation.
//
// A Session is never shared between invocations; Exec calls are serialized.
type Session struct {
	engine Engine
	id     string
	ref    string
	opts   Options

	mu    sync.Mutex
	state State
}

// Creates an uninitialized session with a unique container name.
func New(engine Engine) *Session {
	return &Session{
		engine: engine,
		id:     "zkb-" + uuid.NewString(),
	}
}

// Container name used with the engine.
func (s *Session) ID() string {
	return s.id
}

// Current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Prepares the image and starts the container.
func (s *Session) Start(ctx context.Context, image Image, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.state)
	}

	slog.Info("preparing container image", "engine", s.engine.Name(), "image", image.Ref)
	ref, err := s.engine.Prepare(ctx, image)
	if err != nil {
		return fmt.Errorf("%w: prepare image %s: %w", ErrContainerSession, image.Ref, err)
	}
	s.ref = ref
	s.opts = opts
	s.state = StateImageReady

	if err := s.engine.Start(ctx, ref, s.id, opts); err != nil {
		return fmt.Errorf("%w: start container %s: %w", ErrContainerSession, s.id, err)
	}
	s.state = StateRunning

	slog.Info("container started", "engine", s.engine.Name(), "id", s.id, "image", ref)
	return nil
}

// Runs cmd inside the container and blocks until it exits.
//
// Implements [shell.Executor]. The session returns to Running whether the
// command succeeds or not.
func (s *Session) Exec(ctx context.Context, cmd shell.Command) (*shell.Result, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: exec from %s", ErrInvalidState, state)
	}
	s.state = StateExecuting
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateExecuting {
			s.state = StateRunning
		}
		s.mu.Unlock()
	}()

	cmd.Env = shell.MergeEnv(s.opts.Env, cmd.Env)
	if cmd.Dir == "" {
		cmd.Dir = s.opts.Workdir
	}

	slog.Debug("relaying command", "id", s.id, "command", cmd.Line, "dir", cmd.Dir)
	res, err := s.engine.Exec(ctx, s.id, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: exec in %s: %w", ErrContainerSession, s.id, err)
	}
	return res, nil
}

// Removes the container and, if cleanImage is set, its image.
//
// The session always ends Terminated, even when removal fails. Tearing down
// a terminated session is a no-op.
func (s *Session) Teardown(ctx context.Context, cleanImage bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	if prev == StateTerminated {
		return nil
	}
	s.state = StateTerminated

	var errs []error
	if prev != StateUninitialized {
		if err := s.engine.Remove(ctx, s.id); err != nil {
			errs = append(errs, fmt.Errorf("remove container %s: %w", s.id, err))
		}
	}
	if cleanImage && s.ref != "" {
		if err := s.engine.RemoveImage(ctx, s.ref); err != nil {
			errs = append(errs, fmt.Errorf("remove image %s: %w", s.ref, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: teardown: %w", ErrContainerSession, errors.Join(errs...))
	}

	slog.Debug("container session terminated", "id", s.id, "clean_image", cleanImage)
	return nil
}

// Starts a session, runs fn against it, and tears it down.
//
// Teardown runs on every exit path with a context detached from ctx, so an
// interrupt that cancels ctx still removes the container. A teardown failure
// is logged; it is returned only if fn succeeded, never in place of fn's error.
func Run(ctx context.Context, engine Engine, image Image, opts Options, cleanImage bool, fn func(ctx context.Context, s *Session) error) (err error) {
	s := New(engine)

	defer func() {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		if terr := s.Teardown(tctx, cleanImage); terr != nil {
			slog.Warn("container teardown failed", "id", s.id, "error", terr)
			if err == nil {
				err = terr
			}
		}
	}()

	if err := s.Start(ctx, image, opts); err != nil {
		return err
	}
	return fn(ctx, s)
}
