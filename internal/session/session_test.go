package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cruciblehq/zkb/internal/shell"
)

type fakeEngine struct {
	mu          sync.Mutex
	calls       []string
	prepareErr  error
	startErr    error
	removeErr   error
	exitCode    int
	execErr     error
	lastCommand shell.Command
	startOpts   Options
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Prepare(ctx context.Context, image Image) (string, error) {
	f.record("prepare")
	if f.prepareErr != nil {
		return "", f.prepareErr
	}
	return image.Ref, nil
}

func (f *fakeEngine) Start(ctx context.Context, ref, id string, opts Options) error {
	f.record("start")
	f.startOpts = opts
	return f.startErr
}

func (f *fakeEngine) Exec(ctx context.Context, id string, cmd shell.Command) (*shell.Result, error) {
	f.record("exec")
	f.lastCommand = cmd
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &shell.Result{ExitCode: f.exitCode}, nil
}

func (f *fakeEngine) Remove(ctx context.Context, id string) error {
	f.record("remove")
	return f.removeErr
}

func (f *fakeEngine) RemoveImage(ctx context.Context, ref string) error {
	f.record("rmi")
	return nil
}

var testImage = Image{Ref: "zkb-builder:test"}

func TestSessionLifecycle(t *testing.T) {
	engine := &fakeEngine{}
	s := New(engine)

	if s.State() != StateUninitialized {
		t.Fatalf("initial state = %s", s.State())
	}
	if !strings.HasPrefix(s.ID(), "zkb-") {
		t.Errorf("ID() = %q", s.ID())
	}

	ctx := context.Background()
	if err := s.Start(ctx, testImage, Options{Workdir: "/work", Env: []string{"ARCH=arm64"}}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("state after Start = %s", s.State())
	}

	res, err := s.Exec(ctx, shell.Command{Line: "make", Env: []string{"CC=clang"}})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if engine.lastCommand.Dir != "/work" {
		t.Errorf("dir = %q, want session workdir", engine.lastCommand.Dir)
	}
	if got := strings.Join(engine.lastCommand.Env, ","); got != "ARCH=arm64,CC=clang" {
		t.Errorf("env = %q", got)
	}

	if err := s.Teardown(ctx, true); err != nil {
		t.Fatalf("Teardown() error = %v", err)
	}
	if s.State() != StateTerminated {
		t.Fatalf("state after Teardown = %s", s.State())
	}

	want := "prepare,start,exec,remove,rmi"
	if got := strings.Join(engine.Calls(), ","); got != want {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestFailedExecReturnsToRunning(t *testing.T) {
	engine := &fakeEngine{exitCode: 2}
	s := New(engine)
	ctx := context.Background()

	if err := s.Start(ctx, testImage, Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := s.Exec(ctx, shell.Command{Line: "false"})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", res.ExitCode)
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}

	engine.execErr = errors.New("relay broken")
	if _, err := s.Exec(ctx, shell.Command{Line: "true"}); !errors.Is(err, ErrContainerSession) {
		t.Errorf("Exec() error = %v, want ErrContainerSession", err)
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}
}

func TestExecRequiresRunning(t *testing.T) {
	s := New(&fakeEngine{})
	ctx := context.Background()

	if _, err := s.Exec(ctx, shell.Command{Line: "true"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exec() before Start error = %v, want ErrInvalidState", err)
	}

	if err := s.Start(ctx, testImage, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Teardown(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Exec(ctx, shell.Command{Line: "true"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exec() after Teardown error = %v, want ErrInvalidState", err)
	}
}

func TestStartTwice(t *testing.T) {
	s := New(&fakeEngine{})
	ctx := context.Background()

	if err := s.Start(ctx, testImage, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx, testImage, Options{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start() error = %v, want ErrInvalidState", err)
	}
}

func TestTeardownIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	s := New(engine)
	ctx := context.Background()

	if err := s.Start(ctx, testImage, Options{}); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := s.Teardown(ctx, false); err != nil {
			t.Fatalf("Teardown() error = %v", err)
		}
	}
	if got := strings.Join(engine.Calls(), ","); got != "prepare,start,remove" {
		t.Errorf("calls = %q", got)
	}
}

func TestTeardownFailureStillTerminates(t *testing.T) {
	engine := &fakeEngine{removeErr: errors.New("daemon gone")}
	s := New(engine)
	ctx := context.Background()

	if err := s.Start(ctx, testImage, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Teardown(ctx, false); !errors.Is(err, ErrContainerSession) {
		t.Errorf("Teardown() error = %v, want ErrContainerSession", err)
	}
	if s.State() != StateTerminated {
		t.Errorf("state = %s, want terminated", s.State())
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		engine    *fakeEngine
		fnErr     error
		wantErr   error
		wantCalls string
	}{
		{
			name:      "success",
			engine:    &fakeEngine{},
			wantCalls: "prepare,start,exec,remove",
		},
		{
			name:      "pipeline failure",
			engine:    &fakeEngine{},
			fnErr:     errors.New("build failed"),
			wantCalls: "prepare,start,exec,remove",
		},
		{
			name:      "prepare failure",
			engine:    &fakeEngine{prepareErr: errors.New("no such image")},
			wantErr:   ErrContainerSession,
			wantCalls: "prepare",
		},
		{
			name:      "start failure removes partial container",
			engine:    &fakeEngine{startErr: errors.New("name in use")},
			wantErr:   ErrContainerSession,
			wantCalls: "prepare,start,remove",
		},
		{
			name:      "teardown failure after success",
			engine:    &fakeEngine{removeErr: errors.New("daemon gone")},
			wantErr:   ErrContainerSession,
			wantCalls: "prepare,start,exec,remove",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *Session
			err := Run(context.Background(), tt.engine, testImage, Options{}, false, func(ctx context.Context, s *Session) error {
				seen = s
				if _, err := s.Exec(ctx, shell.Command{Line: "make"}); err != nil {
					return err
				}
				return tt.fnErr
			})

			switch {
			case tt.fnErr != nil:
				if !errors.Is(err, tt.fnErr) {
					t.Errorf("Run() error = %v, want %v", err, tt.fnErr)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
				}
			case err != nil:
				t.Errorf("Run() error = %v", err)
			}

			if got := strings.Join(tt.engine.Calls(), ","); got != tt.wantCalls {
				t.Errorf("calls = %q, want %q", got, tt.wantCalls)
			}
			if seen != nil && seen.State() != StateTerminated {
				t.Errorf("state = %s, want terminated", seen.State())
			}
		})
	}
}

func TestRunPipelineErrorNotMasked(t *testing.T) {
	engine := &fakeEngine{removeErr: errors.New("daemon gone")}
	buildErr := errors.New("build failed")

	err := Run(context.Background(), engine, testImage, Options{}, false, func(ctx context.Context, s *Session) error {
		return buildErr
	})
	if !errors.Is(err, buildErr) {
		t.Errorf("Run() error = %v, want pipeline error", err)
	}
	if errors.Is(err, ErrContainerSession) {
		t.Errorf("Run() error = %v, teardown error must not replace pipeline error", err)
	}
}

func TestRunTearsDownAfterCancel(t *testing.T) {
	engine := &fakeEngine{}
	ctx, cancel := context.WithCancel(context.Background())

	err := Run(ctx, engine, testImage, Options{}, true, func(ctx context.Context, s *Session) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if got := strings.Join(engine.Calls(), ","); got != "prepare,start,remove,rmi" {
		t.Errorf("calls = %q", got)
	}
}

func TestRunTearsDownAfterPanic(t *testing.T) {
	engine := &fakeEngine{}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic not propagated")
			}
		}()
		_ = Run(context.Background(), engine, testImage, Options{}, false, func(ctx context.Context, s *Session) error {
			panic("boom")
		})
	}()

	if got := strings.Join(engine.Calls(), ","); got != "prepare,start,remove" {
		t.Errorf("calls = %q", got)
	}
}
