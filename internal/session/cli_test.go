package session

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/zkb/internal/shell"
)

type scriptedRunner struct {
	calls []string
	exits map[string]int
	err   map[string]string
}

func (r *scriptedRunner) Run(ctx context.Context, stream io.Writer, binary string, args ...string) (*shell.Result, error) {
	line := binary + " " + strings.Join(args, " ")
	r.calls = append(r.calls, line)
	for prefix, code := range r.exits {
		if strings.HasPrefix(line, prefix) {
			return &shell.Result{ExitCode: code, Stderr: r.err[prefix]}, nil
		}
	}
	return &shell.Result{}, nil
}

func TestCLIPrepare(t *testing.T) {
	tests := []struct {
		name  string
		image Image
		exits map[string]int
		want  []string
	}{
		{
			name:  "reuse existing image",
			image: Image{Ref: "zkb:1", Dockerfile: "/ctx/Dockerfile"},
			want:  []string{"docker image inspect zkb:1"},
		},
		{
			name:  "build missing image",
			image: Image{Ref: "zkb:1", Dockerfile: "/ctx/Dockerfile"},
			exits: map[string]int{"docker image inspect": 1},
			want: []string{
				"docker image inspect zkb:1",
				"docker build -t zkb:1 -f /ctx/Dockerfile /ctx",
			},
		},
		{
			name:  "rebuild skips inspect",
			image: Image{Ref: "zkb:1", Dockerfile: "/ctx/Dockerfile", Context: "/other", Rebuild: true},
			want:  []string{"docker build -t zkb:1 -f /ctx/Dockerfile /other"},
		},
		{
			name:  "pull missing image",
			image: Image{Ref: "debian:bookworm"},
			exits: map[string]int{"docker image inspect": 1},
			want: []string{
				"docker image inspect debian:bookworm",
				"docker pull debian:bookworm",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{exits: tt.exits}
			engine := &CLI{Binary: Docker, Runner: runner}

			ref, err := engine.Prepare(context.Background(), tt.image)
			if err != nil {
				t.Fatalf("Prepare() error = %v", err)
			}
			if ref != tt.image.Ref {
				t.Errorf("ref = %q", ref)
			}
			if strings.Join(runner.calls, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("calls = %q, want %q", runner.calls, tt.want)
			}
		})
	}
}

func TestCLIPrepareErrors(t *testing.T) {
	ctx := context.Background()

	engine := &CLI{Binary: Podman, Runner: &scriptedRunner{}}
	if _, err := engine.Prepare(ctx, Image{}); err == nil {
		t.Error("expected error for empty reference")
	}
	if _, err := engine.Prepare(ctx, Image{Ref: "x", Archive: "/x.tar"}); err == nil {
		t.Error("expected error for archive import")
	}

	engine.Runner = &scriptedRunner{exits: map[string]int{"podman image inspect": 1, "podman build": 1}}
	if _, err := engine.Prepare(ctx, Image{Ref: "x", Dockerfile: "/ctx/Dockerfile"}); err == nil {
		t.Error("expected error for failed build")
	}
}

func TestCLIStartAndExec(t *testing.T) {
	runner := &scriptedRunner{exits: map[string]int{"podman exec": 3}}
	engine := &CLI{Binary: Podman, Runner: runner}
	ctx := context.Background()

	opts := Options{Mounts: []string{"/work"}, Workdir: "/work", Env: []string{"A=1"}}
	if err := engine.Start(ctx, "zkb:1", "zkb-abc", opts); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	res, err := engine.Exec(ctx, "zkb-abc", shell.Command{Line: "make -j4", Dir: "/work/src", Env: []string{"B=2"}})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}

	want := []string{
		"podman run -d --name zkb-abc -v /work:/work -w /work -e A=1 zkb:1 sleep infinity",
		"podman exec -w /work/src -e B=2 zkb-abc sh -c make -j4",
	}
	if strings.Join(runner.calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls = %q, want %q", runner.calls, want)
	}
}

func TestCLIStartUser(t *testing.T) {
	user := &User{UID: 1000, GID: 1001}

	tests := []struct {
		binary string
		want   string
	}{
		{Docker, "docker run -d --name zkb-abc --user 1000:1001 -v /work:/work zkb:1 sleep infinity"},
		{Podman, "podman run -d --name zkb-abc --userns=keep-id -v /work:/work zkb:1 sleep infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.binary, func(t *testing.T) {
			runner := &scriptedRunner{}
			engine := &CLI{Binary: tt.binary, Runner: runner}

			err := engine.Start(context.Background(), "zkb:1", "zkb-abc", Options{Mounts: []string{"/work"}, User: user})
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if len(runner.calls) != 1 || runner.calls[0] != tt.want {
				t.Errorf("calls = %q, want %q", runner.calls, tt.want)
			}
		})
	}
}

func TestCurrentUser(t *testing.T) {
	u := CurrentUser()
	if os.Getuid() == 0 {
		if u != nil {
			t.Errorf("CurrentUser() = %v, want nil for root", u)
		}
		return
	}
	if u == nil || u.UID != os.Getuid() || u.GID != os.Getgid() {
		t.Errorf("CurrentUser() = %v", u)
	}
}

func TestCLIRemoveMissing(t *testing.T) {
	runner := &scriptedRunner{
		exits: map[string]int{"docker rm -f": 1, "docker rmi": 1},
		err: map[string]string{
			"docker rm -f": "Error: No such container: zkb-abc",
			"docker rmi":   "Error: No such image: zkb:1",
		},
	}
	engine := &CLI{Binary: Docker, Runner: runner}
	ctx := context.Background()

	if err := engine.Remove(ctx, "zkb-abc"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := engine.RemoveImage(ctx, "zkb:1"); err != nil {
		t.Errorf("RemoveImage() error = %v", err)
	}
}

func TestCLIRemoveFailure(t *testing.T) {
	runner := &scriptedRunner{
		exits: map[string]int{"docker rm": 1},
		err:   map[string]string{"docker rm": "permission denied"},
	}
	engine := &CLI{Binary: Docker, Runner: runner}

	if err := engine.Remove(context.Background(), "zkb-abc"); err == nil {
		t.Error("expected error")
	}
}

func TestDefaultImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "image")

	image, err := DefaultImage(dir)
	if err != nil {
		t.Fatalf("DefaultImage() error = %v", err)
	}
	if image.Ref != DefaultImageRef || image.Context != dir {
		t.Errorf("image = %+v", image)
	}

	data, err := os.ReadFile(image.Dockerfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "FROM ") {
		t.Errorf("Dockerfile does not start with FROM: %q", string(data[:20]))
	}
}
