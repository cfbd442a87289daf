package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/resource"
	"github.com/cruciblehq/zkb/internal/shell"
	"github.com/cruciblehq/zkb/internal/shell/shelltest"
)

type fakeResolver struct {
	root  string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, key request.ResourceKey) (*resource.Resolved, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	dir := filepath.Join(f.root, string(key.Base), key.KernelVersion)
	return &resource.Resolved{
		Key: key,
		Dir: dir,
		Paths: map[string]string{
			resource.NameToolchain: filepath.Join(dir, resource.NameToolchain),
			resource.NameSource:    filepath.Join(dir, resource.NameSource),
		},
	}, nil
}

func (f *fakeResolver) Catalog() *resource.Catalog {
	return resource.DefaultCatalog()
}

var paRequest = request.Build{
	Codename:      "dumpling",
	Base:          request.BasePA,
	KernelVersion: "5.10",
}

type fixture struct {
	ws       paths.Workspace
	resolver *fakeResolver
	rec      *shelltest.Recorder
	builder  *Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		ws:       paths.Workspace{Root: filepath.Join(root, "work")},
		resolver: &fakeResolver{root: filepath.Join(root, "cache")},
		rec:      &shelltest.Recorder{},
	}
	f.builder = New(Options{
		Workspace: f.ws,
		Resources: f.resolver,
		Executor:  f.rec,
		Version:   "1.2.3",
		Jobs:      4,
	})
	return f
}

func (f *fixture) src() string {
	return filepath.Join(f.ws.Kernel(), "source")
}

// Makes the kernel build produce the named images.
func (f *fixture) produces(names ...string) {
	f.rec.On("make -j4 O=out CC=\"$CC\" CLANG_TRIPLE=\"$CLANG_TRIPLE\"", func(cmd shell.Command) (*shell.Result, error) {
		if strings.HasSuffix(cmd.Line, "defconfig") {
			return nil, nil
		}
		boot := filepath.Join(cmd.Dir, outDir, "arch", "arm64", "boot")
		if err := os.MkdirAll(boot, 0o755); err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(boot, name), []byte("kernel"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	f.produces("Image.gz")

	image, err := f.builder.Run(context.Background(), paRequest)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(f.src(), "out", "arch", "arm64", "boot", "Image.gz")
	if image != want {
		t.Errorf("image = %q, want %q", image, want)
	}

	lines := f.rec.Lines()
	if len(lines) != 3 {
		t.Fatalf("commands = %q, want copy, defconfig, make", lines)
	}
	if !strings.HasPrefix(lines[0], "rm -rf ") || !strings.Contains(lines[0], "cp -a ") {
		t.Errorf("first command = %q, want source copy", lines[0])
	}
	if !strings.HasSuffix(lines[1], "gki_defconfig") {
		t.Errorf("second command = %q, want catalog defconfig", lines[1])
	}
	if f.rec.Count("setup.sh") != 0 {
		t.Error("kernelsu applied without request")
	}

	last := f.rec.Commands()[2]
	if last.Dir != f.src() {
		t.Errorf("make dir = %q, want %q", last.Dir, f.src())
	}
	for _, want := range []string{"ARCH=arm64", "SUBARCH=arm64", "CC=clang", "CROSS_COMPILE=aarch64-linux-gnu-", "KVERSION=1.2.3"} {
		if !slices.Contains(last.Env, want) {
			t.Errorf("make env %v missing %s", last.Env, want)
		}
	}
	toolchain := filepath.Join(f.resolver.root, "pa", "5.10", "toolchain", "bin")
	if !strings.HasPrefix(last.Line, "export PATH="+toolchain+`:"$PATH"; `) {
		t.Errorf("make line = %q, want toolchain on PATH", last.Line)
	}
}

func TestRunImagePreference(t *testing.T) {
	f := newFixture(t)
	f.produces("Image", "Image.gz-dtb", "Image.gz")

	image, err := f.builder.Run(context.Background(), paRequest)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if filepath.Base(image) != "Image.gz-dtb" {
		t.Errorf("image = %q, want Image.gz-dtb", image)
	}
}

func TestRunKSU(t *testing.T) {
	f := newFixture(t)
	f.rec.On("setup.sh", func(cmd shell.Command) (*shell.Result, error) {
		return nil, os.MkdirAll(filepath.Join(cmd.Dir, "KernelSU"), 0o755)
	})
	f.produces("Image.gz-dtb")

	req := paRequest
	req.KSU = true
	if _, err := f.builder.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, want := range []string{"setup.sh | bash -", "scripts/config --file out/.config -e KSU", "olddefconfig"} {
		if f.rec.Count(want) != 1 {
			t.Errorf("commands %q missing %q", f.rec.Lines(), want)
		}
	}
}

func TestRunCustomDefconfig(t *testing.T) {
	f := newFixture(t)
	f.produces("Image")

	defconfig := filepath.Join(t.TempDir(), "my_defconfig")
	if err := os.WriteFile(defconfig, []byte("CONFIG_LOCALVERSION=\"-zkb\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	req := paRequest
	req.Defconfig = defconfig
	if _, err := f.builder.Run(context.Background(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	installed := filepath.Join(f.src(), "arch", "arm64", "configs", customDefconfig)
	data, err := os.ReadFile(installed)
	if err != nil {
		t.Fatalf("custom defconfig not installed: %v", err)
	}
	if !strings.Contains(string(data), "-zkb") {
		t.Errorf("installed defconfig = %q", data)
	}
	if f.rec.Count(customDefconfig) != 1 || f.rec.Count("gki_defconfig") != 0 {
		t.Errorf("commands = %q, want custom defconfig only", f.rec.Lines())
	}
}

func TestRunStageFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		req     func(r request.Build) request.Build
		wantErr error
		noMake  bool
	}{
		{
			name: "unreachable resources",
			setup: func(f *fixture) {
				f.resolver.err = fmt.Errorf("%w: pa/5.10: connection refused", resource.ErrResourceFetch)
			},
			wantErr: resource.ErrResourceFetch,
			noMake:  true,
		},
		{
			name:    "source copy fails",
			setup:   func(f *fixture) { f.rec.Fail("cp -a", 1) },
			wantErr: resource.ErrResourceFetch,
			noMake:  true,
		},
		{
			name:    "kernelsu setup fails",
			setup:   func(f *fixture) { f.rec.Fail("setup.sh", 22) },
			req:     func(r request.Build) request.Build { r.KSU = true; return r },
			wantErr: ErrPatchApply,
			noMake:  true,
		},
		{
			name:    "kernelsu sources missing",
			req:     func(r request.Build) request.Build { r.KSU = true; return r },
			wantErr: ErrPatchApply,
			noMake:  true,
		},
		{
			name:    "defconfig fails",
			setup:   func(f *fixture) { f.rec.Fail("gki_defconfig", 2) },
			wantErr: ErrConfigApply,
			noMake:  true,
		},
		{
			name: "missing custom defconfig",
			req: func(r request.Build) request.Build {
				r.Defconfig = "/nonexistent/defconfig"
				return r
			},
			wantErr: ErrConfigApply,
			noMake:  true,
		},
		{
			name:    "no default defconfig",
			req:     func(r request.Build) request.Build { r.KernelVersion = "9.9"; return r },
			wantErr: ErrConfigApply,
			noMake:  true,
		},
		{
			name: "make fails",
			setup: func(f *fixture) {
				f.rec.On("defconfig", func(shell.Command) (*shell.Result, error) { return nil, nil }).Fail("make -j4", 2)
			},
			wantErr: ErrBuildTool,
		},
		{
			name:    "no image produced",
			wantErr: ErrBuildTool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			req := paRequest
			if tt.req != nil {
				req = tt.req(req)
			}

			image, err := f.builder.Run(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if image != "" {
				t.Errorf("image = %q, want empty", image)
			}

			builds := 0
			for _, line := range f.rec.Lines() {
				if strings.Contains(line, "make -j4") && !strings.Contains(line, "defconfig") {
					builds++
				}
			}
			if tt.noMake && builds != 0 {
				t.Errorf("kernel build ran after failed stage: %q", f.rec.Lines())
			}
		})
	}
}

func TestRunClean(t *testing.T) {
	f := newFixture(t)

	req := paRequest
	req.Clean = true
	image, err := f.builder.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if image != "" {
		t.Errorf("image = %q, want empty", image)
	}
	if f.resolver.calls != 0 {
		t.Error("clean resolved resources")
	}

	want := []string{"rm -rf " + shell.Quote(f.ws.Kernel())}
	if got := f.rec.Lines(); !slices.Equal(got, want) {
		t.Errorf("commands = %q, want %q", got, want)
	}
}

func TestRunCleanHost(t *testing.T) {
	root := t.TempDir()
	ws := paths.Workspace{Root: root}
	if err := os.MkdirAll(filepath.Join(ws.Kernel(), "source", "out"), 0o755); err != nil {
		t.Fatal(err)
	}

	b := New(Options{Workspace: ws, Resources: &fakeResolver{}, Executor: &shell.Host{}})
	if _, err := b.Run(context.Background(), request.Build{Clean: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(ws.Kernel()); !os.IsNotExist(err) {
		t.Errorf("kernel workspace still present: %v", err)
	}
}
