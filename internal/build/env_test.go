package build

import (
	"slices"
	"testing"
)

func TestNewBuildEnv(t *testing.T) {
	e := newBuildEnv()
	if e.workdir != "" {
		t.Fatalf("workdir = %q, want empty", e.workdir)
	}
	if len(e.env) != 0 || len(e.path) != 0 {
		t.Fatalf("env = %v, path = %v, want empty", e.env, e.path)
	}
}

func TestApply(t *testing.T) {
	e := newBuildEnv()

	e.apply(map[string]string{"ARCH": "arm64", "CC": "gcc"})
	e.apply(map[string]string{"CC": "clang"})

	if e.env["ARCH"] != "arm64" {
		t.Fatalf("env[ARCH] = %q, want arm64 (preserved)", e.env["ARCH"])
	}
	if e.env["CC"] != "clang" {
		t.Fatalf("env[CC] = %q, want clang", e.env["CC"])
	}
}

func TestPrependPath(t *testing.T) {
	e := newBuildEnv()
	e.prependPath("/a")
	e.prependPath("/b")
	e.prependPath("/a")
	e.prependPath("")

	if want := []string{"/b", "/a"}; !slices.Equal(e.path, want) {
		t.Fatalf("path = %v, want %v", e.path, want)
	}
}

func TestEnvironSorted(t *testing.T) {
	e := newBuildEnv()
	if len(e.environ()) != 0 {
		t.Fatal("empty env should produce no environ entries")
	}

	e.apply(map[string]string{"SUBARCH": "arm64", "ARCH": "arm64", "CC": "clang"})
	want := []string{"ARCH=arm64", "CC=clang", "SUBARCH=arm64"}
	if got := e.environ(); !slices.Equal(got, want) {
		t.Fatalf("environ = %v, want %v", got, want)
	}
}

func TestCommand(t *testing.T) {
	e := newBuildEnv()
	e.chdir("/work/kernel")
	e.apply(map[string]string{"ARCH": "arm64"})

	cmd := e.command("make")
	if cmd.Line != "make" {
		t.Errorf("line = %q, want make", cmd.Line)
	}
	if cmd.Dir != "/work/kernel" {
		t.Errorf("dir = %q", cmd.Dir)
	}
	if !slices.Equal(cmd.Env, []string{"ARCH=arm64"}) {
		t.Errorf("env = %v", cmd.Env)
	}

	e.prependPath("/tc/bin")
	e.prependPath("/my tools/bin")
	cmd = e.command("make")
	if want := `export PATH='/my tools/bin':/tc/bin:"$PATH"; make`; cmd.Line != want {
		t.Errorf("line = %q, want %q", cmd.Line, want)
	}
}

func TestCommandPathReachesPipeline(t *testing.T) {
	e := newBuildEnv()
	e.prependPath("/tc/bin")

	cmd := e.command("curl -LSs https://example.com/setup.sh | bash -")
	want := `export PATH=/tc/bin:"$PATH"; curl -LSs https://example.com/setup.sh | bash -`
	if cmd.Line != want {
		t.Errorf("line = %q, want %q", cmd.Line, want)
	}
}
