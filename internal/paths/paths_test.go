package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestWorkspaceLayout(t *testing.T) {
	w := Workspace{Root: "/work"}

	tests := map[string]string{
		w.Kernel(): "/work/kernel",
		w.Assets(): "/work/assets",
		w.Bundle(): "/work/bundle",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	if len(w.All()) != 3 {
		t.Fatalf("All() = %v, want 3 entries", w.All())
	}
}

func TestResourcesUnderAppDir(t *testing.T) {
	p := Resources()
	if filepath.Base(p) != "resources" {
		t.Fatalf("Resources() = %q, want */resources", p)
	}
	if !strings.Contains(p, appName) {
		t.Fatalf("Resources() = %q, missing %q", p, appName)
	}
}
