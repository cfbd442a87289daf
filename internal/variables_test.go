package internal

import (
	"strings"
	"testing"
)

func TestVersionStripsPrefix(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = " V1.4.2 "
	if got := Version(); got != "1.4.2" {
		t.Fatalf("Version() = %q, want %q", got, "1.4.2")
	}

	version = ""
	if got := Version(); got != defaultUndefined {
		t.Fatalf("Version() = %q, want %q", got, defaultUndefined)
	}
}

func TestVersionString(t *testing.T) {
	oldV, oldS, oldC := version, stage, gitCommit
	t.Cleanup(func() { version, stage, gitCommit = oldV, oldS, oldC })

	version, stage, gitCommit = "", "", ""
	if got := VersionString(); got != defaultLocalBuild {
		t.Fatalf("VersionString() = %q, want %q", got, defaultLocalBuild)
	}

	version, stage, gitCommit = "2.0.0", "main", "abc123"
	if got := VersionString(); !strings.HasPrefix(got, "2.0.0 abc123 [") {
		t.Fatalf("VersionString() = %q", got)
	}

	stage = "staging"
	if got := VersionString(); !strings.HasPrefix(got, "2.0.0+staging abc123") {
		t.Fatalf("VersionString() = %q", got)
	}
}

func TestExportVersion(t *testing.T) {
	t.Setenv(VersionEnv, "")

	old := version
	t.Cleanup(func() { version = old })
	version = "v3.1.0"

	if got := ExportVersion(); got != "3.1.0" {
		t.Fatalf("ExportVersion() = %q, want %q", got, "3.1.0")
	}

	t.Setenv(VersionEnv, "9.9.9")
	if got := ExportVersion(); got != "9.9.9" {
		t.Fatalf("ExportVersion() = %q, want preset value", got)
	}
}
