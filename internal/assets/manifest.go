package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cruciblehq/zkb/internal/paths"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/opencontainers/go-digest"
)

// Role of a collected file.
type Kind string

const (
	KindROM    Kind = "rom"
	KindChroot Kind = "chroot"
	KindKSU    Kind = "ksu-manager"
)

// Describes the contents of an asset directory.
type Manifest struct {
	Codename string       `json:"codename"`
	Base     request.Base `json:"base"`
	Created  time.Time    `json:"created"`
	Files    []File       `json:"files"`
}

// A collected file.
type File struct {
	Kind    Kind          `json:"kind"`
	Name    string        `json:"name"`              // File name within the asset directory.
	URL     string        `json:"url"`               // Download location.
	Version string        `json:"version,omitempty"` // Release version, when known.
	Digest  digest.Digest `json:"digest"`            // Digest of the downloaded content.
	Size    int64         `json:"size"`
}

// Returns the first file of the given kind.
func (m *Manifest) File(kind Kind) (File, bool) {
	for _, f := range m.Files {
		if f.Kind == kind {
			return f, true
		}
	}
	return File{}, false
}

// Writes the manifest as indented JSON.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), paths.DefaultFileMode)
}

// Reads a manifest written by [Manifest.Write].
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &m, nil
}

// Subset of a GitHub release used to locate the KernelSU manager.
type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

func (r githubRelease) apk() (githubAsset, bool) {
	for _, a := range r.Assets {
		if strings.HasSuffix(a.Name, ".apk") && a.URL != "" {
			return a, true
		}
	}
	return githubAsset{}, false
}
