package resource

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/cruciblehq/zkb/internal/request"
	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// Names of the resources every build needs.
const (
	NameToolchain = "toolchain"
	NameSource    = "source"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// How a resource is obtained.
type Kind string

const (
	KindGit     Kind = "git"     // Shallow clone of a repository at a ref.
	KindArchive Kind = "archive" // Tarball downloaded over HTTP and extracted.
)

// Canonical source of a single resource.
type Entry struct {
	Name   string        `yaml:"-"`                // Resource name, unique within a key.
	Kind   Kind          `yaml:"kind"`             // Fetch method.
	URL    string        `yaml:"url"`              // Repository or archive URL.
	Ref    string        `yaml:"ref,omitempty"`    // Branch or tag for git resources.
	Digest digest.Digest `yaml:"digest,omitempty"` // Expected archive digest. Empty skips verification.
	Strip  int           `yaml:"strip,omitempty"`  // Leading path components removed on extraction.
}

type kernelEntry struct {
	Base      request.Base `yaml:"base"`
	Version   string       `yaml:"version"`
	Defconfig string       `yaml:"defconfig,omitempty"`
	Source    Entry        `yaml:"source"`
	Toolchain *Entry       `yaml:"toolchain,omitempty"`
}

type catalogFile struct {
	Toolchain Entry         `yaml:"toolchain"`
	Kernels   []kernelEntry `yaml:"kernels"`
}

// Maps resource keys to their canonical sources.
type Catalog struct {
	entries    map[request.ResourceKey][]Entry
	defconfigs map[request.ResourceKey]string
}

// Returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("resource: embedded catalog: %v", err))
	}
	return c
}

// Loads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	return ParseCatalog(data)
}

// Parses a catalog document.
//
// Kernels without an explicit toolchain inherit the top-level one.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	c := &Catalog{
		entries:    make(map[request.ResourceKey][]Entry, len(f.Kernels)),
		defconfigs: make(map[request.ResourceKey]string, len(f.Kernels)),
	}

	for i, k := range f.Kernels {
		if _, err := request.ParseBase(string(k.Base)); err != nil {
			return nil, fmt.Errorf("%w: kernel %d: %w", ErrCatalog, i+1, err)
		}
		key := request.ResourceKey{Base: k.Base, KernelVersion: k.Version}
		if _, dup := c.entries[key]; dup {
			return nil, fmt.Errorf("%w: duplicate kernel %s", ErrCatalog, key)
		}

		toolchain := f.Toolchain
		if k.Toolchain != nil {
			toolchain = *k.Toolchain
		}
		toolchain.Name = NameToolchain
		source := k.Source
		source.Name = NameSource

		for _, e := range []Entry{toolchain, source} {
			if err := e.validate(); err != nil {
				return nil, fmt.Errorf("%w: kernel %s: %w", ErrCatalog, key, err)
			}
		}

		c.entries[key] = []Entry{toolchain, source}
		c.defconfigs[key] = k.Defconfig
	}

	return c, nil
}

// Returns the entries for key.
func (c *Catalog) Lookup(key request.ResourceKey) ([]Entry, bool) {
	entries, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]Entry(nil), entries...), true
}

// Returns the default defconfig name for key, or "" if none is declared.
func (c *Catalog) Defconfig(key request.ResourceKey) string {
	return c.defconfigs[key]
}

func (e Entry) validate() error {
	if e.URL == "" {
		return fmt.Errorf("%s: url is required", e.Name)
	}
	switch e.Kind {
	case KindGit:
		if e.Ref == "" {
			return fmt.Errorf("%s: git resources require a ref", e.Name)
		}
	case KindArchive:
		if e.Digest != "" {
			if err := e.Digest.Validate(); err != nil {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
		}
	default:
		return fmt.Errorf("%s: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}
