package resource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cruciblehq/zkb/internal/fetch"
	"github.com/cruciblehq/zkb/internal/request"
	"github.com/cruciblehq/zkb/internal/shell"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// Suffix of the stamp file written next to each resource directory.
const stampSuffix = ".stamp.json"

// Controls a [Manager].
type Options struct {
	Root     string         // Cache root. Resources live under Root/<base>/<kernelVersion>.
	Catalog  *Catalog       // Canonical sources. Nil uses [DefaultCatalog].
	Executor shell.Executor // Runs git. Nil uses a [shell.Host].
	Client   *http.Client   // Downloads archives. Nil uses http.DefaultClient.
	Locker   Locker         // Cross-process exclusion. Nil uses [NopLocker].
}

// Paths of the resources resolved for a key.
type Resolved struct {
	Key   request.ResourceKey // Key the resources were resolved for.
	Dir   string              // Cache directory of the key.
	Paths map[string]string   // Resource name to directory.
}

// Directory of the extracted toolchain.
func (r *Resolved) Toolchain() string {
	return r.Paths[NameToolchain]
}

// Directory of the kernel source tree.
func (r *Resolved) Source() string {
	return r.Paths[NameSource]
}

// Resolves and caches build resources.
//
// A Manager is safe for concurrent use. Each key is resolved at most once per
// Manager; later calls return the memoized result.
type Manager struct {
	root     string
	catalog  *Catalog
	executor shell.Executor
	client   *http.Client
	locker   Locker

	group    singleflight.Group
	mu       sync.Mutex
	resolved map[request.ResourceKey]*Resolved
	fetches  atomic.Int64
}

// Creates a manager from opts.
func New(opts Options) *Manager {
	m := &Manager{
		root:     opts.Root,
		catalog:  opts.Catalog,
		executor: opts.Executor,
		client:   opts.Client,
		locker:   opts.Locker,
		resolved: make(map[request.ResourceKey]*Resolved),
	}
	if m.catalog == nil {
		m.catalog = DefaultCatalog()
	}
	if m.executor == nil {
		m.executor = &shell.Host{}
	}
	if m.locker == nil {
		m.locker = NopLocker{}
	}
	return m
}

// Returns the catalog the manager resolves against.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Returns the deterministic cache directory for key.
func (m *Manager) Dir(key request.ResourceKey) string {
	return filepath.Join(m.root, string(key.Base), key.KernelVersion)
}

// Number of resources fetched from their canonical source so far.
func (m *Manager) Fetches() int64 {
	return m.fetches.Load()
}

// Resolves the resources for key.
//
// Cached resources that pass the integrity check are returned as is. Missing
// or invalid ones are fetched from their canonical source. Any failure is
// reported as [ErrResourceFetch].
func (m *Manager) Resolve(ctx context.Context, key request.ResourceKey) (*Resolved, error) {
	m.mu.Lock()
	if r, ok := m.resolved[key]; ok {
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key.String(), func() (any, error) {
		r, err := m.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.resolved[key] = r
		m.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resolved), nil
}

func (m *Manager) resolve(ctx context.Context, key request.ResourceKey) (*Resolved, error) {
	entries, ok := m.catalog.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no canonical source", ErrResourceFetch, key)
	}

	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: lock: %w", ErrResourceFetch, key, err)
	}
	defer unlock()

	dir := m.Dir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceFetch, key, err)
	}

	res := &Resolved{Key: key, Dir: dir, Paths: make(map[string]string, len(entries))}
	for _, e := range entries {
		target := filepath.Join(dir, e.Name)
		res.Paths[e.Name] = target

		if m.valid(e, target) {
			slog.Debug("resource cached", "key", key.String(), "resource", e.Name, "path", target)
			continue
		}

		slog.Info("fetching resource", "key", key.String(), "resource", e.Name, "url", e.URL)
		if err := m.fetch(ctx, e, target); err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %w", ErrResourceFetch, key, e.Name, err)
		}
		m.fetches.Add(1)
	}

	return res, nil
}

// Reports whether the cached copy of e at target passes the integrity check.
func (m *Manager) valid(e Entry, target string) bool {
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return false
	}
	desc, err := readStamp(target + stampSuffix)
	if err != nil {
		slog.Warn("discarding unreadable resource stamp", "path", target+stampSuffix, "error", err)
		return false
	}
	return e.matches(desc)
}

// Fetches e into target, replacing whatever is there.
func (m *Manager) fetch(ctx context.Context, e Entry, target string) error {
	stamp := target + stampSuffix
	os.Remove(stamp)
	if err := os.RemoveAll(target); err != nil {
		return err
	}

	switch e.Kind {
	case KindGit:
		return m.fetchGit(ctx, e, target)
	case KindArchive:
		return m.fetchArchive(ctx, e, target)
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
}

func (m *Manager) fetchGit(ctx context.Context, e Entry, target string) error {
	clone := fmt.Sprintf("git clone --depth 1 --branch %s %s %s",
		shell.Quote(e.Ref), shell.Quote(e.URL), shell.Quote(target))
	if _, err := shell.Run(ctx, m.executor, "git clone", shell.Command{Line: clone}); err != nil {
		return err
	}

	res, err := shell.Run(ctx, m.executor, "git rev-parse", shell.Command{Line: "git rev-parse HEAD", Dir: target})
	if err != nil {
		return err
	}
	revision := strings.TrimSpace(res.Stdout)

	d := digest.FromString(e.URL + "@" + e.Ref + "#" + revision)
	return writeStamp(target+stampSuffix, newStamp(e, d, 0, revision))
}

func (m *Manager) fetchArchive(ctx context.Context, e Entry, target string) error {
	name := path.Base(e.URL)
	download := target + ".download"
	defer os.Remove(download)

	dl, err := fetch.File(ctx, m.client, e.URL, download, e.Digest)
	if err != nil {
		return err
	}

	if err := extract(dl.Path, name, target, e.Strip); err != nil {
		os.RemoveAll(target)
		return fmt.Errorf("extract %s: %w", name, err)
	}

	return writeStamp(target+stampSuffix, newStamp(e, dl.Digest, dl.Size, ""))
}
