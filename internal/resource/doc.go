// Package resource resolves and caches the toolchain and kernel source a
// build needs.
//
// Resources are keyed by (kernel base, kernel version). The [Catalog] maps a
// key to its canonical sources: git repositories cloned through a
// [shell.Executor], or archives downloaded over HTTP and verified against an
// optional digest. Each fetched resource is stored under a deterministic
// directory derived from the key, next to a stamp file holding an OCI
// descriptor of what was fetched. A resource whose stamp is missing, corrupt,
// or stale is fetched again; a valid one is never re-fetched.
//
// Within one [Manager] a key is resolved at most once. Independent processes
// resolving the same key race on the cache directory unless a [FileLocker]
// is installed.
//
// Example usage:
//
//	mgr := resource.New(resource.Options{
//	    Root:     paths.Resources(),
//	    Catalog:  catalog,
//	    Executor: &shell.Host{},
//	})
//
//	res, err := mgr.Resolve(ctx, request.ResourceKey{Base: request.BasePA, KernelVersion: "5.10"})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Source(), res.Toolchain())
package resource
