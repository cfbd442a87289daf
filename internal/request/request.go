package request

import "fmt"

// Parameters of a single kernel build.
type Build struct {
	Codename      string // Canonical device codename.
	Base          Base   // Kernel source lineage.
	KernelVersion string // Linux kernel version, e.g. "5.10".
	KSU           bool   // Apply the KernelSU patch set.
	Defconfig     string // Optional path to a custom defconfig. Empty selects the base default.
	Clean         bool   // Only remove previous build directories.
}

// Identifies the cached toolchain and source tree required by the build.
func (b Build) ResourceKey() ResourceKey {
	return ResourceKey{Base: b.Base, KernelVersion: b.KernelVersion}
}

// Parameters of a single asset collection.
type Assets struct {
	Codename string // Canonical device codename.
	Base     Base   // Selects the ROM vendor.
	Chroot   Chroot // Flavour of the chroot to download.
	ROMOnly  bool   // Download only the ROM.
	KSU      bool   // Include the KernelSU manager.
	Clean    bool   // Only remove the asset directory.
}

// Uniquely identifies a cached toolchain and kernel source resource.
type ResourceKey struct {
	Base          Base
	KernelVersion string
}

// Returns "<base>/<kernelVersion>".
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s", k.Base, k.KernelVersion)
}

// Result of a successful bundle run.
type BundleArtifact struct {
	KernelImage string      // Path to the built kernel image.
	AssetDir    string      // Path to the collected asset directory.
	PackageType PackageType // Format the bundle was packaged in.
	Path        string      // Path to the packaged bundle.
}
