package request

import (
	"errors"
	"fmt"
	"strings"
)

// Returned when an enumeration value cannot be parsed.
var ErrUnknownValue = errors.New("unknown value")

// Upstream lineage of the Android kernel source.
type Base string

const (
	BaseLOS  Base = "los"  // LineageOS-derived.
	BasePA   Base = "pa"   // ParanoidAndroid-derived.
	BaseX    Base = "x"    // Generic base.
	BaseAOSP Base = "aosp" // Android Open Source Project.
)

// All supported kernel bases.
var Bases = []Base{BaseLOS, BasePA, BaseX, BaseAOSP}

// Parses a kernel base, case insensitively.
func ParseBase(s string) (Base, error) {
	return parseEnum(s, Bases, "kernel base")
}

// Implements encoding.TextUnmarshaler.
func (b *Base) UnmarshalText(text []byte) error {
	v, err := ParseBase(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Flavour of the Kali NetHunter chroot bundled as an asset.
type Chroot string

const (
	ChrootFull    Chroot = "full"
	ChrootMinimal Chroot = "minimal"
)

// All supported chroot kinds.
var Chroots = []Chroot{ChrootFull, ChrootMinimal}

// Parses a chroot kind.
func ParseChroot(s string) (Chroot, error) {
	return parseEnum(s, Chroots, "chroot kind")
}

// Implements encoding.TextUnmarshaler.
func (c *Chroot) UnmarshalText(text []byte) error {
	v, err := ParseChroot(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Packaging format of a bundle.
type PackageType string

const (
	PackageConan PackageType = "conan"
	PackageSlim  PackageType = "slim"
	PackageFull  PackageType = "full"
)

// All supported package types.
var PackageTypes = []PackageType{PackageConan, PackageSlim, PackageFull}

// Parses a package type.
func ParsePackageType(s string) (PackageType, error) {
	return parseEnum(s, PackageTypes, "package type")
}

// Implements encoding.TextUnmarshaler.
func (p *PackageType) UnmarshalText(text []byte) error {
	v, err := ParsePackageType(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Where pipeline commands are executed.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDocker     Environment = "docker"
	EnvPodman     Environment = "podman"
	EnvContainerd Environment = "containerd"
)

// All supported build environments.
var Environments = []Environment{EnvLocal, EnvDocker, EnvPodman, EnvContainerd}

// Parses a build environment.
func ParseEnvironment(s string) (Environment, error) {
	return parseEnum(s, Environments, "build environment")
}

// Implements encoding.TextUnmarshaler.
func (e *Environment) UnmarshalText(text []byte) error {
	v, err := ParseEnvironment(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// Returns true if commands run inside a container session.
func (e Environment) Containerized() bool {
	return e != EnvLocal
}

func parseEnum[T ~string](s string, values []T, what string) (T, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range values {
		if string(v) == s {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q (valid: %s)", ErrUnknownValue, what, s, join(values))
}

func join[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
