package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	goruntime "runtime"
	"slices"

	"github.com/cruciblehq/zkb/internal/request"
)

//go:embed devices.json
var defaultDevices []byte

// A supported device.
type Device struct {
	Name   string `json:"name"`   // Marketing name.
	Vendor string `json:"vendor"` // Manufacturer.
}

// Supported devices keyed by canonical codename.
type Devices map[string]Device

// Returns the device list compiled into the binary.
func Default() Devices {
	d, err := Parse(defaultDevices)
	if err != nil {
		panic(fmt.Sprintf("manifest: embedded device list: %v", err))
	}
	return d
}

// Reads a device list from a JSON file.
func Load(path string) (Devices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, path, err)
	}
	return d, nil
}

// Decodes a device list.
func Parse(data []byte) (Devices, error) {
	var d Devices
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return nil, fmt.Errorf("device list is empty")
	}
	return d, nil
}

// Returns the device for codename.
func (d Devices) Lookup(codename string) (Device, error) {
	dev, ok := d[codename]
	if !ok {
		return Device{}, fmt.Errorf("%w: unsupported device codename %q", ErrValidation, codename)
	}
	return dev, nil
}

// Returns the supported codenames in sorted order.
func (d Devices) Codenames() []string {
	return slices.Sorted(maps.Keys(d))
}

// Pipeline a request is aimed at.
type Command string

const (
	CommandKernel Command = "kernel"
	CommandAssets Command = "assets"
	CommandBundle Command = "bundle"
)

// Describes a request for validation.
type Check struct {
	Command     Command
	Environment request.Environment
	Codename    string
	Defconfig   string // Custom defconfig path, if any.
}

// Facts about the machine the request runs on.
type Host struct {
	OS          string // GOOS value.
	HasApt      bool   // An apt binary is on PATH.
	InContainer bool   // The process itself runs inside a container.
}

// Probes the current machine.
func DetectHost() Host {
	_, aptErr := exec.LookPath("apt")
	return Host{
		OS:          goruntime.GOOS,
		HasApt:      aptErr == nil,
		InContainer: fileExists("/.dockerenv") || fileExists("/run/.containerenv"),
	}
}

// Rejects requests that cannot run on host.
//
// Local kernel builds need a Debian-based Linux host. Containerized
// environments cannot be started from inside a container. The codename must
// be a supported device and a custom defconfig must be an existing file.
func (d Devices) Validate(c Check, host Host) error {
	if c.Environment == request.EnvLocal && (c.Command == CommandKernel || c.Command == CommandBundle) {
		if host.OS != "linux" {
			return fmt.Errorf("%w: cannot build a kernel locally on %s", ErrValidation, host.OS)
		}
		if !host.HasApt {
			return fmt.Errorf("%w: local kernel builds need a Debian-based distribution", ErrValidation)
		}
	}

	if c.Environment.Containerized() && host.InContainer {
		return fmt.Errorf("%w: %s environment cannot run inside a container", ErrValidation, c.Environment)
	}

	if _, err := d.Lookup(c.Codename); err != nil {
		return err
	}

	if c.Defconfig != "" {
		info, err := os.Stat(c.Defconfig)
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: defconfig %s is not a file", ErrValidation, c.Defconfig)
		}
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
