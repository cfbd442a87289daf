// Package request defines the immutable inputs and outputs of the zkb
// pipelines.
//
// A [Build] describes one kernel build, an [Assets] one asset collection.
// Both are plain values: pipelines receive them by value and never mutate
// them. The enumerations ([Base], [Chroot], [PackageType], [Environment])
// implement encoding.TextUnmarshaler so they can be bound directly to CLI
// flags.
package request
