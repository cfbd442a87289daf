// Package build turns a kernel build request into a kernel image.
//
// A [Builder] runs a fixed sequence of fail-fast stages:
//
//  1. clean: remove the kernel workspace and stop (only when requested)
//  2. resolve: obtain the toolchain and kernel source and copy the source
//     into the workspace
//  3. ksu: apply the KernelSU patch set (only when requested)
//  4. defconfig: generate the kernel configuration from a custom defconfig
//     or the default one for the base
//  5. make: run the kernel build
//  6. locate: find the produced image
//
// Each stage failure aborts the build with a distinct sentinel error and
// leaves the workspace untouched for inspection.
//
// Toolchain commands go through a [shell.Executor], so the same builder runs
// on the host or inside a container session. The environment of those
// commands (ARCH, CC, CROSS_COMPILE, PATH and friends) accumulates across
// stages the way a shell session would.
//
// Example usage:
//
//	b := build.New(build.Options{
//	    Workspace: paths.Workspace{Root: "/work"},
//	    Resources: resources,
//	    Executor:  &shell.Host{},
//	})
//	image, err := b.Run(ctx, req)
package build
