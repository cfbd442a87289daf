// Package runtime drives build containers through a containerd daemon.
//
// A [Runtime] implements the session engine contract natively, without a
// container CLI. Images are pulled by reference or imported from an OCI
// archive and unpacked for the host platform. Containers get a fresh
// snapshot, host networking, and bind mounts of the workspace directories at
// identical paths, and run a long-lived "sleep infinity" task. Each command
// is an additional exec process attached to that task.
//
// Dockerfile builds are not supported; point the runtime at a prebuilt
// image that carries the kernel build toolchain.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.Config{Address: "/run/containerd/containerd.sock", Namespace: "zkb"})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	err = session.Run(ctx, rt, session.Image{Ref: "ghcr.io/acme/kbuild:latest"}, opts, false, pipeline)
package runtime
