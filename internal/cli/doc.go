// Parses flags and environment configuration and dispatches to a pipeline.
//
// The CLI accepts the following global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Relay the output of build commands.
//	-d, --debug     Enable debug output.
//
// Subcommands are kernel, assets, bundle, clean and version. Every pipeline
// subcommand takes an --env flag selecting where it runs: local runs on the
// host, docker and podman relay commands through the container CLI, and
// containerd drives a containerd daemon directly. Containerized runs wrap the
// whole pipeline in one container session that is torn down on every exit
// path.
//
// Requests are validated before any pipeline starts. Settings that rarely
// change per invocation come from ZKB_* environment variables; see [Config].
//
// Flags override build-time defaults set via linker flags. After parsing, the
// logger level is updated to reflect the final mode.
package cli
