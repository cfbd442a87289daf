// Package shell runs pipeline commands.
//
// Pipelines never call os/exec directly. They hand a [Command] to an
// [Executor], which is either the [Host] (commands run on this machine) or a
// container session (commands are relayed into a running container). The
// same pipeline code therefore runs unchanged in both environments.
package shell
