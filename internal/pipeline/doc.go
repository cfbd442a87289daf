// Package pipeline is the entry point of the three build processes.
//
// A [Pipeline] wires the resource manager, kernel builder, assets collector
// and bundle orchestrator to a single [shell.Executor]. Given a host
// executor the processes run on the machine; given a container session they
// run inside it. Callers never need to know which.
package pipeline
