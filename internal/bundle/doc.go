// Package bundle combines a kernel build and an asset collection into one
// distributable artifact.
//
// An [Orchestrator] runs the kernel builder, then the assets collector, then
// packages both outputs. The two pipelines run strictly one after the other
// so logs and failures are attributed deterministically.
//
// Three package types exist:
//
//	full   .tar.xz with the kernel image and every collected asset
//	slim   .tar.xz with the kernel image and the asset manifest only
//	conan  Conan package created from a generated recipe, optionally uploaded
//
// Upload is only meaningful for conan packages. [Validate] rejects any other
// combination before a single stage runs.
package bundle
