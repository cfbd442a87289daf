// Package fetch downloads files and JSON documents over HTTP.
//
// Downloads are written to a temporary file next to the destination and
// renamed into place only after the body has been fully received and, when
// an expected digest is supplied, verified. A failed download therefore never
// leaves a truncated file under the final name.
package fetch
