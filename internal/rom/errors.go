package rom

import "errors"

var (
	ErrReleaseNotFound    = errors.New("release not found")
	ErrUnsupportedVendor  = errors.New("no ROM vendor for kernel base")
	ErrReleaseUnreachable = errors.New("release endpoint unreachable")
)
