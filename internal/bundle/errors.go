package bundle

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid bundle configuration")
	ErrPackage              = errors.New("packaging failed")
)
