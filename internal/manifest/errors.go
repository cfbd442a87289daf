package manifest

import "errors"

var ErrValidation = errors.New("validation failed")
