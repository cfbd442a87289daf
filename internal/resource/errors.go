package resource

import "errors"

var (
	ErrResourceFetch = errors.New("resource fetch failed")
	ErrCatalog       = errors.New("invalid resource catalog")
)
