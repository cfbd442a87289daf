package assets

import "errors"

var ErrAssetFetch = errors.New("asset fetch failed")
