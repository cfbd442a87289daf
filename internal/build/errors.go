package build

import "errors"

var (
	ErrPatchApply          = errors.New("patch apply failed")
	ErrConfigApply         = errors.New("kernel configuration failed")
	ErrBuildTool           = errors.New("kernel build failed")
	ErrFileSystemOperation = errors.New("file system operation failed")
)
