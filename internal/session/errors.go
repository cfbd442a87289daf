package session

import "errors"

var (
	ErrContainerSession = errors.New("container session error")
	ErrInvalidState     = errors.New("invalid session state")
)
