package storage

import "errors"

// Sentinel errors returned by the Allocator.
var (
	ErrInvalidExtension     = errors.New("unsupported audio extension")
	ErrInvalidJobID         = errors.New("invalid job id")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrOutsideInbox         = errors.New("path is outside the inbox")
)
