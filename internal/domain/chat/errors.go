package chat

import "errors"

var (
	ErrNotFound         = errors.New("chat: not found")
	ErrForbidden        = errors.New("chat: forbidden")
	ErrInvalidOperation = errors.New("chat: invalid operation")
	ErrInvalidInput     = errors.New("chat: invalid input")
	ErrUnauthenticated  = errors.New("chat: unauthenticated")

	// ErrConflict is returned by repositories when a conversation with the same
	// dedup key already exists. The registry recovers from it by re-reading.
	ErrConflict = errors.New("chat: conversation already exists")
)
