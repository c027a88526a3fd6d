package storage

import "errors"

var (
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("storage: store closed")

	// ErrInvalidPtr indicates the pointer does not reference a valid record.
	ErrInvalidPtr = errors.New("storage: invalid pointer")

	// ErrCorrupt indicates on-disk data corruption was detected.
	ErrCorrupt = errors.New("storage: data corruption detected")

	// ErrEmptyKey is returned for operations on an empty key.
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrReservedKey is returned when an undigested key would collide with a store file.
	ErrReservedKey = errors.New("storage: key collides with a reserved file name")

	// ErrInvalidKey is returned when an undigested key is not a safe relative file path.
	ErrInvalidKey = errors.New("storage: key is not a valid relative path")

	// ErrNotEmpty is returned by Import when the target store already holds keys.
	ErrNotEmpty = errors.New("storage: store is not empty")
)
