package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrCorrupt indicates a stored collection could not be decoded.
	ErrCorrupt = errors.New("repository: stored data is corrupt")
)
