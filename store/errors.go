package store

import "errors"

var (
	ErrNotFound    = errors.New("receipt not found")
	ErrInvalidData = errors.New("invalid data in storage")
)
