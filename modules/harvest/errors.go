package harvest

import "errors"

var (
	ErrNotFound      = errors.New("path not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrInvalidFilter = errors.New("invalid filter pattern")
	ErrIO            = errors.New("io failure")
)
