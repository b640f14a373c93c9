package timers

import "errors"

var (
	ErrNotFound       = errors.New("timer not found")
	ErrDuplicateID    = errors.New("timer id already exists")
	ErrInvalidSection = errors.New("invalid section")
)
