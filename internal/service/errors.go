package service

import "errors"

var (
	// ErrInvalidRequest marks input rejected before anything is stored.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStorage marks a failed write; nothing from the request was kept.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound is returned when a record to delete does not exist.
	ErrNotFound = errors.New("not found")
)
