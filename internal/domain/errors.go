package domain

import "errors"

var (
	ErrOutOfRange       = errors.New("cell index out of range")
	ErrMalformedCommand = errors.New("malformed edit command")
	ErrStoreUnavailable = errors.New("edit log store unavailable")
	ErrRegistryStopped  = errors.New("connection registry stopped")
	ErrRegistryFull     = errors.New("connection registry full")
)
