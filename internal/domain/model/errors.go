package model

import "errors"

// Sentinel kinds for configuration validation. These allow errors.Is/As from callers.
var (
	ErrInvalidNetwork    = errors.New("invalid network")
	ErrUnknownPopulation = errors.New("unknown population")
	ErrDuplicateDrive    = errors.New("duplicate drive name")
)
