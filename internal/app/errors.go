package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrStaleSource     = errors.New("deal is no longer in the source stage")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
