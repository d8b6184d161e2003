package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrDistributionNotFound is returned when a link or message distribution does not exist.
	ErrDistributionNotFound = errors.New("distribution not found")
	// ErrProfileNotFound is returned when a panelist does not exist.
	ErrProfileNotFound = errors.New("profile not found")
)
