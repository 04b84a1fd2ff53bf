package series

import "errors"

var (
	// ErrFetchFailure is returned when a remote dataset could not be downloaded or decoded.
	ErrFetchFailure = errors.New("fetch failure")

	// ErrInvalidParameter is returned for selections the pipeline refuses to process.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownView is returned when a view name is not registered.
	ErrUnknownView = errors.New("unknown view")
)
