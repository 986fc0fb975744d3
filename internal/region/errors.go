package region

import "errors"

var (
	// ErrEmptyName is returned by Register when name is empty.
	ErrEmptyName = errors.New("region: name must not be empty")

	// ErrMisaligned is returned by Register when base is not cache-line
	// aligned.
	ErrMisaligned = errors.New("region: base address is not cache-line aligned")

	// ErrZeroSize is returned by Register when size is zero.
	ErrZeroSize = errors.New("region: size must be greater than zero")
)
