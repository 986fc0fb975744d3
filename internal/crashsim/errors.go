package crashsim

import "errors"

var (
	// ErrNoVerifier is returned by ForceCrash when no verifier path has
	// been configured.
	ErrNoVerifier = errors.New("crashsim: no verifier configured")

	// ErrNoRegions is returned by ForceCrash when no regions are
	// currently registered.
	ErrNoRegions = errors.New("crashsim: no regions registered")
)
