package config

import "errors"

var (
	ErrConfigFileNotFound = errors.New("config: file not found")
	ErrConfigFileRead     = errors.New("config: cannot read file")
	ErrConfigInvalid      = errors.New("config: invalid file")
	ErrVerifierPathEmpty  = errors.New("config: verifier_path cannot be explicitly empty")
)
