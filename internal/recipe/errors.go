package recipe

import "errors"

// Sentinel errors shared across subsystems.
var (
	// ErrInvalidKey means the raw input contained no extractable video ID.
	ErrInvalidKey = errors.New("invalid video key")
	// ErrNotFound means the key is unknown to the component asked.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyProcessing is returned by Admit when a live record exists.
	// It is a dedup outcome, not a failure.
	ErrAlreadyProcessing = errors.New("job already processing")
	// ErrTerminal guards terminal records against late mutation; a second
	// Complete or Fail for the same key is rejected, never applied.
	ErrTerminal = errors.New("job already terminal")
)
