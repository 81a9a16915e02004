package domain

import "errors"

var (
	// ErrNoBands is returned when no reference band exists for any industry.
	ErrNoBands = errors.New("cannot score: no reference bands")

	// ErrUnknownScenario is returned for a scenario kind the runner does not know.
	ErrUnknownScenario = errors.New("unknown scenario kind")

	// ErrInvalidConfig wraps scoring configuration validation failures.
	ErrInvalidConfig = errors.New("invalid scoring config")
)
