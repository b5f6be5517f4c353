package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for an action outside its valid stage or
	// missing required input. The stage is left unchanged.
	ErrInvalidState = errors.New("invalid state")

	// ErrDevice is returned when the capture device is unavailable or denied
	ErrDevice = errors.New("capture device error")

	// ErrRecognition is returned when text recognition fails
	ErrRecognition = errors.New("recognition failed")

	// ErrAnalysis is returned when the analysis service call fails
	ErrAnalysis = errors.New("analysis failed")

	// ErrMissingCredential is an analysis failure caused by an absent API key
	ErrMissingCredential = fmt.Errorf("%w: api key is not available", ErrAnalysis)
)

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
