package domain

import "errors"

// ErrPlotNotFound is returned when a plot ID cannot be found in the registry or store.
var ErrPlotNotFound = errors.New("plot not found")

// ErrPlotExists is returned when opening a plot whose ID is already registered.
var ErrPlotExists = errors.New("plot already exists")

// ErrEndpointClosed marks a lifecycle violation: an endpoint was used after Close.
// Endpoints panic with an error wrapping this value.
var ErrEndpointClosed = errors.New("plot endpoint closed")

// ErrUnrecognizedEvent is returned by ParseEvent when the text carries no valid event kind.
var ErrUnrecognizedEvent = errors.New("unrecognized event")

var (
	ErrInputTooLarge = errors.New("event text exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("event text contains invalid UTF-8 sequences")
)
