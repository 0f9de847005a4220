package agpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/agpu/backend"
	"github.com/gogpu/agpu/internal/transfer"
)

// Errors returned by agpu. Every error wraps exactly one of these.
var (
	// ErrUnsupported is returned when a resource was not created with the
	// capability an operation needs (dynamic storage, read mapping, upload
	// or readback flags).
	ErrUnsupported = errors.New("agpu: unsupported operation")

	// ErrOutOfBounds is returned when a range or region exceeds a resource.
	ErrOutOfBounds = errors.New("agpu: out of bounds")

	// ErrOutOfMemory is returned when the backend cannot allocate memory,
	// including staging memory.
	ErrOutOfMemory = errors.New("agpu: out of memory")

	// ErrTransfer is returned when recording, submitting or mapping fails.
	ErrTransfer = errors.New("agpu: transfer failed")

	// ErrInvalidOperation is returned for calls on released resources or a
	// closed device, and for mapping misuse.
	ErrInvalidOperation = errors.New("agpu: invalid operation")

	// ErrInvalidParameter is returned for malformed descriptions and
	// caller buffers that are too small for the described layout.
	ErrInvalidParameter = errors.New("agpu: invalid parameter")
)

// translate maps a backend or transfer error onto the agpu taxonomy,
// keeping the cause in the chain.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, backend.ErrOutOfMemory):
		return fmt.Errorf("%w: %s: %w", ErrOutOfMemory, op, err)
	case errors.Is(err, transfer.ErrClosed):
		return fmt.Errorf("%w: %s: device closed", ErrInvalidOperation, op)
	default:
		return fmt.Errorf("%w: %s: %w", ErrTransfer, op, err)
	}
}

// mapState runs a StateMapper lookup on a caller-supplied usage and turns
// a mapper panic into an error.
func mapState(lookup func(backend.StateMapper) backend.State, m backend.StateMapper) (s backend.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return lookup(m), nil
}
