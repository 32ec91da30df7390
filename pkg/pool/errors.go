package pool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrWorkerInit is wrapped by InitError.
var ErrWorkerInit = errors.New("worker initialization failed")

// errExited is recorded for a slot whose goroutine ended before reporting.
var errExited = errors.New("worker exited before reporting initialization")

// SlotFailure records why one slot failed to initialize.
type SlotFailure struct {
	ID   int
	Name string
	Err  error
}

// InitError is returned by Start when at least one worker failed to
// initialize.
type InitError struct {
	Failures []SlotFailure
}

// Error returns a summary of all failed slots.
func (e *InitError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	return fmt.Sprintf("%v (%d of the workers): %s", ErrWorkerInit, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap returns ErrWorkerInit.
func (e *InitError) Unwrap() error {
	return ErrWorkerInit
}

func newInitError(failures []SlotFailure) *InitError {
	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
	return &InitError{Failures: failures}
}

// panicError wraps a recovered panic value.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
