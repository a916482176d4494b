package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupported is returned by operations that have no meaning for animated images.
	ErrUnsupported = errors.New("operation not supported for this image format")

	// ErrNotLoaded is returned by blocking operations called before Load.
	ErrNotLoaded = errors.New("no image loaded")

	// ErrUnparsable is wrapped by every ParseError.
	ErrUnparsable = errors.New("image info output unparsable")
)

// ToolError reports an external tool that exited with a non-zero status.
type ToolError struct {
	Tool     string
	ExitCode int
	Command  string
	URL      string
	Stderr   string
}

func (e *ToolError) Error() string {
	command := e.Command
	if e.URL != "" {
		command += " " + e.URL
	}
	return fmt.Sprintf("%s command returned errorlevel %d for command %q (image maybe corrupted?)", e.Tool, e.ExitCode, command)
}

// TimeoutError reports an external tool killed after exceeding its time budget.
type TimeoutError struct {
	Tool    string
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s command timed out after %s for command %q", e.Tool, e.Timeout, e.Command)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ParseError reports gifsicle info output that lacks an expected token.
type ParseError struct {
	Field  string
	Output string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: missing %s in %q", ErrUnparsable, e.Field, e.Output)
}

func (e *ParseError) Unwrap() error { return ErrUnparsable }

// VerificationError reports a processed buffer that the image decoders reject.
type VerificationError struct {
	URL string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("invalid gif engine result for url %q: %v", e.URL, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
