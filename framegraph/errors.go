// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package framegraph

import "fmt"

// ErrorKind classifies a CompileError.
type ErrorKind int

// Compile error kinds (spec §7's compile.* taxonomy).
const (
	// ErrCycle means the pass dependency graph contains a cycle.
	ErrCycle ErrorKind = iota
	// ErrUnknownHandle means the plan references a handle with no
	// corresponding resource entry.
	ErrUnknownHandle
	// ErrEmptyQueueConfig means Compile was called with a
	// QueueConfig that configures zero queues in every family.
	ErrEmptyQueueConfig
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrCycle:
		return "compile.cycle"
	case ErrUnknownHandle:
		return "compile.unknown_handle"
	case ErrEmptyQueueConfig:
		return "compile.empty_queue_config"
	default:
		return "compile.unknown"
	}
}

// CompileError reports a fatal failure encountered while compiling a
// Builder into a Plan. Compile errors are always fatal: the caller
// receives no Plan.
type CompileError struct {
	Kind   ErrorKind
	Detail string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newCompileError(kind ErrorKind, detail string) *CompileError {
	return &CompileError{Kind: kind, Detail: detail}
}
