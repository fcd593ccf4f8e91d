// Package kerr defines the typed error taxonomy shared by every internal
// package and re-exported by the root korudelta package.
//
// It exists as its own package (rather than living in the root package)
// purely to break the import cycle: internal/distinction, internal/chain,
// internal/cache, internal/snsw and internal/causal all need to return
// typed errors, and the root package needs to import all of them. A
// shared leaf package defined once and consumed by every sibling is the
// idiomatic resolution.
package kerr

import "fmt"

// Kind classifies a typed failure. See the root package's ErrorKind doc
// comment for the meaning of each value — Kind is re-exported there
// verbatim.
type Kind int

const (
	KeyNotFound Kind = iota
	NoValueAtTimestamp
	InvalidData
	EngineError
	StorageError
	TimeError
	SerializationError
)

func (k Kind) String() string {
	switch k {
	case KeyNotFound:
		return "key-not-found"
	case NoValueAtTimestamp:
		return "no-value-at-timestamp"
	case InvalidData:
		return "invalid-data"
	case EngineError:
		return "engine-error"
	case StorageError:
		return "storage-error"
	case TimeError:
		return "time-error"
	case SerializationError:
		return "serialization-error"
	default:
		return "unknown-error"
	}
}

// Error is the single error type returned across every package boundary
// in this module.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("korudelta: %s: %s", e.Kind, e.Message)
}

// Is supports errors.Is by comparing Kind only, so a caller can match
// against a sentinel regardless of the specific message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error. This is the one path every package in this
// module uses to report a typed failure.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DebugFatal is the hook invoked wherever an EngineError is raised. It is
// a no-op by default; a debug build (see the root package's
// errors_debug.go, built with the korudelta_debug tag) replaces it with a
// variant that panics immediately, since engine invariants should be
// unreachable and a panic surfaces the violation at the point of failure
// instead of propagating a confusing downstream symptom.
var DebugFatal = func(err *Error) {}
