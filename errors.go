package korudelta

import "github.com/swyrknt/korudelta/internal/kerr"

// ErrorKind classifies the typed failures the database façade can return.
// Every operation returns one of these kinds wrapped in an *Error rather
// than an ad-hoc error string, so callers can branch with errors.Is.
type ErrorKind = kerr.Kind

// Error is the one error type every KoruDelta operation can return. It
// carries a Kind (see ErrorKind) and a human-readable Message. No Error
// ever reveals internal identifiers beyond ids the caller already holds.
type Error = kerr.Error

const (
	// KeyNotFound: the requested (namespace, key) has no versions, or the
	// namespace does not exist.
	KeyNotFound = kerr.KeyNotFound
	// NoValueAtTimestamp: a historical query pre-dates the first version.
	NoValueAtTimestamp = kerr.NoValueAtTimestamp
	// InvalidData: serialisation or schema failure, including non-finite
	// floats in an embedding vector.
	InvalidData = kerr.InvalidData
	// EngineError: a distinction-engine invariant was violated. Should be
	// unreachable in normal operation; see kerr.DebugFatal, which
	// errors_debug.go sets.
	EngineError = kerr.EngineError
	// StorageError: the persistence layer hit an I/O failure.
	StorageError = kerr.StorageError
	// TimeError: the monotonic write-id clock regressed.
	TimeError = kerr.TimeError
	// SerializationError: encoding a value or vector failed.
	SerializationError = kerr.SerializationError
)

// Sentinel errors, one per kind, for errors.Is comparisons:
//
//	if errors.Is(err, korudelta.ErrKeyNotFound) { ... }
var (
	ErrKeyNotFound        = &Error{Kind: KeyNotFound, Message: "key not found"}
	ErrNoValueAtTimestamp = &Error{Kind: NoValueAtTimestamp, Message: "no value at timestamp"}
	ErrInvalidData        = &Error{Kind: InvalidData, Message: "invalid data"}
	ErrEngineError        = &Error{Kind: EngineError, Message: "engine invariant violated"}
	ErrStorageError       = &Error{Kind: StorageError, Message: "storage failure"}
	ErrTimeError          = &Error{Kind: TimeError, Message: "clock regression"}
	ErrSerializationError = &Error{Kind: SerializationError, Message: "serialization failure"}
)
