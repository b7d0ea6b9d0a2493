package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEmplace     Phase = "emplace"     // object construction
	PhaseLookup      Phase = "lookup"      // slot resolution
	PhaseDereference Phase = "dereference" // handle access
	PhaseRelease     Phase = "release"     // ref count decrement
	PhaseCleanup     Phase = "cleanup"     // reclaim sweep
	PhaseIterate     Phase = "iterate"     // visitor pass
	PhaseBridge      Phase = "bridge"      // script host boundary
	PhaseScenario    Phase = "scenario"    // scenario playback
	PhaseLoad        Phase = "load"        // file loading
	PhaseParse       Phase = "parse"       // YAML parsing
	PhaseMetrics     Phase = "metrics"     // metrics export
)

// Kind categorizes the error
type Kind string

const (
	KindStaleHandle   Kind = "stale_handle"
	KindEmptyHandle   Kind = "empty_handle"
	KindRefCount      Kind = "ref_count"
	KindReentrant     Kind = "reentrant"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindInvalidData   Kind = "invalid_data"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate"
	KindInvalidInput  Kind = "invalid_input"
	KindMismatch      Kind = "mismatch"
	KindRegistration  Kind = "registration"
	KindInstantiation Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Storage string
	GoType  string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Storage != "" || e.GoType != "" {
		b.WriteString(": ")
		if e.Storage != "" && e.GoType != "" {
			b.WriteString("storage ")
			b.WriteString(e.Storage)
			b.WriteString(" of ")
			b.WriteString(e.GoType)
		} else if e.Storage != "" {
			b.WriteString("storage ")
			b.WriteString(e.Storage)
		} else {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		}
	}

	if e.Detail != "" {
		if e.Storage != "" || e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Storage sets the name of the storage involved
func (b *Builder) Storage(name string) *Builder {
	b.err.Storage = name
	return b
}

// GoType sets the Go type name of the pooled object
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// EmptyHandle creates an error for access through a handle that names no slot
func EmptyHandle(phase Phase, storage, goType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindEmptyHandle,
		Storage: storage,
		GoType:  goType,
		Detail:  "handle is empty",
	}
}

// StaleHandle creates an error for a handle whose slot was reclaimed or reused
func StaleHandle(phase Phase, storage, goType string, index int32, generation uint32) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindStaleHandle,
		Storage: storage,
		GoType:  goType,
		Detail:  fmt.Sprintf("slot %d generation %d is no longer live", index, generation),
		Value:   index,
	}
}

// RefCountUnderflow creates an error for a release past zero references
func RefCountUnderflow(storage, goType string, index int32) *Error {
	return &Error{
		Phase:   PhaseRelease,
		Kind:    KindRefCount,
		Storage: storage,
		GoType:  goType,
		Detail:  fmt.Sprintf("slot %d released with no outstanding references", index),
		Value:   index,
	}
}

// Reentrant creates an error for a structural mutation issued while the
// storage is iterating or sweeping
func Reentrant(phase Phase, storage, op string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindReentrant,
		Storage: storage,
		Detail:  fmt.Sprintf("%s called while storage is busy", op),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Duplicate creates an error for a name that is already taken
func Duplicate(phase Phase, path []string, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Path:   path,
		Detail: fmt.Sprintf("%s %q already defined", what, name),
		Value:  name,
	}
}

// Mismatch creates an error for an observed value that differs from the expected one
func Mismatch(phase Phase, path []string, what string, want, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMismatch,
		Path:   path,
		Detail: fmt.Sprintf("%s: want %v, got %v", what, want, got),
		Value:  got,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseBridge,
		Kind:   KindInstantiation,
		Detail: fmt.Sprintf("instantiate host module %s", module),
		Cause:  cause,
	}
}

// Load creates a file loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
