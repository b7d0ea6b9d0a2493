// Package errors provides structured error types for the handle storage module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: storage name, pooled Go type, field path,
// and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseScenario, errors.KindNotFound).
//		Path("steps", "3").
//		Storage("meshes").
//		Detail("no mesh named %q", "cube").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StaleHandle(errors.PhaseDereference, "lights", "scene.Light", 3, 1)
//	err := errors.Reentrant(errors.PhaseIterate, "meshes", "Emplace")
//
// Programmer errors in the handle package (dereferencing a stale handle,
// releasing past zero) are raised as panics carrying an *Error so that
// recover sites can still inspect Phase and Kind.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
