// Package errors provides structured error types for the wasmbind library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the context needed to diagnose a failure without calling
// back into the native layer: expected and actual kinds or arities, store identity,
// native messages and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindKindMismatch).
//		Path("add", "arg0").
//		Expected("i32").
//		Actual("f64").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Trap(errors.PhaseCall, msg)
//	err := errors.ArityMismatch("params", 2, 3)
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with no Phase matches any error of the same Kind, so the Err* sentinels
// can be used directly with errors.Is.
package errors
