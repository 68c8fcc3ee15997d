// Package bindgen generates cgo bindings from C headers.
//
// The scanner understands the subset of C found in runtime API headers:
// object-like macros, conditional compilation, enums, structs and unions,
// typedefs and function prototypes. Function-like macros are not expanded;
// their invocations at file scope are skipped.
//
// The output is a single Go file: constants for macros and enumerators,
// Go mirrors of C types, and one wrapper per function that converts
// arguments to their C types and calls through cgo. Struct layouts follow
// the target [platform.Platform], unions become byte arrays with the
// union's size and alignment.
//
//	src, err := bindgen.Generate("include", bindgen.Options{
//	    Package:  "capi",
//	    Prefixes: []string{"wasm_", "WASM_"},
//	})
//
// Generated declarations are ordered with [declsort.Rewrite] so that each
// one follows the declarations it refers to. A declaration naming a C type
// the scanner cannot map fails with an error of kind unsupported whose path
// is the declaration name.
package bindgen
