// Package declsort orders the top-level declarations of a generated Go file
// so every declaration appears after the declarations it references.
//
// The generator in package bindgen writes declarations in header order, which
// interleaves types, constants and wrappers freely. Rewrite parses such a file
// into one Node per top-level spec, orders the nodes and prints them back:
//
//	out, err := declsort.Rewrite(src)
//
// Ordering is a fixed-point relaxation rather than a depth-first walk:
// declarations with no in-set dependencies come first in input order, then
// repeated scans emit every declaration whose dependencies were all emitted.
// A scan that emits nothing ends the sort with a *errors.CycleError naming
// every declaration still waiting. The result is stable for a given input
// order.
package declsort
