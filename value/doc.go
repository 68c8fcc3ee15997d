// Package value is the closed set of WebAssembly value kinds and the tagged-union
// Value that crosses the native call boundary.
//
// Every Value carries its Kind. Decoding checks the tag against the kind the
// caller expects at that position and fails with a kind mismatch instead of
// reinterpreting the payload:
//
//	v, err := value.Encode(int16(7))       // widened to i32
//	n, err := value.Decode(v, value.KindI32) // int32(7)
//	_, err = value.Decode(v, value.KindI64)  // kind_mismatch
//
// EncodeAs encodes against a declared parameter kind and is what the call
// protocol uses for positional arguments. V128 is an opaque 16-byte payload.
package value
