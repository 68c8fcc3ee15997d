// Package wasmtime implements native.ABI on wasmtime-go.
//
// The backend needs cgo and is compiled only with the wasmtime build tag:
//
//	go build -tags wasmtime ./...
//
// Unlike the wazero backend it supports fuel metering and non-null funcref
// values. It has no interpreter; requesting one fails engine construction.
// Context cancellation is not observed during a call; use epoch
// interruption to bound execution time.
package wasmtime
