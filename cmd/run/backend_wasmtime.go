//go:build wasmtime && cgo

package main

import (
	"github.com/wippyai/wasmbind/engine/wasmtime"
	"github.com/wippyai/wasmbind/native"
)

func init() {
	backends["wasmtime"] = func() native.ABI { return wasmtime.New() }
}
