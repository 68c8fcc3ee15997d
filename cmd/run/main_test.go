package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

func writeModule(t *testing.T, bin []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.wasm")
	if err := os.WriteFile(path, bin, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func printModule() []byte {
	b := wasmtest.New()
	printFn := b.ImportFunc("env", "print_i32", value.Signature{Params: []value.Kind{value.KindI32}})
	body := append(wasmtest.I32Const(7), wasmtest.OpCall, byte(printFn))
	b.Export("run", native.ExternFunc, b.Func(value.Signature{}, nil, body...))
	return b.Bytes()
}

func TestRun(t *testing.T) {
	path := writeModule(t, wasmtest.Add())

	var out bytes.Buffer
	err := run(&out, options{wasmFile: path, funcName: "add", args: "1, 2", backend: "wazero"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Exports: 1", "func(i32, i32) -> (i32)", "Calling", "Result: ", "3"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_List(t *testing.T) {
	path := writeModule(t, wasmtest.Kitchen())

	var out bytes.Buffer
	if err := run(&out, options{wasmFile: path, backend: "wazero", list: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"memory 1..", "global mut i32", "global const i64", "table funcref"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "Calling") {
		t.Error("list mode should not call anything")
	}
}

func TestRun_HostImport(t *testing.T) {
	path := writeModule(t, printModule())

	var out bytes.Buffer
	if err := run(&out, options{wasmFile: path, backend: "wazero"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "env.print_i32") {
		t.Errorf("imports not listed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "\n7\n") {
		t.Errorf("host output missing:\n%s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	add := writeModule(t, wasmtest.Add())

	tests := []struct {
		name string
		opts options
		want string
	}{
		{"unknown backend", options{wasmFile: add, backend: "v8"}, "unknown backend"},
		{"missing file", options{wasmFile: filepath.Join(t.TempDir(), "none.wasm"), backend: "wazero"}, "read file"},
		{"missing function", options{wasmFile: add, funcName: "sub", backend: "wazero"}, "no exported function"},
		{"argument count", options{wasmFile: add, funcName: "add", args: "1", backend: "wazero"}, "expected 2 arguments"},
		{"argument type", options{wasmFile: add, funcName: "add", args: "1,x", backend: "wazero"}, "invalid i32"},
		{"invalid module", options{wasmFile: writeModule(t, wasmtest.Invalid()), backend: "wazero"}, "compile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(&out, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		kind value.Kind
		want any
	}{
		{"42", value.KindI32, int32(42)},
		{"-1", value.KindI32, int32(-1)},
		{"0xffffffff", value.KindI32, int32(-1)},
		{"9000000000", value.KindI64, int64(9000000000)},
		{"18446744073709551615", value.KindI64, int64(-1)},
		{"1.5", value.KindF32, float32(1.5)},
		{"2.25", value.KindF64, 2.25},
		{"null", value.KindExternRef, nil},
		{"", value.KindFuncRef, nil},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.in, tt.kind)
		if err != nil {
			t.Errorf("parseArg(%q, %s): %v", tt.in, tt.kind, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseArg(%q, %s) = %#v, want %#v", tt.in, tt.kind, got, tt.want)
		}
	}

	for _, bad := range []struct {
		in   string
		kind value.Kind
	}{
		{"4294967296", value.KindI32},
		{"abc", value.KindF64},
		{"7", value.KindExternRef},
		{"0", value.KindV128},
	} {
		if _, err := parseArg(bad.in, bad.kind); err == nil {
			t.Errorf("parseArg(%q, %s) should fail", bad.in, bad.kind)
		}
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "()"},
		{int32(3), "3"},
		{float32(0.1), "0.1"},
		{[]any{int32(1), int64(2)}, "(1, 2)"},
	}
	for _, tt := range tests {
		if got := formatResult(tt.in); got != tt.want {
			t.Errorf("formatResult(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
