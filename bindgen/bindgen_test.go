package bindgen

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
	"github.com/wippyai/wasmbind/declsort"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/platform"
)

const wasmHeader = `#ifndef WASM_H
#define WASM_H

#include <stdint.h>
#include <stddef.h>

#define WASM_API_EXTERN
#define WASM_PAGE_SIZE 0x10000
#define WASM_MAX_PAGES (WASM_PAGE_SIZE / 2)
#define WASM_VERSION "1.0"

#ifdef __cplusplus
extern "C" {
#endif

typedef struct wasm_engine_t wasm_engine_t;

typedef uint8_t wasm_valkind_t;

enum wasm_valkind_enum {
  WASM_I32,
  WASM_I64,
  WASM_F32 = 2,
  WASM_ANYREF = 128,
};

typedef struct wasm_limits_t {
  uint32_t min;
  uint32_t max;
} wasm_limits_t;

typedef struct wasm_val_t {
  wasm_valkind_t kind;
  union {
    int32_t i32;
    int64_t i64;
    float f32;
    double f64;
  } of;
} wasm_val_t;

typedef void (*wasm_finalizer_t)(void*);

WASM_API_EXTERN wasm_engine_t* wasm_engine_new(void);
WASM_API_EXTERN void wasm_engine_delete(wasm_engine_t*);
WASM_API_EXTERN size_t wasm_limits_size(const wasm_limits_t* limits, int32_t scale);
WASM_API_EXTERN wasm_limits_t wasm_limits_default(void);
WASM_API_EXTERN void wasm_set_finalizer(void* obj, wasm_finalizer_t fin);

static inline int wasm_helper(int x) { return x + 1; }

#ifdef __cplusplus
}
#endif

#endif
`

func linuxAMD64(t *testing.T) platform.Platform {
	t.Helper()
	p, err := platform.New(platform.X86_64, platform.Linux)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeHeader(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// normalize collapses whitespace so checks do not depend on gofmt alignment.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func scanString(t *testing.T, src string) *header {
	t.Helper()
	h := newHeader()
	pp := newPreproc(linuxAMD64(t))
	toks := pp.run(ctoken.Tokenize(src), func(name string, value []ctoken.Token, line int) {
		h.defines = append(h.defines, &define{name: name, value: value})
	})
	p := &parser{h: h, pp: pp, file: "test.h", toks: toks, log: zap.NewNop()}
	if err := p.parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return h
}

func TestEval(t *testing.T) {
	t.Parallel()

	pp := newPreproc(linuxAMD64(t))
	pp.macros["FOO"] = ctoken.Tokenize("3")
	pp.macros["BAR"] = ctoken.Tokenize("(FOO << 2)")

	tests := []struct {
		expr string
		want int64
		ok   bool
	}{
		{"1 + 2 * 3", 7, true},
		{"(1 << 4) | 1", 17, true},
		{"defined(FOO) && FOO > 2", 1, true},
		{"!defined MISSING", 1, true},
		{"UNKNOWN", 0, true},
		{"BAR", 12, true},
		{"(uint32_t)5", 5, true},
		{"-1 < 0", 1, true},
		{"'A'", 65, true},
		{"0xffu", 255, true},
		{"10 / 0", 0, false},
		{"(1", 0, false},
	}

	for _, tt := range tests {
		got, ok := pp.eval(ctoken.Tokenize(tt.expr))
		if ok != tt.ok || got != tt.want {
			t.Errorf("eval(%q) = %d, %v; want %d, %v", tt.expr, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPreprocConditionals(t *testing.T) {
	t.Parallel()

	src := `#define LEVEL 2
#if LEVEL > 2
int a;
#elif LEVEL == 2
int b;
#ifdef MISSING
int c;
#else
int d;
#endif
#else
int e;
#endif
#ifdef __linux__
int linux_only;
#endif
#ifdef _WIN32
int windows_only;
#endif
#undef LEVEL
#ifndef LEVEL
int undefined;
#endif
`
	pp := newPreproc(linuxAMD64(t))
	var defines []string
	toks := pp.run(ctoken.Tokenize(src), func(name string, _ []ctoken.Token, _ int) {
		defines = append(defines, name)
	})

	got := make([]string, len(toks))
	for i, tok := range toks {
		got[i] = tok.Value
	}
	want := "int b ; int d ; int linux_only ; int undefined ;"
	if strings.Join(got, " ") != want {
		t.Errorf("tokens = %q, want %q", strings.Join(got, " "), want)
	}
	if len(defines) != 1 || defines[0] != "LEVEL" {
		t.Errorf("defines = %v", defines)
	}
}

func TestPreprocAttributeMacros(t *testing.T) {
	t.Parallel()

	pp := newPreproc(linuxAMD64(t))
	pp.run(ctoken.Tokenize(`#define API __attribute__((visibility("default")))
#define EXPORT API
#define CALL(x) x
#define VALUE 1
`), nil)

	if !pp.attrs["API"] || !pp.attrs["EXPORT"] {
		t.Errorf("attrs = %v", pp.attrs)
	}
	if !pp.fnMacros["CALL"] {
		t.Error("CALL not recorded as function-like")
	}
	if _, ok := pp.macros["VALUE"]; !ok {
		t.Error("VALUE not recorded")
	}
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	h := scanString(t, wasmHeader)

	var keys []string
	for _, r := range h.records {
		keys = append(keys, r.key)
	}
	wantKeys := "struct wasm_engine_t,struct wasm_limits_t,union #1,struct wasm_val_t"
	if strings.Join(keys, ",") != wantKeys {
		t.Errorf("records = %v, want %s", keys, wantKeys)
	}
	if !h.recordByKey["struct wasm_engine_t"].opaque {
		t.Error("wasm_engine_t should be opaque")
	}
	union := h.recordByKey["union #1"]
	if !union.union || union.owner == nil || union.owner.key != "struct wasm_val_t" || union.ownerField != "of" {
		t.Errorf("union = %+v", union)
	}

	var funcs []string
	for _, f := range h.funcs {
		funcs = append(funcs, f.name)
	}
	wantFuncs := "wasm_engine_new,wasm_engine_delete,wasm_limits_size,wasm_limits_default,wasm_set_finalizer"
	if strings.Join(funcs, ",") != wantFuncs {
		t.Errorf("funcs = %v, want %s", funcs, wantFuncs)
	}

	size := h.funcs[2]
	if len(size.sig.params) != 2 || size.sig.params[0].name != "limits" || size.sig.params[0].typ.ptr != 1 {
		t.Errorf("wasm_limits_size params = %+v", size.sig.params)
	}
	if size.sig.ret.base != "size_t" {
		t.Errorf("wasm_limits_size returns %s", size.sig.ret)
	}

	fin := h.typedefByName["wasm_finalizer_t"]
	if fin == nil || fin.typ.fn == nil || len(fin.typ.fn.params) != 1 {
		t.Errorf("wasm_finalizer_t = %+v", fin)
	}

	if len(h.enums) != 1 || len(h.enums[0].consts) != 4 {
		t.Fatalf("enums = %+v", h.enums)
	}
	if c := h.enums[0].consts[2]; c.name != "WASM_F32" || joinTokens(c.value) != "2" {
		t.Errorf("enumerator = %+v", c)
	}

	var defines []string
	for _, d := range h.defines {
		defines = append(defines, d.name)
	}
	if strings.Join(defines, ",") != "WASM_PAGE_SIZE,WASM_MAX_PAGES,WASM_VERSION" {
		t.Errorf("defines = %v", defines)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"unterminated struct", "struct s { int a;"},
		{"missing semicolon", "int f(void) int g(void);"},
		{"multi-dimensional array", "struct s { int a[2][3]; };"},
		{"anonymous forward", "struct;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHeader()
			pp := newPreproc(linuxAMD64(t))
			p := &parser{h: h, pp: pp, file: "bad.h", toks: pp.run(ctoken.Tokenize(tt.src), nil), log: zap.NewNop()}
			err := p.parse()
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, &errors.Error{Kind: errors.KindParse}) {
				t.Errorf("error = %v, want parse kind", err)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	dir := writeHeader(t, "wasm.h", wasmHeader)
	out, err := Generate(dir, Options{
		Package:  "capi",
		Platform: linuxAMD64(t),
		Prefixes: []string{"wasm_", "WASM_"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	src := normalize(string(out))

	for _, want := range []string{
		"// Code generated by wasmgen. DO NOT EDIT.",
		"//go:build linux && amd64",
		"package capi",
		`#include "wasm.h"`,
		`import "C"`,
		`import "unsafe"`,
		"const WasmPageSize = 0x10000",
		"const WasmMaxPages = (WasmPageSize / 2)",
		`const WasmVersion = "1.0"`,
		"const WasmI32 WasmValkindEnum = 0",
		"const WasmI64 WasmValkindEnum = WasmI32 + 1",
		"const WasmAnyref WasmValkindEnum = 128",
		"type WasmEngine C.struct_wasm_engine_t",
		"type WasmValkind uint8",
		"type WasmValkindEnum int32",
		"type WasmLimits struct { Min uint32 Max uint32 }",
		"type WasmValOf struct { _ [0]uint64 Data [8]byte }",
		"type WasmVal struct { Kind WasmValkind Of WasmValOf }",
		"type WasmFinalizer unsafe.Pointer",
		"func WasmEngineNew() *WasmEngine { return (*WasmEngine)(unsafe.Pointer(C.wasm_engine_new())) }",
		"func WasmEngineDelete(p0 *WasmEngine) { C.wasm_engine_delete((*C.wasm_engine_t)(unsafe.Pointer(p0))) }",
		"func WasmLimitsSize(limits *WasmLimits, scale int32) uint64 { return uint64(C.wasm_limits_size((*C.wasm_limits_t)(unsafe.Pointer(limits)), C.int32_t(scale))) }",
		"res := C.wasm_limits_default() return *(*WasmLimits)(unsafe.Pointer(&res))",
		"C.wasm_set_finalizer(unsafe.Pointer(obj), (C.wasm_finalizer_t)(unsafe.Pointer(fin)))",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(src, "WasmHelper") {
		t.Error("static inline function should be skipped")
	}

	before := [][2]string{
		{"type WasmValOf struct", "type WasmVal struct"},
		{"type WasmValkindEnum int32", "const WasmI32"},
		{"type WasmEngine C.", "func WasmEngineNew"},
		{"const WasmPageSize", "const WasmMaxPages"},
	}
	for _, pair := range before {
		i, j := strings.Index(src, pair[0]), strings.Index(src, pair[1])
		if i < 0 || j < 0 || i > j {
			t.Errorf("%q should precede %q", pair[0], pair[1])
		}
	}

	again, err := declsort.Rewrite(out)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if string(again) != string(out) {
		t.Error("generated output is not stable under Rewrite")
	}
}

func TestGeneratePlatformDataModel(t *testing.T) {
	t.Parallel()

	dir := writeHeader(t, "model.h", `typedef struct sized_t {
  long n;
  char c;
} sized_t;
`)

	tests := []struct {
		arch  platform.Arch
		os    platform.OS
		field string
		tag   string
	}{
		{platform.X86_64, platform.Linux, "N int64 C int8", "//go:build linux && amd64"},
		{platform.X86_64, platform.Windows, "N int32 C int8", "//go:build windows && amd64"},
		{platform.AArch64, platform.Linux, "N int64 C uint8", "//go:build linux && arm64"},
		{platform.AArch64, platform.MacOS, "N int64 C int8", "//go:build darwin && arm64"},
	}

	for _, tt := range tests {
		t.Run(string(tt.arch)+"-"+string(tt.os), func(t *testing.T) {
			p, err := platform.New(tt.arch, tt.os)
			if err != nil {
				t.Fatal(err)
			}
			out, err := Generate(dir, Options{Platform: p})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			src := normalize(string(out))
			if !strings.Contains(src, "type Sized struct { "+tt.field+" }") {
				t.Errorf("struct fields: want %q in\n%s", tt.field, out)
			}
			if !strings.Contains(src, tt.tag) {
				t.Errorf("missing %q", tt.tag)
			}
			if !strings.Contains(src, "package capi") {
				t.Error("default package name not applied")
			}
		})
	}
}

func TestGenerateUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		path   string
		detail string
	}{
		{"unknown type", "void wasm_take(mystery_t value);\n", "wasm_take", "mystery_t"},
		{"variadic", "int wasm_printf(const char* format, ...);\n", "wasm_printf", "variadic"},
		{"bit-field", "struct flags { unsigned a : 1; };\n", "struct flags", "bit-field"},
		{"opaque by value", "struct handle;\nvoid wasm_use(struct handle h);\n", "wasm_use", "by value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := writeHeader(t, "bad.h", tt.src)
			_, err := Generate(dir, Options{Platform: linuxAMD64(t)})
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("error %T is not *errors.Error", err)
			}
			if e.Kind != errors.KindUnsupported || e.Phase != errors.PhaseGenerate {
				t.Errorf("error = %v, want generate/unsupported", err)
			}
			if len(e.Path) != 1 || e.Path[0] != tt.path {
				t.Errorf("path = %v, want %s", e.Path, tt.path)
			}
			if !strings.Contains(e.Detail, tt.detail) {
				t.Errorf("detail = %q, want it to mention %q", e.Detail, tt.detail)
			}
		})
	}
}

func TestGenerateNameCollision(t *testing.T) {
	t.Parallel()

	dir := writeHeader(t, "clash.h", "void wasm_a_b(void);\nvoid wasm_aB(void);\n")
	_, err := Generate(dir, Options{Platform: linuxAMD64(t)})
	if !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Fatalf("error = %v, want invalid_input", err)
	}
	if !strings.Contains(err.Error(), "WasmAB") {
		t.Errorf("error %q should name the Go identifier", err)
	}
}

func TestGeneratePrefixes(t *testing.T) {
	t.Parallel()

	dir := writeHeader(t, "mixed.h", `#define WASM_ONE 1
#define OTHER_ONE 1
typedef struct wasm_thing_t wasm_thing_t;
void wasm_thing_delete(wasm_thing_t*);
void other_call(void);
`)
	out, err := Generate(dir, Options{Platform: linuxAMD64(t), Prefixes: []string{"wasm_", "WASM_"}})
	if err != nil {
		t.Fatal(err)
	}
	src := string(out)
	for _, want := range []string{"WasmOne", "WasmThingDelete", "type WasmThing"} {
		if !strings.Contains(src, want) {
			t.Errorf("missing %s", want)
		}
	}
	for _, unwanted := range []string{"OtherOne", "OtherCall"} {
		if strings.Contains(src, unwanted) {
			t.Errorf("unexpected %s", unwanted)
		}
	}
}

func TestGenerateFile(t *testing.T) {
	t.Parallel()

	dir := writeHeader(t, "wasm.h", wasmHeader)
	out := filepath.Join(t.TempDir(), "capi.go")
	opts := Options{Package: "capi", Platform: linuxAMD64(t), Generator: "wasmgen generate"}
	if err := GenerateFile(dir, out, opts); err != nil {
		t.Fatalf("GenerateFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "// Code generated by wasmgen generate. DO NOT EDIT.") {
		t.Errorf("unexpected header:\n%s", data)
	}

	want, err := Generate(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(want) {
		t.Error("GenerateFile and Generate disagree")
	}
}

func TestGenerateMissingDir(t *testing.T) {
	t.Parallel()

	_, err := Generate(t.TempDir(), Options{Platform: linuxAMD64(t)})
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{exportName, "wasm_engine_new", "WasmEngineNew"},
		{exportName, "WASM_I32", "WasmI32"},
		{exportName, "_private", "Private"},
		{exportName, "3d", "X3d"},
		{exportName, "wasmtime_anyref_t", "WasmtimeAnyrefT"},
		{typeName, "wasm_val_t", "WasmVal"},
		{typeName, "_t", "T"},
		{localName, "type", "type_"},
		{localName, "len", "len_"},
		{localName, "res", "res_"},
		{localName, "engine_ref", "engineRef"},
	}

	for _, tt := range tests {
		if got := tt.fn(tt.in); got != tt.want {
			t.Errorf("%q -> %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	dir := writeHeader(t, "wasm.h", wasmHeader)
	if _, err := Generate(dir, Options{Platform: linuxAMD64(t), Logger: zap.New(core)}); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("bindings generated").All()
	if len(entries) != 1 {
		t.Fatalf("got %d summary entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["platform"]; got != "x86_64-linux" {
		t.Errorf("platform field = %v", got)
	}
}
