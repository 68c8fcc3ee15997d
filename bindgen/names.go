package bindgen

import (
	"go/token"
	"go/types"
	"strings"
	"unicode"
)

// exportName converts a C identifier to an exported Go name:
// wasm_engine_new becomes WasmEngineNew, WASM_I32 becomes WasmI32.
func exportName(c string) string {
	var b strings.Builder
	for _, part := range strings.Split(c, "_") {
		if part == "" {
			continue
		}
		b.WriteString(capitalize(part))
	}
	s := b.String()
	if s == "" {
		return "X"
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "X" + s
	}
	return s
}

// typeName converts a C type name, dropping a trailing _t.
func typeName(c string) string {
	if trimmed, ok := strings.CutSuffix(c, "_t"); ok && trimmed != "" {
		c = trimmed
	}
	return exportName(c)
}

// localName converts a C parameter name to an unexported Go name that
// cannot shadow a predeclared identifier or a package the generated code uses.
func localName(c string) string {
	s := exportName(c)
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	s = string(r)
	if token.IsKeyword(s) || types.Universe.Lookup(s) != nil || s == "unsafe" || s == "res" {
		s += "_"
	}
	return s
}

func capitalize(part string) string {
	upper := strings.ToUpper(part) == part
	r := []rune(part)
	for i := range r {
		if i == 0 {
			r[i] = unicode.ToUpper(r[i])
		} else if upper {
			r[i] = unicode.ToLower(r[i])
		}
	}
	return string(r)
}
