package bindgen

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
)

// ctype is a C type as written in a declaration.
type ctype struct {
	// base is the canonical specifier: "unsigned int", "struct wasm_val_t",
	// "enum kind", a typedef name, or "void".
	base  string
	ptr   int
	array []ctoken.Token // element count of a fixed array
	fn    *signature
}

func (t ctype) String() string {
	if t.fn != nil {
		return t.fn.ret.String() + " (*)()"
	}
	s := t.base + strings.Repeat("*", t.ptr)
	if len(t.array) > 0 {
		s += "[" + joinTokens(t.array) + "]"
	}
	return s
}

func joinTokens(toks []ctoken.Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Value
	}
	return strings.Join(parts, " ")
}

func (t ctype) isVoid() bool {
	return t.base == "void" && t.ptr == 0 && t.fn == nil && len(t.array) == 0
}

// elem strips one pointer level.
func (t ctype) elem() ctype {
	t.ptr--
	return t
}

type param struct {
	name string
	typ  ctype
}

type signature struct {
	ret      ctype
	params   []param
	variadic bool
}

type field struct {
	name string
	typ  ctype
	bits bool
}

// record is a struct or union. A record without a body is opaque.
type record struct {
	tag    string
	key    string
	union  bool
	fields []field
	opaque bool
	pos    string

	// Anonymous records are named after the typedef or field that uses them.
	typedefName string
	owner       *record
	ownerField  string
}

func (r *record) keyword() string {
	if r.union {
		return "union"
	}
	return "struct"
}

type enumConst struct {
	name  string
	value []ctoken.Token // empty for implicit
}

type enum struct {
	tag    string
	key    string
	consts []enumConst
	pos    string
}

type typedef struct {
	name string
	typ  ctype
	pos  string
}

type function struct {
	name string
	sig  signature
	pos  string
}

type define struct {
	name  string
	value []ctoken.Token
	pos   string
}

// header is everything scanned from a set of C headers, in source order.
type header struct {
	files    []string
	defines  []*define
	enums    []*enum
	records  []*record
	typedefs []*typedef
	funcs    []*function

	recordByKey   map[string]*record
	enumByKey     map[string]*enum
	typedefByName map[string]*typedef
	funcByName    map[string]bool
	anon          int
}

func newHeader() *header {
	return &header{
		recordByKey:   make(map[string]*record),
		enumByKey:     make(map[string]*enum),
		typedefByName: make(map[string]*typedef),
		funcByName:    make(map[string]bool),
	}
}

// addRecord registers a record and returns the canonical one. A forward
// declaration and a later definition of the same tag merge.
func (h *header) addRecord(r *record) *record {
	if r.tag == "" {
		h.anon++
		r.key = r.keyword() + " #" + strconv.Itoa(h.anon)
	} else {
		r.key = r.keyword() + " " + r.tag
	}
	if prev, ok := h.recordByKey[r.key]; ok {
		if prev.opaque && !r.opaque {
			prev.fields = r.fields
			prev.opaque = false
			prev.pos = r.pos
		}
		return prev
	}
	h.records = append(h.records, r)
	h.recordByKey[r.key] = r
	return r
}

func (h *header) addEnum(e *enum) *enum {
	if e.tag == "" {
		h.anon++
		e.key = "enum #" + strconv.Itoa(h.anon)
	} else {
		e.key = "enum " + e.tag
	}
	if prev, ok := h.enumByKey[e.key]; ok {
		if len(prev.consts) == 0 {
			prev.consts = e.consts
		}
		return prev
	}
	h.enums = append(h.enums, e)
	h.enumByKey[e.key] = e
	return e
}

func (h *header) addTypedef(t *typedef) {
	if _, ok := h.typedefByName[t.name]; ok {
		return
	}
	h.typedefs = append(h.typedefs, t)
	h.typedefByName[t.name] = t
}

func (h *header) addFunc(f *function) {
	if h.funcByName[f.name] {
		return
	}
	h.funcs = append(h.funcs, f)
	h.funcByName[f.name] = true
}
