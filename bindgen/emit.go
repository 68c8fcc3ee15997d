package bindgen

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/platform"
)

type kind int

const (
	kindVoid kind = iota
	kindScalar
	kindRecord
	kindOpaque
	kindPointer
	kindFunc
	kindArray
)

var cgoBuiltin = map[string]string{
	"char":               "C.char",
	"signed char":        "C.schar",
	"unsigned char":      "C.uchar",
	"short":              "C.short",
	"unsigned short":     "C.ushort",
	"int":                "C.int",
	"unsigned int":       "C.uint",
	"long":               "C.long",
	"unsigned long":      "C.ulong",
	"long long":          "C.longlong",
	"unsigned long long": "C.ulonglong",
	"float":              "C.float",
	"double":             "C.double",
	"_Bool":              "C.bool",
	"bool":               "C.bool",
}

// emitter renders a scanned header as one Go file of cgo bindings.
type emitter struct {
	h    *header
	pp   *preproc
	plat platform.Platform
	opts Options
	log  *zap.Logger

	goNames map[string]string // C key to Go name
	taken   map[string]string // Go name to C key
	consts  map[string]string // emitted C constant to Go name
	layouts map[*record][2]int

	constItems []*constItem

	unsafe bool
	body   bytes.Buffer
	stats  struct{ consts, types, funcs int }
}

func newEmitter(h *header, pp *preproc, opts Options, log *zap.Logger) *emitter {
	return &emitter{
		h:       h,
		pp:      pp,
		plat:    opts.Platform,
		opts:    opts,
		log:     log,
		goNames: make(map[string]string),
		taken:   make(map[string]string),
		consts:  make(map[string]string),
		layouts: make(map[*record][2]int),
	}
}

func (e *emitter) claim(key, name string) bool {
	if owner, ok := e.taken[name]; ok && owner != key {
		return false
	}
	e.taken[name] = key
	e.goNames[key] = name
	return true
}

func (e *emitter) collision(key, name string) error {
	return errors.New(errors.PhaseGenerate, errors.KindInvalidInput).
		Detail("%s and %s both map to Go name %s", strings.TrimPrefix(e.taken[name], "func "), strings.TrimPrefix(key, "func "), name).
		Build()
}

// claimType names a type, adding a T suffix while the name is taken.
func (e *emitter) claimType(key, name string) string {
	for !e.claim(key, name) {
		name += "T"
	}
	return name
}

func (e *emitter) emit() ([]byte, error) {
	if err := e.nameFuncs(); err != nil {
		return nil, err
	}
	if err := e.nameConsts(); err != nil {
		return nil, err
	}
	e.nameTypes()

	e.constDecls()
	if err := e.records(); err != nil {
		return nil, err
	}
	e.enumTypes()
	if err := e.typedefs(); err != nil {
		return nil, err
	}
	if err := e.funcs(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	e.preamble(&out)
	out.Write(e.body.Bytes())
	e.log.Info("bindings generated",
		zap.Int("headers", len(e.h.files)),
		zap.Int("consts", e.stats.consts),
		zap.Int("types", e.stats.types),
		zap.Int("funcs", e.stats.funcs))
	return out.Bytes(), nil
}

func (e *emitter) preamble(out *bytes.Buffer) {
	tool := e.opts.Generator
	if tool == "" {
		tool = "wasmgen"
	}
	fmt.Fprintf(out, "// Code generated by %s. DO NOT EDIT.\n\n", tool)
	fmt.Fprintf(out, "//go:build %s\n\n", e.plat.BuildConstraint())
	fmt.Fprintf(out, "package %s\n\n", e.opts.Package)

	includes := e.opts.Includes
	if len(includes) == 0 {
		for _, f := range e.h.files {
			includes = append(includes, filepath.Base(f))
		}
	}
	out.WriteString("/*\n")
	for _, inc := range includes {
		fmt.Fprintf(out, "#include %q\n", inc)
	}
	out.WriteString("*/\nimport \"C\"\n")
	if e.unsafe {
		out.WriteString("\nimport \"unsafe\"\n")
	}
}

func (e *emitter) nameFuncs() error {
	for _, f := range e.h.funcs {
		if !e.opts.wants(f.name) {
			continue
		}
		key := "func " + f.name
		name := exportName(f.name)
		if !e.claim(key, name) {
			return e.collision(key, name)
		}
	}
	return nil
}

type constItem struct {
	cname string
	value []ctoken.Token
	prev  string // previous enumerator for implicit values
	enum  *enum
	expr  string
}

// nameConsts translates #defines and enumerators. Items referring to
// constants declared later resolve over repeated passes.
func (e *emitter) nameConsts() error {
	var items []*constItem
	seen := make(map[string]bool, len(e.h.defines))
	for _, d := range e.h.defines {
		if e.opts.wants(d.name) && !seen[d.name] {
			seen[d.name] = true
			items = append(items, &constItem{cname: d.name, value: d.value})
		}
	}
	for _, en := range e.h.enums {
		prev := ""
		for _, c := range en.consts {
			if e.opts.wants(c.name) {
				items = append(items, &constItem{cname: c.name, value: c.value, prev: prev, enum: en})
			}
			prev = c.name
		}
	}

	for progress := true; progress; {
		progress = false
		for _, it := range items {
			if it.expr != "" {
				continue
			}
			expr, ok := e.constValue(it)
			if !ok {
				continue
			}
			key := "const " + it.cname
			name := exportName(it.cname)
			if !e.claim(key, name) {
				return e.collision(key, name)
			}
			e.consts[it.cname] = name
			it.expr = expr
			progress = true
		}
	}
	e.constItems = items
	return nil
}

// constDecls renders the translated constants. Enumerators of a tagged
// enum carry its Go type.
func (e *emitter) constDecls() {
	for _, it := range e.constItems {
		if it.expr == "" {
			e.log.Debug("constant skipped", zap.String("name", it.cname))
			continue
		}
		name := e.consts[it.cname]
		if it.enum != nil && it.enum.tag != "" {
			fmt.Fprintf(&e.body, "const %s %s = %s\n\n", name, e.goNames[it.enum.key], it.expr)
		} else {
			fmt.Fprintf(&e.body, "const %s = %s\n\n", name, it.expr)
		}
		e.stats.consts++
	}
}

func (e *emitter) constValue(it *constItem) (string, bool) {
	if len(it.value) > 0 {
		return e.goExpr(it.value)
	}
	if it.enum == nil {
		return "", false
	}
	if it.prev == "" {
		return "0", true
	}
	prev, ok := e.consts[it.prev]
	if !ok {
		return "", false
	}
	return prev + " + 1", true
}

// goExpr translates a C constant expression. Casts are dropped; anything
// beyond literals, arithmetic and known constants fails.
func (e *emitter) goExpr(toks []ctoken.Token) (string, bool) {
	var out []string
	lastString := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		isString := false
		switch t.Type {
		case ctoken.Punct:
			switch t.Value {
			case "(":
				if n, ok := castLength(toks[i+1:]); ok {
					i += n
					continue
				}
				out = append(out, t.Value)
			case ")", "+", "-", "*", "/", "%", "|", "&", "^", "<<", ">>":
				out = append(out, t.Value)
			case "~":
				out = append(out, "^")
			default:
				return "", false
			}
		case ctoken.Number:
			lit, ok := goNumber(t.Value)
			if !ok {
				return "", false
			}
			out = append(out, lit)
		case ctoken.String:
			if _, err := strconv.Unquote(t.Value); err != nil {
				return "", false
			}
			if lastString {
				out = append(out, "+")
			}
			out = append(out, t.Value)
			isString = true
		case ctoken.Char:
			if _, err := strconv.Unquote(t.Value); err != nil {
				return "", false
			}
			out = append(out, t.Value)
		case ctoken.Ident:
			name, ok := e.consts[t.Value]
			if !ok {
				return "", false
			}
			out = append(out, name)
		default:
			return "", false
		}
		lastString = isString
	}
	if len(out) == 0 {
		return "", false
	}
	return strings.Join(out, " "), true
}

// goNumber rewrites a C numeric literal without its type suffix.
func goNumber(s string) (string, bool) {
	lower := strings.ToLower(s)
	isHex := strings.HasPrefix(lower, "0x")
	if !isHex && (strings.ContainsAny(lower, ".e")) {
		s = strings.TrimRight(s, "fFlL")
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", false
		}
		return s, true
	}
	s = strings.TrimRight(s, "uUlL")
	if _, err := strconv.ParseUint(s, 0, 64); err != nil {
		return "", false
	}
	return s, true
}

func (e *emitter) nameTypes() {
	var owned []*record
	for _, r := range e.h.records {
		switch {
		case r.tag != "":
			e.claimType(r.key, typeName(r.tag))
		case r.typedefName != "":
			e.claimType(r.key, typeName(r.typedefName))
		default:
			owned = append(owned, r)
		}
	}
	for len(owned) > 0 {
		var rest []*record
		for _, r := range owned {
			switch {
			case r.owner == nil:
				e.claimType(r.key, "Anon"+strconv.Itoa(len(e.goNames)))
			case e.goNames[r.owner.key] != "":
				e.claimType(r.key, e.goNames[r.owner.key]+exportName(r.ownerField))
			default:
				rest = append(rest, r)
				continue
			}
		}
		if len(rest) == len(owned) {
			for _, r := range rest {
				e.claimType(r.key, "Anon"+strconv.Itoa(len(e.goNames)))
			}
			break
		}
		owned = rest
	}

	for _, en := range e.h.enums {
		if en.tag != "" {
			e.claimType(en.key, typeName(en.tag))
		}
	}

	for _, td := range e.h.typedefs {
		name := typeName(td.name)
		t := td.typ
		if t.ptr == 0 && len(t.array) == 0 && t.fn == nil {
			// typedef struct foo_t foo_t: the typedef is the record.
			if target, ok := e.goNames[t.base]; ok && (target == name || e.anonTarget(t.base, td.name)) {
				e.goNames[td.name] = target
				continue
			}
		}
		e.claimType(td.name, name)
	}
}

func (e *emitter) anonTarget(key, typedefName string) bool {
	r, ok := e.h.recordByKey[key]
	return ok && r.tag == "" && r.typedefName == typedefName
}

func (e *emitter) unknown(t ctype, ctx string) error {
	return errors.New(errors.PhaseGenerate, errors.KindUnsupported).
		Path(ctx).
		Detail("unknown C type %q", t.base).
		Build()
}

func (e *emitter) unsupported(ctx, format string, args ...any) error {
	return errors.New(errors.PhaseGenerate, errors.KindUnsupported).
		Path(ctx).
		Detail(format, args...).
		Build()
}

// classify resolves t through typedefs to the shape wrappers convert.
func (e *emitter) classify(t ctype, ctx string) (kind, error) {
	for depth := 0; depth < 32; depth++ {
		switch {
		case t.fn != nil:
			return kindFunc, nil
		case len(t.array) > 0:
			return kindArray, nil
		case t.ptr > 0:
			return kindPointer, nil
		case t.base == "void":
			return kindVoid, nil
		}
		if r, ok := e.h.recordByKey[t.base]; ok {
			if r.opaque {
				return kindOpaque, nil
			}
			return kindRecord, nil
		}
		if _, ok := e.h.enumByKey[t.base]; ok {
			return kindScalar, nil
		}
		if td, ok := e.h.typedefByName[t.base]; ok {
			t = td.typ
			continue
		}
		if _, ok := e.plat.CScalar(t.base); ok {
			return kindScalar, nil
		}
		return 0, e.unknown(t, ctx)
	}
	return 0, e.unsupported(ctx, "typedef chain too deep at %q", t.base)
}

// goType spells t as a Go type.
func (e *emitter) goType(t ctype, ctx string) (string, error) {
	switch {
	case t.fn != nil:
		e.unsafe = true
		return "unsafe.Pointer", nil
	case len(t.array) > 0:
		n, ok := e.arrayLen(t.array)
		if !ok {
			return "", e.unsupported(ctx, "array length %q", joinTokens(t.array))
		}
		elem := t
		elem.array = nil
		g, err := e.goType(elem, ctx)
		if err != nil {
			return "", err
		}
		return "[" + n + "]" + g, nil
	case t.ptr > 0:
		inner := t.elem()
		if inner.ptr == 0 {
			switch inner.base {
			case "void":
				e.unsafe = true
				return "unsafe.Pointer", nil
			case "char":
				return "*byte", nil
			}
		}
		g, err := e.goType(inner, ctx)
		if err != nil {
			return "", err
		}
		return "*" + g, nil
	case t.base == "void":
		return "", e.unsupported(ctx, "void value")
	}

	if name, ok := e.goNames[t.base]; ok {
		return name, nil
	}
	if strings.HasPrefix(t.base, "enum ") {
		return "int32", nil
	}
	if s, ok := e.plat.CScalar(t.base); ok {
		return goScalar(s, t.base), nil
	}
	return "", e.unknown(t, ctx)
}

func goScalar(s platform.Scalar, base string) string {
	if base == "_Bool" || base == "bool" {
		return "bool"
	}
	if s.Float {
		return "float" + strconv.Itoa(s.Size*8)
	}
	if s.Signed {
		return "int" + strconv.Itoa(s.Size*8)
	}
	return "uint" + strconv.Itoa(s.Size*8)
}

func (e *emitter) arrayLen(toks []ctoken.Token) (string, bool) {
	if len(toks) == 1 && toks[0].Type == ctoken.Number {
		return goNumber(toks[0].Value)
	}
	return e.goExpr(toks)
}

// cType spells t as a cgo type, or "" when C has no name for it.
func (e *emitter) cType(t ctype) string {
	if t.fn != nil {
		return "*[0]byte"
	}
	if t.base == "void" && t.ptr > 0 {
		e.unsafe = true
		return strings.Repeat("*", t.ptr-1) + "unsafe.Pointer"
	}

	var base string
	if r, ok := e.h.recordByKey[t.base]; ok {
		switch {
		case r.tag != "":
			base = "C." + r.keyword() + "_" + r.tag
		case r.typedefName != "":
			base = "C." + r.typedefName
		default:
			return ""
		}
	} else if en, ok := e.h.enumByKey[t.base]; ok {
		base = "C.int"
		if en.tag != "" {
			base = "C.enum_" + en.tag
		}
	} else if b, ok := cgoBuiltin[t.base]; ok {
		base = b
	} else {
		base = "C." + t.base
	}
	return strings.Repeat("*", t.ptr) + base
}

func (e *emitter) layout(t ctype, ctx string, depth int) (int, int, error) {
	if depth > 32 {
		return 0, 0, e.unsupported(ctx, "type nesting too deep")
	}
	ptr := e.plat.PointerSize()
	switch {
	case t.fn != nil, t.ptr > 0:
		return ptr, ptr, nil
	case len(t.array) > 0:
		n, ok := e.pp.eval(t.array)
		if !ok || n < 0 {
			return 0, 0, e.unsupported(ctx, "array length %q", joinTokens(t.array))
		}
		elem := t
		elem.array = nil
		size, align, err := e.layout(elem, ctx, depth+1)
		return size * int(n), align, err
	case t.base == "void":
		return 0, 0, e.unsupported(ctx, "void value")
	}

	if r, ok := e.h.recordByKey[t.base]; ok {
		return e.recordLayout(r, ctx, depth+1)
	}
	if _, ok := e.h.enumByKey[t.base]; ok {
		return 4, 4, nil
	}
	if td, ok := e.h.typedefByName[t.base]; ok {
		return e.layout(td.typ, ctx, depth+1)
	}
	if s, ok := e.plat.CScalar(t.base); ok {
		return s.Size, s.Align, nil
	}
	return 0, 0, e.unknown(t, ctx)
}

func (e *emitter) recordLayout(r *record, ctx string, depth int) (int, int, error) {
	if l, ok := e.layouts[r]; ok {
		return l[0], l[1], nil
	}
	if r.opaque {
		return 0, 0, e.unsupported(ctx, "%s has incomplete type", r.key)
	}
	size, align := 0, 1
	for _, f := range r.fields {
		fs, fa, err := e.layout(f.typ, ctx, depth+1)
		if err != nil {
			return 0, 0, err
		}
		align = max(align, fa)
		if r.union {
			size = max(size, fs)
			continue
		}
		size = alignUp(size, fa) + fs
	}
	size = alignUp(size, align)
	e.layouts[r] = [2]int{size, align}
	return size, align, nil
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

func (e *emitter) records() error {
	for _, r := range e.h.records {
		name := e.goNames[r.key]
		ctx := r.key
		if r.typedefName != "" {
			ctx = r.typedefName
		}

		switch {
		case r.opaque:
			ct := e.cType(ctype{base: r.key})
			fmt.Fprintf(&e.body, "// %s is the opaque C type %s.\ntype %s %s\n\n", name, ctx, name, ct)
		case r.union:
			size, align, err := e.recordLayout(r, ctx, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(&e.body, "// %s holds a C union of %d bytes.\ntype %s struct {\n", name, size, name)
			if align > 1 {
				fmt.Fprintf(&e.body, "\t_ [0]uint%d\n", align*8)
			}
			fmt.Fprintf(&e.body, "\tData [%d]byte\n}\n\n", size)
		default:
			if err := e.structDecl(r, name, ctx); err != nil {
				return err
			}
		}
		e.stats.types++
	}
	return nil
}

func (e *emitter) structDecl(r *record, name, ctx string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s mirrors %s.\ntype %s struct {\n", name, ctx, name)
	seen := make(map[string]bool, len(r.fields))
	for _, f := range r.fields {
		if f.bits {
			return e.unsupported(ctx, "bit-field %s", f.name)
		}
		if f.name == "" {
			return e.unsupported(ctx, "anonymous member")
		}
		if k, err := e.classify(f.typ, ctx); err != nil {
			return err
		} else if k == kindOpaque {
			return e.unsupported(ctx, "field %s has incomplete type", f.name)
		}
		g, err := e.goType(f.typ, ctx)
		if err != nil {
			return err
		}
		fname := exportName(f.name)
		for seen[fname] {
			fname += "_"
		}
		seen[fname] = true
		fmt.Fprintf(&b, "\t%s %s\n", fname, g)
	}
	b.WriteString("}\n\n")
	e.body.WriteString(b.String())
	return nil
}

func (e *emitter) enumTypes() {
	for _, en := range e.h.enums {
		if en.tag == "" {
			continue
		}
		name := e.goNames[en.key]
		fmt.Fprintf(&e.body, "// %s is C enum %s.\ntype %s int32\n\n", name, en.tag, name)
		e.stats.types++
	}
}

func (e *emitter) typedefs() error {
	for _, td := range e.h.typedefs {
		if owner := e.taken[e.goNames[td.name]]; owner != td.name {
			// folded into the record it names
			continue
		}
		goName := e.goNames[td.name]
		t := td.typ

		switch {
		case t.fn != nil:
			e.unsafe = true
			fmt.Fprintf(&e.body, "// %s is the C function pointer type %s.\ntype %s unsafe.Pointer\n\n", goName, td.name, goName)
		case t.isVoid():
			e.log.Debug("void typedef skipped", zap.String("name", td.name))
			continue
		case t.ptr == 0 && len(t.array) == 0 && e.isScalarBase(t.base):
			s, _ := e.plat.CScalar(t.base)
			fmt.Fprintf(&e.body, "type %s %s\n\n", goName, goScalar(s, t.base))
		case t.ptr == 0 && len(t.array) == 0 && strings.HasPrefix(t.base, "enum #"):
			fmt.Fprintf(&e.body, "type %s int32\n\n", goName)
		default:
			g, err := e.goType(t, td.name)
			if err != nil {
				return err
			}
			fmt.Fprintf(&e.body, "type %s = %s\n\n", goName, g)
		}
		e.stats.types++
	}
	return nil
}

func (e *emitter) isScalarBase(base string) bool {
	if _, ok := e.h.typedefByName[base]; ok {
		return false
	}
	_, ok := e.plat.CScalar(base)
	return ok
}

func (e *emitter) funcs() error {
	for _, f := range e.h.funcs {
		if !e.opts.wants(f.name) {
			continue
		}
		if err := e.wrapper(f); err != nil {
			return err
		}
		e.stats.funcs++
	}
	return nil
}

func (e *emitter) wrapper(f *function) error {
	ctx := f.name
	if f.sig.variadic {
		return e.unsupported(ctx, "variadic function")
	}

	params := make([]string, len(f.sig.params))
	args := make([]string, len(f.sig.params))
	for i, p := range f.sig.params {
		name := "p" + strconv.Itoa(i)
		if p.name != "" {
			name = localName(p.name)
		}
		g, err := e.goType(p.typ, ctx)
		if err != nil {
			return err
		}
		arg, err := e.toC(p.typ, name, ctx)
		if err != nil {
			return err
		}
		params[i] = name + " " + g
		args[i] = arg
	}

	call := "C." + f.name + "(" + strings.Join(args, ", ") + ")"
	var body, result string
	if f.sig.ret.isVoid() {
		body = "\t" + call + "\n"
	} else {
		g, err := e.goType(f.sig.ret, ctx)
		if err != nil {
			return err
		}
		result = " " + g
		body, err = e.fromC(f.sig.ret, g, call, ctx)
		if err != nil {
			return err
		}
	}

	name := e.goNames["func "+f.name]
	fmt.Fprintf(&e.body, "// %s calls %s.\nfunc %s(%s)%s {\n%s}\n\n",
		name, f.name, name, strings.Join(params, ", "), result, body)
	return nil
}

func (e *emitter) toC(t ctype, name, ctx string) (string, error) {
	k, err := e.classify(t, ctx)
	if err != nil {
		return "", err
	}
	ct := e.cType(t)
	if ct == "" {
		return "", e.unsupported(ctx, "parameter %s has no C type name", name)
	}
	switch k {
	case kindPointer, kindFunc:
		e.unsafe = true
		if ct == "unsafe.Pointer" {
			return "unsafe.Pointer(" + name + ")", nil
		}
		return "(" + ct + ")(unsafe.Pointer(" + name + "))", nil
	case kindScalar:
		return ct + "(" + name + ")", nil
	case kindRecord:
		e.unsafe = true
		return "*(*" + ct + ")(unsafe.Pointer(&" + name + "))", nil
	}
	return "", e.unsupported(ctx, "parameter %s cannot be passed by value", name)
}

func (e *emitter) fromC(t ctype, g, call, ctx string) (string, error) {
	k, err := e.classify(t, ctx)
	if err != nil {
		return "", err
	}
	switch k {
	case kindPointer, kindFunc:
		e.unsafe = true
		return "\treturn (" + g + ")(unsafe.Pointer(" + call + "))\n", nil
	case kindScalar:
		return "\treturn " + g + "(" + call + ")\n", nil
	case kindRecord:
		e.unsafe = true
		return "\tres := " + call + "\n\treturn *(*" + g + ")(unsafe.Pointer(&res))\n", nil
	}
	return "", e.unsupported(ctx, "result cannot be returned by value")
}
