package bindgen

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
	"github.com/wippyai/wasmbind/platform"
)

// preproc tracks macros across headers and evaluates conditionals.
// Only object-like macros are kept. Function-like macros are recorded by
// name so their invocations can be skipped.
type preproc struct {
	macros   map[string][]ctoken.Token
	attrs    map[string]bool
	fnMacros map[string]bool
}

type cond struct {
	parent bool
	active bool
	taken  bool
}

func newPreproc(p platform.Platform) *preproc {
	pp := &preproc{
		macros:   make(map[string][]ctoken.Token),
		attrs:    make(map[string]bool),
		fnMacros: make(map[string]bool),
	}
	one := []ctoken.Token{{Value: "1", Type: ctoken.Number}}
	for _, name := range predefined(p) {
		pp.macros[name] = one
	}
	return pp
}

func predefined(p platform.Platform) []string {
	names := []string{"__STDC__"}
	switch p.OS {
	case platform.Linux:
		names = append(names, "__linux__", "__unix__")
	case platform.Android:
		names = append(names, "__ANDROID__", "__linux__", "__unix__")
	case platform.MacOS:
		names = append(names, "__APPLE__", "__MACH__")
	case platform.Windows:
		names = append(names, "_WIN32", "_WIN64")
	}
	switch p.Arch {
	case platform.X86_64:
		names = append(names, "__x86_64__")
	case platform.AArch64:
		names = append(names, "__aarch64__")
	case platform.RISCV64:
		names = append(names, "__riscv")
	case platform.S390X:
		names = append(names, "__s390x__")
	}
	if p.Endian == platform.BigEndian {
		names = append(names, "__BIG_ENDIAN__")
	} else {
		names = append(names, "__LITTLE_ENDIAN__")
	}
	return names
}

// run drops inactive regions and directives from toks. Active #defines are
// recorded and reported through onDefine in source order.
func (pp *preproc) run(toks []ctoken.Token, onDefine func(name string, value []ctoken.Token, line int)) []ctoken.Token {
	var out []ctoken.Token
	var stack []cond
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].active
	}

	for _, t := range toks {
		if t.Type != ctoken.Directive {
			if active() {
				out = append(out, t)
			}
			continue
		}

		name, rest, _ := strings.Cut(t.Value, " ")
		rest = strings.TrimSpace(rest)
		switch name {
		case "if", "ifdef", "ifndef":
			parent := active()
			v := parent && pp.condition(name, rest)
			stack = append(stack, cond{parent: parent, active: v, taken: v})
		case "elif":
			if len(stack) == 0 {
				continue
			}
			c := &stack[len(stack)-1]
			v := c.parent && !c.taken && pp.condition("if", rest)
			c.active = v
			c.taken = c.taken || v
		case "else":
			if len(stack) == 0 {
				continue
			}
			c := &stack[len(stack)-1]
			c.active = c.parent && !c.taken
			c.taken = true
		case "endif":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case "define":
			if active() {
				pp.define(rest, t.Line, onDefine)
			}
		case "undef":
			if active() {
				delete(pp.macros, rest)
				delete(pp.attrs, rest)
				delete(pp.fnMacros, rest)
			}
		}
	}
	return out
}

func (pp *preproc) define(rest string, line int, onDefine func(string, []ctoken.Token, int)) {
	toks := ctoken.Tokenize(rest)
	if len(toks) == 0 || toks[0].Type != ctoken.Ident {
		return
	}
	name := toks[0].Value
	if len(rest) > len(name) && rest[len(name)] == '(' {
		pp.fnMacros[name] = true
		return
	}

	value := toks[1:]
	if pp.attribute(value) {
		pp.attrs[name] = true
		return
	}
	pp.macros[name] = value
	if onDefine != nil {
		onDefine(name, value, line)
	}
}

// attribute reports whether a macro body expands to nothing but other
// attribute macros or compiler attributes.
func (pp *preproc) attribute(value []ctoken.Token) bool {
	for i := 0; i < len(value); i++ {
		t := value[i]
		switch {
		case t.Type == ctoken.Ident && pp.attrs[t.Value]:
		case t.Type == ctoken.Ident && (t.Value == "__attribute__" || t.Value == "__declspec"):
			i = skipGroup(value, i+1)
		default:
			return false
		}
	}
	return true
}

// skipGroup returns the index of the token closing the parenthesised group
// starting at i, or i-1 when there is none.
func skipGroup(toks []ctoken.Token, i int) int {
	if i >= len(toks) || !toks[i].Is("(") {
		return i - 1
	}
	depth := 0
	for ; i < len(toks); i++ {
		switch {
		case toks[i].Is("("):
			depth++
		case toks[i].Is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

func (pp *preproc) defined(name string) bool {
	_, ok := pp.macros[name]
	return ok || pp.attrs[name] || pp.fnMacros[name]
}

func (pp *preproc) condition(kind, rest string) bool {
	switch kind {
	case "ifdef":
		return pp.defined(strings.TrimSpace(rest))
	case "ifndef":
		return !pp.defined(strings.TrimSpace(rest))
	}
	v, ok := pp.eval(ctoken.Tokenize(rest))
	return ok && v != 0
}

// eval computes an integer constant expression over macros.
// Unknown identifiers evaluate to zero, as in #if.
func (pp *preproc) eval(toks []ctoken.Token) (int64, bool) {
	e := &evaluator{pp: pp, toks: toks}
	v, ok := e.or()
	if !ok || e.pos != len(toks) {
		return 0, false
	}
	return v, true
}

type evaluator struct {
	pp    *preproc
	toks  []ctoken.Token
	pos   int
	depth int
}

func (e *evaluator) peek() ctoken.Token {
	if e.pos >= len(e.toks) {
		return ctoken.Token{}
	}
	return e.toks[e.pos]
}

func (e *evaluator) or() (int64, bool) {
	l, ok := e.and()
	for ok && e.peek().Is("||") {
		e.pos++
		var r int64
		r, ok = e.and()
		l = b2i(l != 0 || r != 0)
	}
	return l, ok
}

func (e *evaluator) and() (int64, bool) {
	l, ok := e.bitwise()
	for ok && e.peek().Is("&&") {
		e.pos++
		var r int64
		r, ok = e.bitwise()
		l = b2i(l != 0 && r != 0)
	}
	return l, ok
}

func (e *evaluator) bitwise() (int64, bool) {
	l, ok := e.compare()
	for ok {
		op := e.peek().Value
		if op != "|" && op != "&" && op != "^" {
			break
		}
		e.pos++
		var r int64
		r, ok = e.compare()
		switch op {
		case "|":
			l |= r
		case "&":
			l &= r
		default:
			l ^= r
		}
	}
	return l, ok
}

func (e *evaluator) compare() (int64, bool) {
	l, ok := e.shift()
	for ok {
		op := e.peek().Value
		switch op {
		case "==", "!=", "<", ">", "<=", ">=":
		default:
			return l, ok
		}
		e.pos++
		var r int64
		r, ok = e.shift()
		switch op {
		case "==":
			l = b2i(l == r)
		case "!=":
			l = b2i(l != r)
		case "<":
			l = b2i(l < r)
		case ">":
			l = b2i(l > r)
		case "<=":
			l = b2i(l <= r)
		default:
			l = b2i(l >= r)
		}
	}
	return l, ok
}

func (e *evaluator) shift() (int64, bool) {
	l, ok := e.sum()
	for ok && (e.peek().Is("<<") || e.peek().Is(">>")) {
		op := e.peek().Value
		e.pos++
		var r int64
		r, ok = e.sum()
		if r < 0 || r > 63 {
			return 0, false
		}
		if op == "<<" {
			l <<= r
		} else {
			l >>= r
		}
	}
	return l, ok
}

func (e *evaluator) sum() (int64, bool) {
	l, ok := e.product()
	for ok && (e.peek().Is("+") || e.peek().Is("-")) {
		op := e.peek().Value
		e.pos++
		var r int64
		r, ok = e.product()
		if op == "+" {
			l += r
		} else {
			l -= r
		}
	}
	return l, ok
}

func (e *evaluator) product() (int64, bool) {
	l, ok := e.unary()
	for ok && (e.peek().Is("*") || e.peek().Is("/") || e.peek().Is("%")) {
		op := e.peek().Value
		e.pos++
		var r int64
		r, ok = e.unary()
		switch {
		case op == "*":
			l *= r
		case r == 0:
			return 0, false
		case op == "/":
			l /= r
		default:
			l %= r
		}
	}
	return l, ok
}

func (e *evaluator) unary() (int64, bool) {
	t := e.peek()
	switch {
	case t.Is("!"):
		e.pos++
		v, ok := e.unary()
		return b2i(v == 0), ok
	case t.Is("-"):
		e.pos++
		v, ok := e.unary()
		return -v, ok
	case t.Is("~"):
		e.pos++
		v, ok := e.unary()
		return ^v, ok
	case t.Is("("):
		e.pos++
		if n, ok := castLength(e.toks[e.pos:]); ok {
			e.pos += n
			return e.unary()
		}
		v, ok := e.or()
		if !ok || !e.peek().Is(")") {
			return 0, false
		}
		e.pos++
		return v, true
	case t.Is("defined"):
		e.pos++
		paren := e.peek().Is("(")
		if paren {
			e.pos++
		}
		name := e.peek()
		if name.Type != ctoken.Ident {
			return 0, false
		}
		e.pos++
		if paren {
			if !e.peek().Is(")") {
				return 0, false
			}
			e.pos++
		}
		return b2i(e.pp.defined(name.Value)), true
	case t.Type == ctoken.Number:
		e.pos++
		return parseInt(t.Value)
	case t.Type == ctoken.Char:
		e.pos++
		r, _, _, err := strconv.UnquoteChar(strings.Trim(t.Value, "'"), '\'')
		return int64(r), err == nil
	case t.Type == ctoken.Ident:
		e.pos++
		body, ok := e.pp.macros[t.Value]
		if !ok || e.depth > 16 {
			return 0, true
		}
		sub := &evaluator{pp: e.pp, toks: body, depth: e.depth + 1}
		v, ok := sub.or()
		return v, ok && sub.pos == len(body)
	}
	return 0, false
}

// castLength reports how many tokens after an opening parenthesis form a
// type name and its closing parenthesis, as in "(uint32_t)1".
func castLength(toks []ctoken.Token) (int, bool) {
	n := 0
	for n < len(toks) && toks[n].Type == ctoken.Ident && isTypeWord(toks[n].Value) {
		n++
	}
	for n > 0 && n < len(toks) && toks[n].Is("*") {
		n++
	}
	if n == 0 || n >= len(toks) || !toks[n].Is(")") {
		return 0, false
	}
	return n + 1, true
}

// isTypeWord reports C keywords and <stdint.h> names that can only be types.
func isTypeWord(s string) bool {
	if builtinWords[s] || s == "const" {
		return true
	}
	switch s {
	case "size_t", "ssize_t", "ptrdiff_t", "intptr_t", "uintptr_t":
		return true
	}
	return strings.HasSuffix(s, "_t") && (strings.HasPrefix(s, "int") || strings.HasPrefix(s, "uint"))
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimRight(s, "uUlL")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		// Unsigned constants above MaxInt64 wrap.
		if u, uerr := strconv.ParseUint(s, 0, 64); uerr == nil {
			return int64(u), true
		}
		return 0, false
	}
	return v, true
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
