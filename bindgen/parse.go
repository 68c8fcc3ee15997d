package bindgen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
	"github.com/wippyai/wasmbind/errors"
)

var builtinWords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "bool": true,
}

var qualifiers = map[string]bool{
	"const": true, "volatile": true, "restrict": true, "__restrict": true,
	"extern": true, "register": true, "_Noreturn": true, "_Atomic": true,
}

var storage = map[string]bool{
	"static": true, "inline": true, "__inline": true, "__inline__": true,
}

// parser reads declarations from preprocessed tokens of one header.
type parser struct {
	h    *header
	pp   *preproc
	file string
	toks []ctoken.Token
	pos  int
	log  *zap.Logger
}

func (p *parser) peek() ctoken.Token {
	return p.peekN(0)
}

func (p *parser) peekN(n int) ctoken.Token {
	if p.pos+n >= len(p.toks) {
		return ctoken.Token{Type: ctoken.Punct}
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() ctoken.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) where() string {
	line := 0
	if p.pos < len(p.toks) {
		line = p.toks[p.pos].Line
	} else if len(p.toks) > 0 {
		line = p.toks[len(p.toks)-1].Line
	}
	return fmt.Sprintf("%s:%d", p.file, line)
}

func (p *parser) fail(format string, args ...any) error {
	return errors.New(errors.PhaseGenerate, errors.KindParse).
		Path(p.where()).
		Detail(format, args...).
		Build()
}

func (p *parser) expect(s string) error {
	if !p.peek().Is(s) {
		return p.fail("expected %q, found %q", s, p.peek().Value)
	}
	p.next()
	return nil
}

// skipBalanced consumes a group opened by the current token.
func (p *parser) skipBalanced() {
	open := p.next().Value
	var close string
	switch open {
	case "(":
		close = ")"
	case "{":
		close = "}"
	case "[":
		close = "]"
	default:
		return
	}
	depth := 1
	for !p.eof() && depth > 0 {
		t := p.next()
		switch {
		case t.Is(open):
			depth++
		case t.Is(close):
			depth--
		}
	}
}

// skipStatement consumes tokens through the next top-level semicolon.
func (p *parser) skipStatement() {
	for !p.eof() {
		t := p.peek()
		switch {
		case t.Is(";"):
			p.next()
			return
		case t.Is("(") || t.Is("{") || t.Is("["):
			p.skipBalanced()
		default:
			p.next()
		}
	}
}

// skipAttributes consumes attribute macros and compiler attributes.
func (p *parser) skipAttributes() {
	for {
		t := p.peek()
		switch {
		case t.Type == ctoken.Ident && p.pp.attrs[t.Value]:
			p.next()
		case t.Type == ctoken.Ident && (t.Value == "__attribute__" || t.Value == "__declspec" || t.Value == "__asm__"):
			p.next()
			if p.peek().Is("(") {
				p.skipBalanced()
			}
		default:
			return
		}
	}
}

func (p *parser) parse() error {
	for !p.eof() {
		if err := p.decl(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) decl() error {
	t := p.peek()
	switch {
	case t.Is(";"), t.Is("}"):
		// "}" closes an extern "C" block.
		p.next()
		return nil
	case t.Is("extern") && p.peekN(1).Type == ctoken.String:
		p.next()
		p.next()
		if p.peek().Is("{") {
			p.next()
		}
		return nil
	case t.Type == ctoken.Ident && p.pp.fnMacros[t.Value] && p.peekN(1).Is("("):
		p.next()
		p.skipBalanced()
		p.log.Debug("macro invocation skipped", zap.String("macro", t.Value), zap.String("at", p.where()))
		return nil
	case t.Is("typedef"):
		p.next()
		return p.typedefDecl()
	}

	pos := p.where()
	spec, static, err := p.specifier()
	if err != nil {
		return err
	}
	if p.peek().Is(";") {
		p.next()
		return nil
	}

	for {
		d, err := p.declarator(spec)
		if err != nil {
			return err
		}
		p.skipAttributes()
		if p.peek().Is("=") {
			p.skipStatement()
			p.log.Debug("initialized variable skipped", zap.String("name", d.name), zap.String("at", pos))
			return nil
		}
		if p.peek().Is("{") {
			p.skipBalanced()
			p.log.Debug("inline definition skipped", zap.String("name", d.name), zap.String("at", pos))
			return nil
		}
		switch {
		case d.fn == nil:
			p.log.Debug("variable skipped", zap.String("name", d.name), zap.String("at", pos))
		case static:
			p.log.Debug("static function skipped", zap.String("name", d.name), zap.String("at", pos))
		default:
			p.h.addFunc(&function{name: d.name, sig: *d.fn, pos: pos})
		}
		if !p.peek().Is(",") {
			break
		}
		p.next()
	}
	return p.expect(";")
}

func (p *parser) typedefDecl() error {
	pos := p.where()
	spec, _, err := p.specifier()
	if err != nil {
		return err
	}
	for {
		d, err := p.declarator(spec)
		if err != nil {
			return err
		}
		switch {
		case d.name == "":
			return p.fail("typedef without a name")
		case d.fn != nil:
			p.log.Debug("function typedef skipped", zap.String("name", d.name), zap.String("at", pos))
		default:
			p.h.addTypedef(&typedef{name: d.name, typ: d.typ, pos: pos})
			if r, ok := p.h.recordByKey[d.typ.base]; ok && r.tag == "" && r.typedefName == "" && d.typ.ptr == 0 {
				r.typedefName = d.name
			}
		}
		p.skipAttributes()
		if !p.peek().Is(",") {
			break
		}
		p.next()
	}
	return p.expect(";")
}

// specifier reads declaration specifiers. It reports whether the
// declaration has static or inline storage.
func (p *parser) specifier() (ctype, bool, error) {
	var words []string
	var base string
	static := false

loop:
	for {
		t := p.peek()
		if t.Type != ctoken.Ident {
			break
		}
		switch {
		case qualifiers[t.Value]:
			p.next()
		case storage[t.Value]:
			static = true
			p.next()
		case p.pp.attrs[t.Value], t.Value == "__attribute__", t.Value == "__declspec":
			p.skipAttributes()
		case base != "" || (len(words) > 0 && !builtinWords[t.Value]):
			break loop
		case t.Value == "struct" || t.Value == "union":
			p.next()
			r, err := p.recordSpec(t.Value == "union")
			if err != nil {
				return ctype{}, false, err
			}
			base = r.key
		case t.Value == "enum":
			p.next()
			e, err := p.enumSpec()
			if err != nil {
				return ctype{}, false, err
			}
			base = e.key
		case builtinWords[t.Value]:
			words = append(words, t.Value)
			p.next()
		default:
			base = t.Value
			p.next()
		}
	}

	if len(words) > 0 {
		canon, ok := canonical(words)
		if !ok {
			return ctype{}, false, p.fail("unsupported type %q", strings.Join(words, " "))
		}
		base = canon
	}
	if base == "" {
		return ctype{}, false, p.fail("expected a type, found %q", p.peek().Value)
	}
	return ctype{base: base}, static, nil
}

// canonical folds builtin type words into one spelling.
func canonical(words []string) (string, bool) {
	var unsigned, signed bool
	longs, shorts := 0, 0
	var kind string
	for _, w := range words {
		switch w {
		case "unsigned":
			unsigned = true
		case "signed":
			signed = true
		case "long":
			longs++
		case "short":
			shorts++
		case "int":
			if kind == "" {
				kind = "int"
			}
		default:
			if kind != "" && kind != "int" {
				return "", false
			}
			kind = w
		}
	}

	switch kind {
	case "void", "float", "_Bool", "bool":
		if unsigned || signed || longs > 0 || shorts > 0 {
			return "", false
		}
		return kind, true
	case "double":
		if longs > 0 || unsigned || signed || shorts > 0 {
			return "", false
		}
		return kind, true
	case "char":
		if longs > 0 || shorts > 0 {
			return "", false
		}
		switch {
		case unsigned:
			return "unsigned char", true
		case signed:
			return "signed char", true
		}
		return "char", true
	}

	var s string
	switch {
	case shorts == 1 && longs == 0:
		s = "short"
	case longs == 1 && shorts == 0:
		s = "long"
	case longs == 2 && shorts == 0:
		s = "long long"
	case longs == 0 && shorts == 0:
		s = "int"
	default:
		return "", false
	}
	if unsigned {
		s = "unsigned " + s
	}
	return s, true
}

func (p *parser) recordSpec(union bool) (*record, error) {
	r := &record{union: union, opaque: true, pos: p.where()}
	p.skipAttributes()
	if p.peek().Type == ctoken.Ident {
		r.tag = p.next().Value
	}
	if !p.peek().Is("{") {
		if r.tag == "" {
			return nil, p.fail("anonymous %s without a body", r.keyword())
		}
		return p.h.addRecord(r), nil
	}

	p.next()
	r.opaque = false
	for !p.peek().Is("}") {
		if p.eof() {
			return nil, p.fail("unterminated %s %s", r.keyword(), r.tag)
		}
		spec, _, err := p.specifier()
		if err != nil {
			return nil, err
		}
		if p.peek().Is(";") {
			// anonymous member: struct { union { ... }; }
			r.fields = append(r.fields, field{typ: spec})
			p.next()
			continue
		}
		for {
			d, err := p.declarator(spec)
			if err != nil {
				return nil, err
			}
			f := field{name: d.name, typ: d.typ}
			if d.fn != nil {
				f.typ = ctype{fn: d.fn}
			}
			if p.peek().Is(":") {
				p.next()
				p.next()
				f.bits = true
			}
			r.fields = append(r.fields, f)
			if nested, ok := p.h.recordByKey[spec.base]; ok && nested.tag == "" && nested.owner == nil {
				nested.owner = r
				nested.ownerField = d.name
			}
			if !p.peek().Is(",") {
				break
			}
			p.next()
		}
		if err := p.expect(";"); err != nil {
			return nil, err
		}
	}
	p.next()
	p.skipAttributes()
	return p.h.addRecord(r), nil
}

func (p *parser) enumSpec() (*enum, error) {
	e := &enum{pos: p.where()}
	p.skipAttributes()
	if p.peek().Type == ctoken.Ident {
		e.tag = p.next().Value
	}
	if !p.peek().Is("{") {
		return p.h.addEnum(e), nil
	}

	p.next()
	for !p.peek().Is("}") {
		if p.eof() {
			return nil, p.fail("unterminated enum %s", e.tag)
		}
		name := p.next()
		if name.Type != ctoken.Ident {
			return nil, p.fail("expected enumerator, found %q", name.Value)
		}
		c := enumConst{name: name.Value}
		if p.peek().Is("=") {
			p.next()
			depth := 0
			for !p.eof() {
				t := p.peek()
				if depth == 0 && (t.Is(",") || t.Is("}")) {
					break
				}
				switch {
				case t.Is("("):
					depth++
				case t.Is(")"):
					depth--
				}
				c.value = append(c.value, t)
				p.next()
			}
		}
		e.consts = append(e.consts, c)
		if p.peek().Is(",") {
			p.next()
		}
	}
	p.next()
	return p.h.addEnum(e), nil
}

type declarator struct {
	name string
	typ  ctype
	fn   *signature // set when the declarator declares a function
}

func (p *parser) pointers() int {
	n := 0
	for {
		t := p.peek()
		switch {
		case t.Is("*"):
			n++
			p.next()
		case t.Type == ctoken.Ident && qualifiers[t.Value]:
			p.next()
		default:
			return n
		}
	}
}

func (p *parser) declarator(spec ctype) (declarator, error) {
	typ := spec
	typ.ptr += p.pointers()
	p.skipAttributes()

	if p.peek().Is("(") && p.peekN(1).Is("*") {
		p.next()
		p.next()
		p.pointers()
		var d declarator
		if p.peek().Type == ctoken.Ident {
			d.name = p.next().Value
		}
		if err := p.expect(")"); err != nil {
			return d, err
		}
		if err := p.expect("("); err != nil {
			return d, err
		}
		sig, err := p.params()
		if err != nil {
			return d, err
		}
		sig.ret = typ
		d.typ = ctype{fn: &sig}
		return d, nil
	}

	var d declarator
	if t := p.peek(); t.Type == ctoken.Ident && !builtinWords[t.Value] {
		d.name = p.next().Value
	}
	if p.peek().Is("(") {
		p.next()
		sig, err := p.params()
		if err != nil {
			return d, err
		}
		sig.ret = typ
		d.typ = typ
		d.fn = &sig
		return d, nil
	}
	if p.peek().Is("[") {
		p.next()
		for !p.eof() && !p.peek().Is("]") {
			typ.array = append(typ.array, p.next())
		}
		if err := p.expect("]"); err != nil {
			return d, err
		}
		if p.peek().Is("[") {
			return d, p.fail("multi-dimensional array %s", d.name)
		}
		if len(typ.array) == 0 {
			// flexible or unsized array decays to a pointer
			typ.ptr++
		}
	}
	d.typ = typ
	return d, nil
}

// params reads a parameter list after its opening parenthesis.
func (p *parser) params() (signature, error) {
	var sig signature
	if p.peek().Is(")") {
		p.next()
		return sig, nil
	}
	if p.peek().Is("void") && p.peekN(1).Is(")") {
		p.next()
		p.next()
		return sig, nil
	}

	for {
		if p.peek().Is("...") {
			p.next()
			sig.variadic = true
			return sig, p.expect(")")
		}
		spec, _, err := p.specifier()
		if err != nil {
			return sig, err
		}
		d, err := p.declarator(spec)
		if err != nil {
			return sig, err
		}
		typ := d.typ
		switch {
		case d.fn != nil:
			fsig := *d.fn
			typ = ctype{fn: &fsig}
		case len(typ.array) > 0:
			typ.array = nil
			typ.ptr++
		}
		sig.params = append(sig.params, param{name: d.name, typ: typ})

		switch {
		case p.peek().Is(","):
			p.next()
		case p.peek().Is(")"):
			p.next()
			return sig, nil
		default:
			return sig, p.fail("expected ',' or ')' in parameter list, found %q", p.peek().Value)
		}
	}
}
