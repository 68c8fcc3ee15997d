package declsort

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/wippyai/wasmbind/errors"
)

// File is a Go source file split into its header and declarations.
type File struct {
	// Header holds everything up to the end of the import block: build
	// constraints, file comments, the package clause and imports.
	Header string
	Nodes  []*Node
	// Trailer holds comments after the last declaration.
	Trailer string
}

type scanner struct {
	src     []byte
	file    *ast.File
	tfile   *token.File
	imports map[string]bool
}

// Parse splits src into a header and one node per top-level spec.
// Grouped type blocks are always split. Grouped const and var blocks are
// split unless a const spec relies on iota or implicit repetition, in which
// case the group stays one node named after its first constant.
func Parse(src []byte) (*File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, errors.ParseFailed(errors.PhaseResolve, "go source", err)
	}
	s := &scanner{src: src, file: f, tfile: fset.File(f.Pos()), imports: importNames(f)}

	headerEnd := s.lineEnd(f.Name.End())
	first := 0
	for _, d := range f.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			break
		}
		headerEnd = s.lineEnd(gd.End())
		first++
	}

	out := &File{Header: string(src[:headerEnd])}
	aliases := make(map[string]string)
	prev := headerEnd
	for _, d := range f.Decls[first:] {
		end := s.lineEnd(d.End())
		switch d := d.(type) {
		case *ast.FuncDecl:
			out.Nodes = append(out.Nodes, s.funcNode(d, s.text(prev, end)))
		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				return nil, errors.InvalidInput(errors.PhaseResolve, "import declaration after other declarations")
			}
			if d.Lparen.IsValid() && splittable(d) {
				out.Nodes = append(out.Nodes, s.splitNodes(d, prev, aliases)...)
			} else {
				out.Nodes = append(out.Nodes, s.groupNode(d, s.text(prev, end), aliases))
			}
		}
		prev = end
	}
	out.Trailer = strings.TrimSpace(string(src[prev:]))

	if len(aliases) > 0 {
		for _, n := range out.Nodes {
			for i, d := range n.Deps {
				if to, ok := aliases[d]; ok {
					n.Deps[i] = to
				}
			}
			n.Deps = dedupe(n.Deps)
		}
	}
	return out, nil
}

func (s *scanner) off(p token.Pos) int {
	return s.tfile.Offset(p)
}

// lineEnd extends p over a trailing line comment on the same line.
func (s *scanner) lineEnd(p token.Pos) int {
	i := s.off(p)
	j := i
	for j < len(s.src) && (s.src[j] == ' ' || s.src[j] == '\t') {
		j++
	}
	if j+1 < len(s.src) && s.src[j] == '/' && s.src[j+1] == '/' {
		for j < len(s.src) && s.src[j] != '\n' {
			j++
		}
		return j
	}
	return i
}

func (s *scanner) text(from, to int) string {
	return strings.TrimSpace(string(s.src[from:to]))
}

func (s *scanner) funcNode(d *ast.FuncDecl, text string) *Node {
	n := &Node{Name: d.Name.Name, Text: text, Kind: KindFunc}
	own := map[string]bool{}
	if d.Recv != nil && len(d.Recv.List) > 0 {
		recv := receiverName(d.Recv.List[0].Type)
		n.Name = recv + "." + d.Name.Name
		n.Deps = append(n.Deps, recv)
	} else {
		own[d.Name.Name] = true
	}
	if d.Recv != nil {
		n.Deps = append(n.Deps, s.refs(d.Recv, own)...)
	}
	n.Deps = append(n.Deps, s.refs(d.Type, own)...)
	if d.Body != nil {
		n.Deps = append(n.Deps, s.refs(d.Body, own)...)
	}
	n.Deps = dedupe(n.Deps)
	return n
}

// groupNode keeps a whole declaration as one node. Every name it declares
// beyond the first becomes an alias of the node.
func (s *scanner) groupNode(d *ast.GenDecl, text string, aliases map[string]string) *Node {
	names := declNames(d)
	n := &Node{Text: text, Kind: genKind(d)}
	if len(names) > 0 {
		n.Name = names[0]
	}
	own := make(map[string]bool, len(names))
	for _, name := range names {
		own[name] = true
		if name != n.Name && name != "_" {
			aliases[name] = n.Name
		}
	}
	for _, spec := range d.Specs {
		n.Deps = append(n.Deps, s.refs(spec, own)...)
	}
	n.Deps = dedupe(n.Deps)
	return n
}

// splitNodes emits one standalone declaration per spec of a grouped block.
// Comments ahead of the block go with the first spec.
func (s *scanner) splitNodes(d *ast.GenDecl, prev int, aliases map[string]string) []*Node {
	lead := s.text(prev, s.off(d.Pos()))
	nodes := make([]*Node, 0, len(d.Specs))
	for i, spec := range d.Specs {
		var b strings.Builder
		if i == 0 && lead != "" {
			b.WriteString(lead)
			b.WriteByte('\n')
		}
		start := spec.Pos()
		if doc := specDoc(spec); doc != nil {
			b.WriteString(s.text(s.off(doc.Pos()), s.off(doc.End())))
			b.WriteByte('\n')
		}
		b.WriteString(d.Tok.String())
		b.WriteByte(' ')
		b.WriteString(s.text(s.off(start), s.lineEnd(spec.End())))

		single := &ast.GenDecl{Tok: d.Tok, Specs: []ast.Spec{spec}}
		nodes = append(nodes, s.groupNode(single, b.String(), aliases))
	}
	return nodes
}

// refs collects identifiers in n that may name top-level declarations.
// Selectors, field names, composite literal keys and labels are skipped,
// as are identifiers bound in a local scope.
func (s *scanner) refs(n ast.Node, own map[string]bool) []string {
	var out []string
	var visit func(ast.Node) bool
	walk := func(n ast.Node) {
		if n != nil {
			ast.Inspect(n, visit)
		}
	}
	visit = func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			if id, ok := n.X.(*ast.Ident); ok && id.Obj == nil && s.imports[id.Name] {
				return false
			}
			walk(n.X)
			return false
		case *ast.Field:
			walk(n.Type)
			return false
		case *ast.KeyValueExpr:
			if _, ok := n.Key.(*ast.Ident); !ok {
				walk(n.Key)
			}
			walk(n.Value)
			return false
		case *ast.LabeledStmt:
			walk(n.Stmt)
			return false
		case *ast.BranchStmt:
			return false
		case *ast.Ident:
			if n.Name == "_" || own[n.Name] {
				return false
			}
			if n.Obj == nil && types.Universe.Lookup(n.Name) != nil {
				return false
			}
			if n.Obj != nil && s.file.Scope.Lookup(n.Name) != n.Obj {
				return false
			}
			out = append(out, n.Name)
		}
		return true
	}
	walk(n)
	return out
}

func importNames(f *ast.File) map[string]bool {
	names := make(map[string]bool, len(f.Imports))
	for _, spec := range f.Imports {
		if spec.Name != nil {
			names[spec.Name.Name] = true
			continue
		}
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		names[path.Base(p)] = true
	}
	return names
}

func splittable(d *ast.GenDecl) bool {
	if d.Tok != token.CONST {
		return true
	}
	for _, spec := range d.Specs {
		vs := spec.(*ast.ValueSpec)
		if len(vs.Values) == 0 {
			return false
		}
		for _, v := range vs.Values {
			if usesIota(v) {
				return false
			}
		}
	}
	return true
}

func usesIota(e ast.Expr) bool {
	found := false
	ast.Inspect(e, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == "iota" {
			found = true
		}
		return !found
	})
	return found
}

func genKind(d *ast.GenDecl) Kind {
	switch d.Tok {
	case token.TYPE:
		return KindType
	case token.CONST:
		if len(d.Specs) == 1 {
			vs := d.Specs[0].(*ast.ValueSpec)
			if len(vs.Values) == 1 {
				if _, ok := vs.Values[0].(*ast.Ident); ok {
					return KindConstAlias
				}
			}
		}
	}
	return KindConstValue
}

func declNames(d *ast.GenDecl) []string {
	var names []string
	for _, spec := range d.Specs {
		switch spec := spec.(type) {
		case *ast.TypeSpec:
			names = append(names, spec.Name.Name)
		case *ast.ValueSpec:
			for _, id := range spec.Names {
				names = append(names, id.Name)
			}
		}
	}
	return names
}

func specDoc(spec ast.Spec) *ast.CommentGroup {
	switch spec := spec.(type) {
	case *ast.TypeSpec:
		return spec.Doc
	case *ast.ValueSpec:
		return spec.Doc
	}
	return nil
}

func receiverName(e ast.Expr) string {
	for {
		switch t := e.(type) {
		case *ast.StarExpr:
			e = t.X
		case *ast.ParenExpr:
			e = t.X
		case *ast.IndexExpr:
			e = t.X
		case *ast.IndexListExpr:
			e = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	slices.Sort(names)
	return slices.Compact(names)
}
