package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) are registered as host functions,
// named in snake_case: GetHTTPHeader becomes get_http_header. Adjacent
// acronyms are not split, so GetHTTPURL becomes get_httpurl; use
// ExplicitRegistrar for such names.
type Host interface {
	// Namespace returns the import module name (e.g. "env").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact import names when the
// automatic PascalCase-to-snake_case conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// HostRegistry maps import module and field names to Go implementations.
// It is store independent; Resolve materializes the imports of a module in
// a particular store.
type HostRegistry struct {
	funcs   map[string]map[string]*HostFunc
	externs map[string]map[string]*Extern
	mu      sync.RWMutex
}

// HostFunc is a registered host function. Handler is either a Go function
// (see WrapFunc) or, when Raw is set, a native.HostFunc with signature Sig.
type HostFunc struct {
	Handler any
	Raw     native.HostFunc
	Sig     value.Signature
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs:   make(map[string]map[string]*HostFunc),
		externs: make(map[string]map[string]*Extern),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace cannot be empty")
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.RegisterFunc(ns, name, handler); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" {
			continue
		}
		if err := r.RegisterFunc(ns, toSnakeCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc registers a Go function under namespace.name. Its parameter
// and result types must map to value kinds; see WrapFunc.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseLink, "function name cannot be empty")
	}
	sig, err := reflectSignature(reflect.TypeOf(fn))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ns(namespace)[name] = &HostFunc{Handler: fn, Sig: sig}
	return nil
}

// RegisterRaw registers a function that works on wire values directly.
func (r *HostRegistry) RegisterRaw(namespace, name string, sig value.Signature, fn native.HostFunc) error {
	if namespace == "" || name == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace and name are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ns(namespace)[name] = &HostFunc{Raw: fn, Sig: value.NewSignature(sig.Params, sig.Results)}
	return nil
}

// Define makes an existing extern, such as another instance's memory,
// available as namespace.name. It only resolves in the extern's store.
func (r *HostRegistry) Define(namespace, name string, x *Extern) error {
	if namespace == "" || name == "" {
		return errors.InvalidInput(errors.PhaseLink, "namespace and name are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.externs[namespace] == nil {
		r.externs[namespace] = make(map[string]*Extern)
	}
	r.externs[namespace][name] = x
	return nil
}

// DefineInstance defines every export of inst under namespace.
func (r *HostRegistry) DefineInstance(namespace string, inst *Instance) error {
	exports, err := inst.Exports()
	if err != nil {
		return err
	}
	for _, x := range exports {
		if err := r.Define(namespace, x.Name(), x); err != nil {
			return err
		}
	}
	return nil
}

func (r *HostRegistry) ns(namespace string) map[string]*HostFunc {
	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*HostFunc)
	}
	return r.funcs[namespace]
}

// Resolve produces the imports of module in store, in import order.
// Defined externs take precedence over registered functions.
func (r *HostRegistry) Resolve(store *Store, module *Module) ([]*Extern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	imports := module.Imports()
	out := make([]*Extern, len(imports))
	for i, imp := range imports {
		path := []string{imp.Module, imp.Name}
		if x := r.externs[imp.Module][imp.Name]; x != nil {
			if x.Kind() != imp.Type.Kind {
				return nil, errors.KindMismatch(errors.PhaseLink, path, imp.Type.Kind.String(), x.Kind().String())
			}
			out[i] = x
			continue
		}
		hf := r.funcs[imp.Module][imp.Name]
		if hf == nil {
			return nil, errors.NotFound(errors.PhaseLink, "import", imp.Module+"."+imp.Name)
		}
		if imp.Type.Kind != native.ExternFunc {
			return nil, errors.KindMismatch(errors.PhaseLink, path, imp.Type.Kind.String(), native.ExternFunc.String())
		}
		if !hf.Sig.Equal(imp.Type.Func) {
			return nil, errors.KindMismatch(errors.PhaseLink, path, imp.Type.Func.String(), hf.Sig.String())
		}
		var (
			f   *Func
			err error
		)
		if hf.Raw != nil {
			f, err = NewFunc(store, hf.Sig, hf.Raw)
		} else {
			f, err = WrapFunc(store, hf.Handler)
		}
		if err != nil {
			return nil, err
		}
		out[i] = f.AsExtern()
	}
	return out, nil
}

// Instantiate resolves module's imports and instantiates it in store.
func (r *HostRegistry) Instantiate(ctx context.Context, store *Store, module *Module) (*Instance, error) {
	imports, err := r.Resolve(store, module)
	if err != nil {
		return nil, err
	}
	return NewInstance(ctx, store, module, imports...)
}

var (
	contextType   = reflect.TypeFor[context.Context]()
	errorType     = reflect.TypeFor[error]()
	externRefType = reflect.TypeFor[value.ExternRef]()
	funcType      = reflect.TypeFor[*Func]()
	v128Type      = reflect.TypeFor[[16]byte]()
)

// goKind maps a Go parameter or result type to its wire kind.
func goKind(t reflect.Type) (value.Kind, bool) {
	switch t {
	case externRefType:
		return value.KindExternRef, true
	case funcType:
		return value.KindFuncRef, true
	case v128Type:
		return value.KindV128, true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return value.KindI32, true
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return value.KindI64, true
	case reflect.Float32:
		return value.KindF32, true
	case reflect.Float64:
		return value.KindF64, true
	}
	return 0, false
}

// reflectSignature derives the wire signature of a Go function. A leading
// context.Context parameter and a trailing error result are not part of it.
func reflectSignature(t reflect.Type) (value.Signature, error) {
	if t == nil || t.Kind() != reflect.Func {
		return value.Signature{}, errors.New(errors.PhaseLink, errors.KindKindMismatch).
			Expected("func").
			Actual(fmt.Sprint(t)).
			Detail("handler must be a function").
			Build()
	}
	if t.IsVariadic() {
		return value.Signature{}, errors.Unsupported(errors.PhaseLink, "variadic host function")
	}

	var sig value.Signature
	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		if i == 0 && in == contextType {
			continue
		}
		k, ok := goKind(in)
		if !ok {
			return value.Signature{}, errors.Unsupported(errors.PhaseLink, fmt.Sprintf("parameter %d has type %s", i, in))
		}
		sig.Params = append(sig.Params, k)
	}
	for i := 0; i < t.NumOut(); i++ {
		out := t.Out(i)
		if i == t.NumOut()-1 && out == errorType {
			continue
		}
		k, ok := goKind(out)
		if !ok {
			return value.Signature{}, errors.Unsupported(errors.PhaseLink, fmt.Sprintf("result %d has type %s", i, out))
		}
		sig.Results = append(sig.Results, k)
	}
	return sig, nil
}

// WrapFunc creates a host function in store from a Go function such as
// func(ctx context.Context, a, b int32) (int32, error).
//
// Integer and float types map to i32, i64, f32 and f64 by width (bool and
// unsigned types included), [16]byte to v128, value.ExternRef to externref
// and *Func to funcref. A non-nil error result traps the caller.
func WrapFunc(store *Store, fn any) (*Func, error) {
	rt := reflect.TypeOf(fn)
	sig, err := reflectSignature(rt)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(fn)
	hasCtx := rt.NumIn() > 0 && rt.In(0) == contextType
	hasErr := rt.NumOut() > 0 && rt.Out(rt.NumOut()-1) == errorType

	return NewFunc(store, sig, func(ctx context.Context, args, results []value.Value) error {
		in := make([]reflect.Value, 0, rt.NumIn())
		if hasCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		for i, a := range args {
			v, err := store.hostArg(a, rt.In(len(in)), i)
			if err != nil {
				return err
			}
			in = append(in, v)
		}

		out := rv.Call(in)
		if hasErr {
			if e := out[len(out)-1]; !e.IsNil() {
				return e.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		for i, o := range out {
			v, err := value.EncodeAs(hostResult(o), sig.Results[i])
			if err != nil {
				return at(err, fmt.Sprintf("result[%d]", i))
			}
			results[i] = v
		}
		return nil
	})
}

// hostArg converts a wire argument to the Go parameter type t.
func (s *Store) hostArg(a value.Value, t reflect.Type, i int) (reflect.Value, error) {
	switch t {
	case externRefType:
		r, _ := a.ExternRef()
		return reflect.ValueOf(r), nil
	case funcType:
		d, err := s.decode(a, value.KindFuncRef, fmt.Sprintf("param[%d]", i))
		if err != nil {
			return reflect.Value{}, err
		}
		if d == nil {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf(d), nil
	}
	d, err := value.Decode(a, a.Kind())
	if err != nil {
		return reflect.Value{}, at(err, fmt.Sprintf("param[%d]", i))
	}
	if t.Kind() == reflect.Bool {
		n, _ := d.(int32)
		return reflect.ValueOf(n != 0).Convert(t), nil
	}
	return reflect.ValueOf(d).Convert(t), nil
}

// hostResult unwraps named basic types so they encode like their
// underlying type.
func hostResult(o reflect.Value) any {
	switch o.Type() {
	case externRefType, funcType, v128Type:
		return o.Interface()
	}
	switch o.Kind() {
	case reflect.Bool:
		return o.Bool()
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return int32(o.Int())
	case reflect.Int, reflect.Int64:
		return o.Int()
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return uint32(o.Uint())
	case reflect.Uint, reflect.Uint64:
		return o.Uint()
	case reflect.Float32:
		return float32(o.Float())
	case reflect.Float64:
		return o.Float()
	}
	return o.Interface()
}

// toSnakeCase converts PascalCase to snake_case. A run of capitals is one
// word: GetHTTPHeader -> get_http_header, GetHTTPURL -> get_httpurl.
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
