package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConstruct Phase = "construct" // native constructors
	PhaseRelease   Phase = "release"   // native destructors
	PhaseEncode    Phase = "encode"    // Go to wire value
	PhaseDecode    Phase = "decode"    // wire value to Go
	PhaseCall      Phase = "call"      // typed call protocol
	PhaseResolve   Phase = "resolve"   // declaration ordering
	PhaseGenerate  Phase = "generate"  // header to Go generation
	PhaseManifest  Phase = "manifest"  // artifact manifest
	PhaseLink      Phase = "link"      // import resolution and host registration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidParent      Kind = "invalid_parent"
	KindNativeConstruction Kind = "native_construction"
	KindTrap               Kind = "trap"
	KindCallError          Kind = "call_error"
	KindKindMismatch       Kind = "kind_mismatch"
	KindArityMismatch      Kind = "arity_mismatch"
	KindStoreMismatch      Kind = "store_mismatch"
	KindCycleDetected      Kind = "cycle_detected"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindOverflow           Kind = "overflow"
	KindUnsupported        Kind = "unsupported"
	KindHashMismatch       Kind = "hash_mismatch"
	KindParse              Kind = "parse"
)

// Error is the structured error type used throughout the binding
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string
	Actual   string
	Store    string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": ")
		switch {
		case e.Expected != "" && e.Actual != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		case e.Expected != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		default:
			b.WriteString("got ")
			b.WriteString(e.Actual)
		}
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Store != "" {
		b.WriteString(" (store ")
		b.WriteString(e.Store)
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks that only care about the category.
var (
	ErrInvalidParent      = &Error{Kind: KindInvalidParent}
	ErrNativeConstruction = &Error{Kind: KindNativeConstruction}
	ErrTrap               = &Error{Kind: KindTrap}
	ErrCallError          = &Error{Kind: KindCallError}
	ErrKindMismatch       = &Error{Kind: KindKindMismatch}
	ErrArityMismatch      = &Error{Kind: KindArityMismatch}
	ErrStoreMismatch      = &Error{Kind: KindStoreMismatch}
	ErrCycleDetected      = &Error{Kind: KindCycleDetected}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrOverflow           = &Error{Kind: KindOverflow}
	ErrUnsupported        = &Error{Kind: KindUnsupported}
	ErrHashMismatch       = &Error{Kind: KindHashMismatch}
	ErrParse              = &Error{Kind: KindParse}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Expected sets the expected kind, arity or type name
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets the observed kind, arity or type name
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Store sets the store identity
func (b *Builder) Store(id string) *Builder {
	b.err.Store = id
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidParent creates an error for construction or use on an invalid owner
func InvalidParent(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidParent,
		Detail: fmt.Sprintf("%s is closed or owned by a closed resource", what),
	}
}

// NativeConstruction creates a native constructor failure error.
// msg is the native error message and may be empty.
func NativeConstruction(what, msg string) *Error {
	detail := what + " constructor failed"
	if msg != "" {
		detail += ": " + msg
	}
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindNativeConstruction,
		Detail: detail,
	}
}

// Trap creates a guest trap error
func Trap(phase Phase, msg string) *Error {
	if msg == "" {
		msg = "unknown trap"
	}
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Detail: msg,
	}
}

// CallError creates a call machinery failure error
func CallError(msg string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCallError,
		Detail: msg,
	}
}

// KindMismatch creates a value kind mismatch error
func KindMismatch(phase Phase, path []string, expected, actual string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindKindMismatch,
		Path:     path,
		Expected: expected,
		Actual:   actual,
	}
}

// ArityMismatch creates an argument count mismatch error
func ArityMismatch(what string, expected, actual int) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindArityMismatch,
		Expected: fmt.Sprintf("%d %s", expected, what),
		Actual:   fmt.Sprintf("%d", actual),
	}
}

// StoreMismatch creates an error for using a handle with a foreign store
func StoreMismatch(owner, used string) *Error {
	return &Error{
		Phase:    PhaseCall,
		Kind:     KindStoreMismatch,
		Expected: "store " + owner,
		Actual:   "store " + used,
		Store:    used,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		Expected: target,
		Detail:   fmt.Sprintf("value %v overflows %s", value, target),
		Value:    value,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// HashMismatch creates a content hash mismatch error
func HashMismatch(path, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseManifest,
		Kind:     KindHashMismatch,
		Path:     []string{path},
		Expected: expected,
		Actual:   actual,
	}
}

// ParseFailed creates a parse error for the given input kind
func ParseFailed(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindParse,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// CycleError reports declarations that could not be ordered.
// Names lists every node left once a full scan made no progress.
type CycleError struct {
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", PhaseResolve, KindCycleDetected, strings.Join(e.Names, ", "))
}

// Is reports whether target matches this error type
func (e *CycleError) Is(target error) bool {
	switch t := target.(type) {
	case *CycleError:
		return true
	case *Error:
		return t.Kind == KindCycleDetected && (t.Phase == "" || t.Phase == PhaseResolve)
	}
	return false
}
