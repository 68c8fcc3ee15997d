package runtime

import (
	"context"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// Func is a callable function owned by a store: a guest export, a host
// function created with NewFunc, or a funcref returned by a call.
type Func struct {
	view
	sig *value.Signature
}

// NewFunc creates a host function in s. fn receives arguments matching
// sig.Params and writes sig.Results into results, which arrive zeroed.
// A returned error traps the calling guest with the error's message.
func NewFunc(s *Store, sig value.Signature, fn native.HostFunc) (*Func, error) {
	sp, err := s.ptr(errors.PhaseConstruct)
	if err != nil {
		return nil, err
	}
	for _, k := range append(append([]value.Kind(nil), sig.Params...), sig.Results...) {
		if !k.Valid() {
			return nil, errors.InvalidInput(errors.PhaseConstruct, "invalid value kind "+k.String())
		}
	}
	ext := s.abi().FuncNew(sp, sig, fn)
	if ext.IsNull() {
		return nil, errors.NativeConstruction("func", "")
	}
	v, err := newView(s, "func", ext)
	if err != nil {
		return nil, err
	}
	cached := value.NewSignature(sig.Params, sig.Results)
	return &Func{view: v, sig: &cached}, nil
}

// AsExtern returns the function as an importable extern.
func (f *Func) AsExtern() *Extern { return &Extern{view: f.view} }

// Type returns the function signature, querying it once.
func (f *Func) Type() (value.Signature, error) {
	sp, err := f.use(errors.PhaseCall)
	if err != nil {
		return value.Signature{}, err
	}
	return f.signature(sp)
}

func (f *Func) signature(sp native.Ptr) (value.Signature, error) {
	if f.sig != nil {
		return *f.sig, nil
	}
	abi := f.store.abi()
	sig, errp := abi.FuncType(sp, f.ext)
	if errp != 0 {
		return value.Signature{}, errors.CallError("query signature: " + takeError(abi, errp))
	}
	f.sig = &sig
	return sig, nil
}

// FuncRef returns the wire reference for the function. A nil Func is the
// null reference; a Func whose store is closed fails with invalid_parent.
func (f *Func) FuncRef() (value.Ref, error) {
	if f == nil {
		return value.Ref{}, nil
	}
	if _, err := f.use(errors.PhaseEncode); err != nil {
		return value.Ref{}, err
	}
	return value.Ref{Store: uint64(f.ext.Store), Index: f.ext.Index}, nil
}

// Call invokes the function in store with Go arguments. store must be the
// store the function belongs to.
//
// Zero results return nil, one result returns the scalar, and more return
// []any in declaration order. Funcref results are *Func in the same store
// and externref results are the values registered with Store.NewExternRef.
func (f *Func) Call(ctx context.Context, store *Store, args ...any) (any, error) {
	c, err := begin(f, store, func() ([]value.Kind, error) {
		kinds := make([]value.Kind, len(args))
		for i, a := range args {
			k, err := value.KindOf(a)
			if err != nil {
				return nil, err
			}
			kinds[i] = k
		}
		return kinds, nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.encode(args); err != nil {
		return nil, err
	}
	if err := c.invoke(ctx); err != nil {
		return nil, err
	}
	return c.decode()
}

// CallValues invokes the function with pre-encoded arguments and returns the
// raw results.
func (f *Func) CallValues(ctx context.Context, store *Store, args []value.Value) ([]value.Value, error) {
	c, err := begin(f, store, func() ([]value.Kind, error) {
		kinds := make([]value.Kind, len(args))
		for i, a := range args {
			kinds[i] = a.Kind()
		}
		return kinds, nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.accept(args); err != nil {
		return nil, err
	}
	if err := c.invoke(ctx); err != nil {
		return nil, err
	}
	return c.results, nil
}
