package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// callState tracks a single invocation.
//
//	Idle -> ArgsEncoded -> Invoked -> ResultsDecoded
//	                           |---> Trapped
//	                           '---> Errored
type callState uint8

const (
	stateIdle callState = iota
	stateArgsEncoded
	stateInvoked
	stateResultsDecoded
	stateTrapped
	stateErrored
)

func (s callState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateArgsEncoded:
		return "args_encoded"
	case stateInvoked:
		return "invoked"
	case stateResultsDecoded:
		return "results_decoded"
	case stateTrapped:
		return "trapped"
	case stateErrored:
		return "errored"
	}
	return "unknown"
}

type call struct {
	fn      *Func
	store   *Store
	sp      native.Ptr
	sig     value.Signature
	args    []value.Value
	results []value.Value
	state   callState
}

// begin validates the store and resolves the signature. natural supplies
// parameter kinds when the signature cannot be queried.
func begin(f *Func, store *Store, natural func() ([]value.Kind, error)) (*call, error) {
	if store == nil {
		return nil, errors.InvalidParent(errors.PhaseCall, "store")
	}
	if store != f.store {
		return nil, errors.StoreMismatch(f.store.ID(), store.ID())
	}
	sp, err := f.use(errors.PhaseCall)
	if err != nil {
		return nil, err
	}
	sig, err := f.signature(sp)
	if err != nil {
		params, kerr := natural()
		if kerr != nil {
			return nil, kerr
		}
		store.log.Warn("signature unavailable, using argument kinds",
			zap.Error(err),
			zap.Int("params", len(params)))
		sig = value.Signature{Params: params}
	}
	return &call{fn: f, store: store, sp: sp, sig: sig}, nil
}

func (c *call) checkArity(n int) error {
	if n != len(c.sig.Params) {
		return errors.ArityMismatch("arguments", len(c.sig.Params), n)
	}
	return nil
}

func (c *call) encode(args []any) error {
	if err := c.checkArity(len(args)); err != nil {
		return err
	}
	c.args = make([]value.Value, len(args))
	for i, a := range args {
		if other, ok := a.(*Func); ok && other != nil && other.store != c.store {
			return errors.StoreMismatch(c.store.ID(), other.store.ID())
		}
		v, err := value.EncodeAs(a, c.sig.Params[i])
		if err != nil {
			return at(err, fmt.Sprintf("param[%d]", i))
		}
		c.args[i] = v
	}
	c.state = stateArgsEncoded
	return nil
}

func (c *call) accept(args []value.Value) error {
	if err := c.checkArity(len(args)); err != nil {
		return err
	}
	for i, a := range args {
		if a.Kind() != c.sig.Params[i] {
			return errors.KindMismatch(errors.PhaseEncode, []string{fmt.Sprintf("param[%d]", i)},
				c.sig.Params[i].String(), a.Kind().String())
		}
	}
	c.args = args
	c.state = stateArgsEncoded
	return nil
}

func (c *call) invoke(ctx context.Context) error {
	if c.state != stateArgsEncoded {
		return errors.CallError("invoke in state " + c.state.String())
	}
	c.results = make([]value.Value, len(c.sig.Results))
	for i, k := range c.sig.Results {
		c.results[i] = value.Zero(k)
	}

	abi := c.store.abi()
	trap, errp := abi.FuncCall(ctx, c.sp, c.fn.ext, c.args, c.results)
	if trap != 0 {
		msg := takeTrap(abi, trap)
		if errp != 0 {
			abi.ErrorDelete(errp)
		}
		c.state = stateTrapped
		c.store.log.Debug("call trapped", zap.String("message", msg))
		return errors.Trap(errors.PhaseCall, msg)
	}
	if errp != 0 {
		c.state = stateErrored
		return errors.CallError(takeError(abi, errp))
	}
	c.state = stateInvoked
	return nil
}

func (c *call) decode() (any, error) {
	out := make([]any, len(c.results))
	for i, v := range c.results {
		d, err := c.store.decode(v, c.sig.Results[i], fmt.Sprintf("result[%d]", i))
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	c.state = stateResultsDecoded
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	}
	return out, nil
}

// decode converts a wire value of kind want to its Go form. References map
// back to objects of this store.
func (s *Store) decode(v value.Value, want value.Kind, path string) (any, error) {
	out, err := value.Decode(v, want)
	if err != nil {
		return nil, at(err, path)
	}
	switch r := out.(type) {
	case value.Ref:
		if r.IsNull() {
			return nil, nil
		}
		sp, err := s.ptr(errors.PhaseCall)
		if err != nil {
			return nil, err
		}
		if native.Ptr(r.Store) != sp {
			return nil, at(errors.StoreMismatch(s.ID(), fmt.Sprintf("%#x", r.Store)), path)
		}
		fv, err := newView(s, "func", native.Extern{Kind: native.ExternFunc, Store: native.Ptr(r.Store), Index: r.Index})
		if err != nil {
			return nil, err
		}
		return &Func{view: fv}, nil
	case value.ExternRef:
		if r == 0 {
			return nil, nil
		}
		if host, ok := s.externs[r]; ok {
			return host, nil
		}
		return r, nil
	}
	return out, nil
}

// at sets the path of a structured error that has none.
func at(err error, path string) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = []string{path}
	}
	return err
}
