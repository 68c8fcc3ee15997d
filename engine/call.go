package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// hostTrap carries a host function failure through wazero's panic recovery.
type hostTrap struct {
	msg string
}

func (t *hostTrap) Error() string { return t.msg }

// FuncNew implements native.ABI.
func (b *Backend) FuncNew(sp native.Ptr, sig value.Signature, fn native.HostFunc) native.Extern {
	st, ok := b.stores.Get(sp)
	if !ok {
		return native.Extern{}
	}
	return st.addExtern(sp, &externObj{
		kind: native.ExternFunc,
		sig:  value.NewSignature(sig.Params, sig.Results),
		host: fn,
	})
}

// FuncType implements native.ABI.
func (b *Backend) FuncType(sp native.Ptr, e native.Extern) (value.Signature, native.Ptr) {
	_, obj, errp := b.lookup(sp, e, native.ExternFunc)
	if errp != 0 {
		return value.Signature{}, errp
	}
	return value.NewSignature(obj.sig.Params, obj.sig.Results), 0
}

// FuncCall implements native.ABI. results is written only when both the
// returned trap and error are null.
func (b *Backend) FuncCall(ctx context.Context, sp native.Ptr, e native.Extern, args, results []value.Value) (native.Ptr, native.Ptr) {
	st, obj, errp := b.lookup(sp, e, native.ExternFunc)
	if errp != 0 {
		return 0, errp
	}
	if err := checkArgs(obj.sig, args, results); err != nil {
		return 0, b.ErrorNew(err.Error())
	}

	if obj.host != nil {
		out := zeros(obj.sig.Results)
		if err := obj.host(ctx, args, out); err != nil {
			return b.TrapNew(sp, err.Error()), 0
		}
		if err := checkKinds(obj.sig.Results, out); err != nil {
			return 0, b.ErrorNew(err.Error())
		}
		copy(results, out)
		return 0, 0
	}

	params, err := lower(nil, args)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}

	ctx, leave, ok := st.enter(ctx)
	if !ok {
		return b.TrapNew(sp, errInterrupt.Error()), 0
	}
	stack, err := obj.fn.Call(ctx, params...)
	leave()
	if err != nil {
		return b.TrapNew(sp, trapMessage(ctx, err)), 0
	}

	out, err := lift(obj.sig.Results, stack)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	copy(results, out)
	return 0, 0
}

// hostAdapter wraps a host function for a wazero host module.
func hostAdapter(obj *externObj) api.GoModuleFunc {
	sig, fn := obj.sig, obj.host
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		args, err := lift(sig.Params, stack)
		if err != nil {
			panic(&hostTrap{msg: err.Error()})
		}
		out := zeros(sig.Results)
		if err := fn(ctx, args, out); err != nil {
			panic(&hostTrap{msg: err.Error()})
		}
		if err := checkKinds(sig.Results, out); err != nil {
			panic(&hostTrap{msg: err.Error()})
		}
		if _, err := lower(stack[:0], out); err != nil {
			panic(&hostTrap{msg: err.Error()})
		}
	}
}

func checkArgs(sig value.Signature, args, results []value.Value) error {
	if len(args) != len(sig.Params) {
		return fmt.Errorf("wazero: expected %d arguments, got %d", len(sig.Params), len(args))
	}
	if len(results) != len(sig.Results) {
		return fmt.Errorf("wazero: expected %d result slots, got %d", len(sig.Results), len(results))
	}
	return checkKinds(sig.Params, args)
}

func checkKinds(kinds []value.Kind, vals []value.Value) error {
	for i, k := range kinds {
		if vals[i].Kind() != k {
			return fmt.Errorf("wazero: value %d: expected %s, got %s", i, k, vals[i].Kind())
		}
	}
	return nil
}

func zeros(kinds []value.Kind) []value.Value {
	out := make([]value.Value, len(kinds))
	for i, k := range kinds {
		out[i] = value.Zero(k)
	}
	return out
}

// lower appends the stack encoding of vals to dst. v128 takes two slots.
func lower(dst []uint64, vals []value.Value) ([]uint64, error) {
	for i, v := range vals {
		lo, hi := v.Bits()
		switch v.Kind() {
		case value.KindV128:
			dst = append(dst, lo, hi)
		case value.KindFuncRef:
			if !v.IsNull() {
				return nil, fmt.Errorf("wazero: value %d: non-null funcref is not supported", i)
			}
			dst = append(dst, 0)
		default:
			dst = append(dst, lo)
		}
	}
	return dst, nil
}

// lift decodes stack slots into values of the given kinds.
func lift(kinds []value.Kind, stack []uint64) ([]value.Value, error) {
	out := make([]value.Value, len(kinds))
	pos := 0
	for i, k := range kinds {
		need := 1
		if k == value.KindV128 {
			need = 2
		}
		if pos+need > len(stack) {
			return nil, fmt.Errorf("wazero: stack has %d slots, need more for %s", len(stack), k)
		}
		switch k {
		case value.KindV128:
			out[i] = value.FromBits(k, stack[pos], stack[pos+1])
		case value.KindFuncRef:
			if stack[pos] != 0 {
				return nil, fmt.Errorf("wazero: value %d: non-null funcref is not supported", i)
			}
			out[i] = value.Zero(k)
		default:
			out[i] = value.FromBits(k, stack[pos], 0)
		}
		pos += need
	}
	return out, nil
}

func apiTypes(kinds []value.Kind) []api.ValueType {
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		switch k {
		case value.KindI32:
			out[i] = api.ValueTypeI32
		case value.KindI64:
			out[i] = api.ValueTypeI64
		case value.KindF32:
			out[i] = api.ValueTypeF32
		case value.KindF64:
			out[i] = api.ValueTypeF64
		case value.KindExternRef:
			out[i] = api.ValueTypeExternref
		case value.KindFuncRef:
			out[i] = 0x70
		case value.KindV128:
			out[i] = 0x7b
		}
	}
	return out
}

// isTrap reports whether an instantiation failure came from running guest
// code rather than from linking.
func isTrap(err error) bool {
	var ht *hostTrap
	var exit *sys.ExitError
	if errors.As(err, &ht) || errors.As(err, &exit) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wasm error:") || strings.Contains(msg, "(recovered by wazero)")
}

// trapMessage reduces a wazero call error to a one-line trap message.
func trapMessage(ctx context.Context, err error) string {
	if errors.Is(context.Cause(ctx), errInterrupt) {
		return errInterrupt.Error()
	}
	var ht *hostTrap
	if errors.As(err, &ht) {
		return ht.msg
	}
	var exit *sys.ExitError
	if errors.As(err, &exit) {
		return fmt.Sprintf("module closed with exit code %d", exit.ExitCode())
	}

	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if i := strings.Index(msg, "wasm error: "); i >= 0 {
		msg = msg[i+len("wasm error: "):]
	}
	return strings.TrimSuffix(msg, " (recovered by wazero)")
}
