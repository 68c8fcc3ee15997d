package runtime

import (
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
)

// takeError reads and deletes a native error object.
func takeError(abi native.ABI, errp native.Ptr) string {
	msg := abi.ErrorMessage(errp)
	abi.ErrorDelete(errp)
	return msg
}

// takeTrap reads and deletes a native trap object.
func takeTrap(abi native.ABI, trap native.Ptr) string {
	msg := abi.TrapMessage(trap)
	abi.TrapDelete(trap)
	return msg
}

// constructed converts a constructor's (pointer, error) pair. A pointer
// returned alongside an error is released with del.
func constructed(abi native.ABI, what string, p, errp native.Ptr, del func(native.Ptr)) (native.Ptr, error) {
	if errp != 0 {
		if p != 0 {
			del(p)
		}
		return 0, errors.NativeConstruction(what, takeError(abi, errp))
	}
	return p, nil
}

// nativeFailure converts an error pointer returned by a non-constructor call.
func nativeFailure(abi native.ABI, phase errors.Phase, errp native.Ptr) error {
	if errp == 0 {
		return nil
	}
	return errors.Wrap(phase, errors.KindCallError, nil, takeError(abi, errp))
}
