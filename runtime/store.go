package runtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// Store owns all runtime state: instances, functions, memories, globals and
// tables. Objects obtained from a Store are valid until the Store is closed.
//
// A Store is not safe for concurrent use. Use one Store per goroutine.
type Store struct {
	engine  *Engine
	h       *handle.Handle
	log     *zap.Logger
	id      uuid.UUID
	externs map[value.ExternRef]any
	nextRef value.ExternRef
}

// NewStore creates a store in the given engine.
func NewStore(e *Engine) (*Store, error) {
	abi := e.abi
	h, err := handle.Acquire(e.h, "store", func() (native.Ptr, error) {
		ep, _ := e.h.Ptr()
		p, errp := abi.StoreNew(ep)
		return constructed(abi, "store", p, errp, abi.StoreDelete)
	}, abi.StoreDelete)
	if err != nil {
		return nil, err
	}
	s := &Store{
		engine:  e,
		h:       h,
		id:      uuid.New(),
		externs: make(map[value.ExternRef]any),
	}
	s.log = e.log.With(zap.Stringer("store", s.id))
	return s, nil
}

// ID returns the store's identity, used in store mismatch errors.
func (s *Store) ID() string { return s.id.String() }

// Engine returns the engine the store was created in.
func (s *Store) Engine() *Engine { return s.engine }

// Close releases the store. Every view obtained from it becomes invalid.
func (s *Store) Close() error {
	s.h.Release()
	clear(s.externs)
	return nil
}

// IsValid reports whether the store and its engine are open.
func (s *Store) IsValid() bool { return s.h.IsValid() }

func (s *Store) abi() native.ABI { return s.engine.abi }

func (s *Store) ptr(phase errors.Phase) (native.Ptr, error) {
	return s.h.Use(phase)
}

// SetFuel sets the remaining fuel. The engine must have been created with
// Config.ConsumeFuel.
func (s *Store) SetFuel(fuel uint64) error {
	sp, err := s.ptr(errors.PhaseCall)
	if err != nil {
		return err
	}
	return nativeFailure(s.abi(), errors.PhaseCall, s.abi().StoreSetFuel(sp, fuel))
}

// Fuel returns the remaining fuel.
func (s *Store) Fuel() (uint64, error) {
	sp, err := s.ptr(errors.PhaseCall)
	if err != nil {
		return 0, err
	}
	fuel, errp := s.abi().StoreGetFuel(sp)
	if err := nativeFailure(s.abi(), errors.PhaseCall, errp); err != nil {
		return 0, err
	}
	return fuel, nil
}

// SetEpochDeadline interrupts calls once the engine epoch advances ticks
// past its current value. The engine must have been created with
// Config.EpochInterruption.
func (s *Store) SetEpochDeadline(ticks uint64) error {
	sp, err := s.ptr(errors.PhaseCall)
	if err != nil {
		return err
	}
	s.abi().StoreSetEpochDeadline(sp, ticks)
	return nil
}

// NewExternRef registers v and returns a reference that can be passed to
// externref parameters. Results carrying the reference decode back to v.
func (s *Store) NewExternRef(v any) value.ExternRef {
	s.nextRef++
	s.externs[s.nextRef] = v
	return s.nextRef
}

// ExternRefValue returns the value registered for r.
func (s *Store) ExternRefValue(r value.ExternRef) (any, bool) {
	v, ok := s.externs[r]
	return v, ok
}

// DropExternRef forgets r. Guest code still holding it decodes it as the
// raw reference.
func (s *Store) DropExternRef(r value.ExternRef) {
	delete(s.externs, r)
}

// scoped creates a view that lives exactly as long as the store.
func (s *Store) scoped(phase errors.Phase, what string) (*handle.Handle, error) {
	if _, err := s.ptr(phase); err != nil {
		return nil, err
	}
	return handle.Scoped(s.h, what)
}
