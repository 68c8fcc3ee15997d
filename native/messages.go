package native

// Messages implements the error and trap half of the ABI. Backends embed it.
type Messages struct {
	errs  *Table[string]
	traps *Table[string]
}

// NewMessages creates empty error and trap arenas.
func NewMessages() Messages {
	return Messages{
		errs:  NewTable[string](),
		traps: NewTable[string](),
	}
}

// ErrorNew allocates an error object carrying msg.
func (m Messages) ErrorNew(msg string) Ptr { return m.errs.Put(msg) }

func (m Messages) ErrorMessage(err Ptr) string {
	msg, _ := m.errs.Get(err)
	return msg
}

func (m Messages) ErrorDelete(err Ptr) { m.errs.Delete(err) }

// TrapNew allocates a trap object. The store is accepted for C API parity.
func (m Messages) TrapNew(_ Ptr, msg string) Ptr { return m.traps.Put(msg) }

func (m Messages) TrapMessage(trap Ptr) string {
	msg, _ := m.traps.Get(trap)
	return msg
}

func (m Messages) TrapDelete(trap Ptr) { m.traps.Delete(trap) }

// LiveErrors returns the number of error objects not yet deleted.
func (m Messages) LiveErrors() int { return m.errs.Live() }

// LiveTraps returns the number of trap objects not yet deleted.
func (m Messages) LiveTraps() int { return m.traps.Live() }
