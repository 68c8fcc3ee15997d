package main

import (
	"strings"
	"testing"
)

func TestInteractive_CallCarriesOutput(t *testing.T) {
	path := writeModule(t, printModule())

	m := newInteractiveModel(options{wasmFile: path, backend: "wazero"})
	m.Update(m.loadModule())
	if m.err != nil {
		t.Fatalf("load: %v", m.err)
	}
	defer m.session.close()

	msg, ok := m.callFunction().(callResultMsg)
	if !ok {
		t.Fatal("callFunction did not return callResultMsg")
	}
	if msg.err != nil {
		t.Fatalf("call: %v", msg.err)
	}
	if len(msg.output) != 1 || msg.output[0] != "7" {
		t.Fatalf("output = %q, want [7]", msg.output)
	}
	if m.output != nil {
		t.Fatal("model output changed before the result was delivered")
	}

	m.Update(msg)
	if m.state != stateShowResult {
		t.Errorf("state = %d, want result", m.state)
	}
	if !strings.Contains(m.View(), "7") {
		t.Errorf("view missing host output:\n%s", m.View())
	}

	// A second call starts from an empty buffer.
	msg = m.callFunction().(callResultMsg)
	if len(msg.output) != 1 {
		t.Errorf("output = %q, want one line", msg.output)
	}
}

func TestRunInteractive_RequiresTerminal(t *testing.T) {
	old := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = old }()

	err := runInteractive(options{wasmFile: "unused.wasm", backend: "wazero"})
	if err == nil || !strings.Contains(err.Error(), "requires a terminal") {
		t.Fatalf("error = %v, want terminal error", err)
	}
}
