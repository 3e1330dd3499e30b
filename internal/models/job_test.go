package models

import "testing"

func TestStateMachineEdges(t *testing.T) {
	terminal := []JobState{StateCompleted, StateFailed, StateCancelled, StateTimedOut}

	if !CanTransition(StatePending, StateRunning) {
		t.Fatal("pending -> running must be legal")
	}
	if !CanTransition(StatePending, StateCancelled) {
		t.Fatal("pending -> cancelled must be legal")
	}
	for _, to := range []JobState{StateCompleted, StateFailed, StateTimedOut} {
		if CanTransition(StatePending, to) {
			t.Fatalf("pending -> %s must be illegal", to)
		}
	}

	for _, to := range terminal {
		if !CanTransition(StateRunning, to) {
			t.Fatalf("running -> %s must be legal", to)
		}
	}
	if CanTransition(StateRunning, StatePending) {
		t.Fatal("running -> pending must be illegal")
	}

	all := append([]JobState{StatePending, StateRunning}, terminal...)
	for _, from := range terminal {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal state %s must admit no transition (tried %s)", from, to)
			}
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []JobState{StateCompleted, StateFailed, StateCancelled, StateTimedOut} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	for _, s := range []JobState{StatePending, StateRunning} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}
