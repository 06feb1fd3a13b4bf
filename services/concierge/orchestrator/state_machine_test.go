// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

func TestStateMachine_ValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	validTransitions := []struct {
		from datatypes.SessionState
		to   datatypes.SessionState
	}{
		{datatypes.StatePlanning, datatypes.StateExecuting},
		{datatypes.StatePlanning, datatypes.StateSynthesizing},
		{datatypes.StatePlanning, datatypes.StateFailed},

		{datatypes.StateExecuting, datatypes.StateRefining},
		{datatypes.StateExecuting, datatypes.StateSynthesizing},
		{datatypes.StateExecuting, datatypes.StateFailed},

		{datatypes.StateRefining, datatypes.StateExecuting},
		{datatypes.StateRefining, datatypes.StateSynthesizing},
		{datatypes.StateRefining, datatypes.StateFailed},

		{datatypes.StateSynthesizing, datatypes.StateDone},
		{datatypes.StateSynthesizing, datatypes.StateFailed},
	}

	for _, tt := range validTransitions {
		if !sm.CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be valid", tt.from, tt.to)
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	sm := NewStateMachine()

	invalidTransitions := []struct {
		from datatypes.SessionState
		to   datatypes.SessionState
	}{
		// No backward transitions except refining -> executing.
		{datatypes.StateExecuting, datatypes.StatePlanning},
		{datatypes.StateSynthesizing, datatypes.StateExecuting},
		{datatypes.StateSynthesizing, datatypes.StatePlanning},
		{datatypes.StateDone, datatypes.StatePlanning},

		// Terminal states stay terminal.
		{datatypes.StateDone, datatypes.StateFailed},
		{datatypes.StateFailed, datatypes.StatePlanning},
		{datatypes.StateFailed, datatypes.StateDone},

		// No skipping synthesis.
		{datatypes.StateExecuting, datatypes.StateDone},
		{datatypes.StatePlanning, datatypes.StateDone},
	}

	for _, tt := range invalidTransitions {
		if sm.CanTransition(tt.from, tt.to) {
			t.Errorf("expected %s -> %s to be invalid", tt.from, tt.to)
		}
	}
}

func TestStateMachine_TransitionUpdatesSession(t *testing.T) {
	sm := NewStateMachine()
	session := datatypes.NewSearchSession("tenant-a", "q", datatypes.SessionOptions{})

	if err := sm.Transition(session, datatypes.StateExecuting); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != datatypes.StateExecuting {
		t.Errorf("state not updated: %s", session.State)
	}

	err := sm.Transition(session, datatypes.StateDone)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if session.State != datatypes.StateExecuting {
		t.Errorf("rejected transition must not mutate state: %s", session.State)
	}
}
