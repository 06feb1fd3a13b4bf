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
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// ErrInvalidTransition is returned for a disallowed state change.
var ErrInvalidTransition = errors.New("invalid state transition")

// StateMachine enforces the session transition graph.
//
// The graph is monotonic except for the refinement loop:
//
//	PLANNING → EXECUTING        : Proposals dispatched
//	PLANNING → SYNTHESIZING     : No proposals, answer from what exists
//	EXECUTING → REFINING        : Evidence insufficient, budget remains
//	EXECUTING → SYNTHESIZING    : Evidence sufficient or budget exhausted
//	REFINING → EXECUTING        : Refined proposals dispatched
//	REFINING → SYNTHESIZING     : Refinement proposed nothing new
//	SYNTHESIZING → DONE         : Answer produced
//	* → FAILED                  : Unrecoverable provider failure
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[datatypes.SessionState]map[datatypes.SessionState]bool
}

// NewStateMachine creates a state machine with the full transition graph.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[datatypes.SessionState]map[datatypes.SessionState]bool),
	}
	for _, state := range datatypes.AllSessionStates() {
		sm.transitions[state] = make(map[datatypes.SessionState]bool)
	}

	sm.addTransition(datatypes.StatePlanning, datatypes.StateExecuting)
	sm.addTransition(datatypes.StatePlanning, datatypes.StateSynthesizing)

	sm.addTransition(datatypes.StateExecuting, datatypes.StateRefining)
	sm.addTransition(datatypes.StateExecuting, datatypes.StateSynthesizing)

	sm.addTransition(datatypes.StateRefining, datatypes.StateExecuting)
	sm.addTransition(datatypes.StateRefining, datatypes.StateSynthesizing)

	sm.addTransition(datatypes.StateSynthesizing, datatypes.StateDone)

	// Any non-terminal state can fail.
	for _, state := range datatypes.AllSessionStates() {
		if !state.Terminal() {
			sm.addTransition(state, datatypes.StateFailed)
		}
	}

	return sm
}

func (sm *StateMachine) addTransition(from, to datatypes.SessionState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition is valid.
//
// Thread Safety: safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to datatypes.SessionState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves a session to the target state.
//
// Outputs:
//
//	error - ErrInvalidTransition if the change is not allowed.
func (sm *StateMachine) Transition(session *datatypes.SearchSession, to datatypes.SessionState) error {
	from := session.State
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	session.State = to
	return nil
}

// ValidTransitionsFrom returns all valid target states.
func (sm *StateMachine) ValidTransitionsFrom(from datatypes.SessionState) []datatypes.SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []datatypes.SessionState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}
