// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

// Status is the interpreter's per-tick state machine position.
//
//	Collecting -> Evaluating -> Padding -> Collecting -> ... -> WaitingForInput
//
// Failed is terminal for the remainder of the level; the recorded failure
// is part of the provable state.
type Status uint8

const (
	Collecting Status = iota
	Evaluating
	Padding
	WaitingForInput
	Failed
)

func (s Status) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Evaluating:
		return "evaluating"
	case Padding:
		return "padding"
	case WaitingForInput:
		return "waiting_for_input"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func validStatus(s Status) bool {
	return s <= Failed
}
