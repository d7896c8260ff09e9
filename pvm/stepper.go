// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import "context"

// OutcomeKind classifies one step of guest evaluation.
type OutcomeKind uint8

const (
	// Running: the guest advanced by one bounded unit of work and has more
	// to do for the current input.
	Running OutcomeKind = iota
	// HostCall: the guest crossed one host-call boundary; the call has
	// completed and counts as one atomic tick.
	HostCall
	// Completed: the guest finished evaluating the current input.
	Completed
)

type Outcome struct {
	Kind OutcomeKind
}

// Stepper is the opaque deterministic stepping function the interpreter
// drives. One Step call corresponds to one unit of fuel. A returned error
// is a guest failure (trap, abort, exit, malformed host-call argument) and
// moves the machine to [Failed]; it is recorded in state, never thrown past
// the tick.
//
// A Completed step need not consume the pending input: the machine pops it
// on completion if the stepper left it in place, so a kernel that never
// calls read_input still advances input by input.
type Stepper interface {
	Step(ctx context.Context, inst *Instance) (Outcome, error)
}
