// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"context"
	"errors"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/inbox"
	"github.com/art-w/tezos/lazymap"
	"github.com/art-w/tezos/vector"
)

// Instance is the running guest program's state: its linear memory,
// globals, queues and control position. It is exclusively owned by the
// machine that created it; instances are never shared across executions.
type Instance struct {
	Memory  *vector.Vector
	Globals *lazymap.Mutable[string, int64]
	Inbox   *inbox.Buffer
	Outbox  *inbox.Outbox

	Tick    uint64
	Status  Status
	Failure error
}

func NewInstance() *Instance {
	return &Instance{
		Memory:  vector.New(0),
		Globals: lazymap.NewMutable[string, int64](nil),
		Inbox:   inbox.NewBuffer(),
		Outbox:  inbox.NewOutbox(),
		Status:  Collecting,
	}
}

// Machine drives one instance tick by tick under a fuel budget. Strictly
// sequential: ticks are totally ordered and applied in order.
type Machine struct {
	log     logging.Logger
	stepper Stepper
	meter   fuel.Meter
	inst    *Instance

	// inbox length when the current evaluation began; detects whether the
	// stepper consumed its input
	evalLen int
}

func NewMachine(log logging.Logger, stepper Stepper, meter fuel.Meter, inst *Instance) *Machine {
	return &Machine{
		log:     log,
		stepper: stepper,
		meter:   meter,
		inst:    inst,
		evalLen: inst.Inbox.Len(),
	}
}

func (m *Machine) Instance() *Instance {
	return m.inst
}

func (m *Machine) Status() Status {
	return m.inst.Status
}

// Failure returns the recorded guest failure, if the machine is in
// [Failed].
func (m *Machine) Failure() error {
	return m.inst.Failure
}

// Halted reports whether further ticks can make progress this level.
func (m *Machine) Halted() bool {
	return m.inst.Status == WaitingForInput || m.inst.Status == Failed
}

// Tick advances the machine by exactly one atomic step, charging one unit
// of fuel. A halted machine does not tick. Guest failures are recorded in
// the instance, moving it to [Failed]; the only error returned is
// [fuel.ErrExhausted], in which case no state changed and the tick never
// happened.
func (m *Machine) Tick(ctx context.Context) error {
	if m.Halted() {
		return nil
	}
	if err := m.meter.Consume(1); err != nil {
		return err
	}

	switch m.inst.Status {
	case Collecting:
		if _, ok := m.inst.Inbox.Peek(); ok {
			m.evalLen = m.inst.Inbox.Len()
			m.inst.Status = Evaluating
		} else {
			m.inst.Status = WaitingForInput
		}
	case Evaluating:
		outcome, err := m.stepper.Step(ctx, m.inst)
		switch {
		case errors.Is(err, fuel.ErrExhausted):
			// budget drained inside the guest: halt the level without
			// recording a failure, the tick never completed
			return err
		case err != nil:
			m.fail(err)
		case outcome.Kind == Completed:
			// one evaluation per input: consume it if the step did not
			if m.inst.Inbox.Len() == m.evalLen {
				m.inst.Inbox.Pop()
			}
			m.inst.Status = Padding
		}
	case Padding:
		m.inst.Status = Collecting
	}

	m.inst.Tick++
	return nil
}

// Run ticks until the machine halts for the level. On fuel exhaustion the
// instance is left exactly as of the last completed tick and
// [fuel.ErrExhausted] is returned.
func (m *Machine) Run(ctx context.Context) error {
	for !m.Halted() {
		if err := m.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) fail(err error) {
	m.inst.Status = Failed
	m.inst.Failure = err
	m.log.Info("guest failed",
		zap.Uint64("tick", m.inst.Tick),
		zap.Error(err),
	)
}
