// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/stretchr/testify/require"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/host"
	"github.com/art-w/tezos/inbox"
)

// scriptStepper runs a fixed number of evaluation steps per input, with an
// optional failure injected on a given global step.
type scriptStepper struct {
	stepsPerInput int
	failOnStep    int
	failWith      error

	step    int
	pending int
}

func (s *scriptStepper) Step(_ context.Context, inst *Instance) (Outcome, error) {
	s.step++
	if s.failWith != nil && s.step == s.failOnStep {
		return Outcome{}, s.failWith
	}
	if s.pending == 0 {
		inst.Inbox.Pop()
		s.pending = s.stepsPerInput
	}
	s.pending--
	if s.pending == 0 {
		return Outcome{Kind: Completed}, nil
	}
	return Outcome{Kind: Running}, nil
}

func newTestMachine(meter fuel.Meter, stepper Stepper, inputs ...inbox.Input) *Machine {
	inst := NewInstance()
	for _, input := range inputs {
		inst.Inbox.Push(input)
	}
	return NewMachine(logging.NoLog{}, stepper, meter, inst)
}

func TestMachineProcessesLevel(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	meter := fuel.NewFree()
	m := newTestMachine(
		meter,
		&scriptStepper{stepsPerInput: 3},
		inbox.Input{ID: 0, Payload: []byte("a")},
		inbox.Input{ID: 1, Payload: []byte("b")},
	)

	require.NoError(m.Run(ctx))
	require.Equal(WaitingForInput, m.Status())
	require.NoError(m.Failure())

	// per input: collect + 3 evaluation steps + padding; plus the final
	// collecting tick that finds the inbox empty
	expectedTicks := uint64(2*(1+3+1) + 1)
	require.Equal(expectedTicks, m.Instance().Tick)
	require.Equal(expectedTicks, meter.Consumed(), "one fuel unit per tick")

	// a halted machine does not tick
	require.NoError(m.Tick(ctx))
	require.Equal(expectedTicks, m.Instance().Tick)
}

// ignoreStepper completes every evaluation without ever touching the
// inbox, like a kernel that never calls read_input.
type ignoreStepper struct {
	steps int
}

func (s *ignoreStepper) Step(context.Context, *Instance) (Outcome, error) {
	s.steps++
	return Outcome{Kind: Completed}, nil
}

func TestMachineConsumesUnreadInput(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	stepper := &ignoreStepper{}
	m := newTestMachine(
		fuel.NewFree(),
		stepper,
		inbox.Input{ID: 0, Payload: []byte("a")},
		inbox.Input{ID: 1, Payload: []byte("b")},
	)

	require.NoError(m.Run(ctx))
	require.Equal(WaitingForInput, m.Status(), "an unread input must not be re-evaluated forever")
	require.Equal(0, m.Instance().Inbox.Len())
	require.Equal(2, stepper.steps, "one evaluation per input")

	// per input: collect + 1 evaluation + padding; plus the final
	// collecting tick
	require.Equal(uint64(2*3+1), m.Instance().Tick)
}

func TestMachineRecordsGuestFailure(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	m := newTestMachine(
		fuel.NewFree(),
		&scriptStepper{stepsPerInput: 3, failOnStep: 2, failWith: host.ErrAborted},
		inbox.Input{Payload: []byte("a")},
	)

	require.NoError(m.Run(ctx), "guest failure must not unwind out of the level")
	require.Equal(Failed, m.Status())
	require.ErrorIs(m.Failure(), host.ErrAborted)

	ticksAtFailure := m.Instance().Tick
	require.NoError(m.Tick(ctx))
	require.Equal(ticksAtFailure, m.Instance().Tick, "failed is terminal for the level")
}

func TestMachineFuelExhaustionMidLevel(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	meter := fuel.NewAccounted(3)
	m := newTestMachine(
		meter,
		&scriptStepper{stepsPerInput: 5},
		inbox.Input{Payload: []byte("a")},
	)

	err := m.Run(ctx)
	require.ErrorIs(err, fuel.ErrExhausted)

	// state is as of the last fully completed tick
	require.Equal(uint64(3), m.Instance().Tick)
	require.Equal(uint64(3), meter.Consumed())
	require.NotEqual(Failed, m.Status(), "exhaustion is a halt, not a guest failure")
}

func TestMachineStepperExhaustionHalts(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	m := newTestMachine(
		fuel.NewFree(),
		&scriptStepper{stepsPerInput: 5, failOnStep: 2, failWith: fuel.ErrExhausted},
		inbox.Input{Payload: []byte("a")},
	)

	err := m.Run(ctx)
	require.ErrorIs(err, fuel.ErrExhausted)
	require.Equal(Evaluating, m.Status())
	require.NoError(m.Failure())
}

func TestAccountedAndFreeDriveSameTicks(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	run := func(meter fuel.Meter) uint64 {
		m := newTestMachine(
			meter,
			&scriptStepper{stepsPerInput: 4},
			inbox.Input{Payload: []byte("a")},
		)
		require.NoError(m.Run(ctx))
		return m.Instance().Tick
	}

	free := run(fuel.NewFree())
	accounted := run(fuel.NewAccounted(1000))
	require.Equal(free, accounted, "fuel policy must not change the transition function")
}
