// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollup

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/maybe"
	"go.uber.org/zap"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/inbox"
	"github.com/art-w/tezos/pvm"
	"github.com/art-w/tezos/tree"
)

var (
	// ErrInboxNotFinalized means the level's inbox construction has not
	// completed; executing against it would not be replayable.
	ErrInboxNotFinalized = errors.New("inbox not finalized for level")

	// ErrStateUnavailable means no state exists for a level at or past
	// origination.
	ErrStateUnavailable = errors.New("no state for level")
)

const lastLevelPath = tree.Path("/rollup/level")

// NodeContext is what the rollup node supplies: the per-level inbox, the
// origination boundary and previously committed states. All methods are
// read-only.
type NodeContext interface {
	// OriginationLevel is the level the rollup was created at.
	OriginationLevel() uint64

	// Genesis returns the state produced at origination.
	Genesis(ctx context.Context) (tree.Snapshot, error)

	// StateAt returns the committed state after [level] was processed, or
	// Nothing if that level has not been processed.
	StateAt(ctx context.Context, level uint64) (maybe.Maybe[tree.Snapshot], error)

	// InboxForLevel returns the ordered inputs of [level] and whether the
	// inbox for that level is finalized.
	InboxForLevel(ctx context.Context, level uint64) ([]inbox.Input, bool, error)
}

// Result is a persisted or reconstructed PVM state with its commitment.
type Result struct {
	Snapshot   tree.Snapshot
	Commitment ids.ID
	Tick       uint64
}

// Driver owns the three entry points the rollup node calls into the
// execution engine.
type Driver struct {
	log     logging.Logger
	store   *tree.Store
	stepper pvm.Stepper
}

func New(log logging.Logger, store *tree.Store, stepper pvm.Stepper) *Driver {
	return &Driver{
		log:     log,
		store:   store,
		stepper: stepper,
	}
}

// ProcessHead executes the full input batch of [head] against the current
// state and persists the outcome, including a recorded guest failure. On
// fuel exhaustion the state as of the last fully completed tick is
// persisted and [fuel.ErrExhausted] is returned alongside it.
func (d *Driver) ProcessHead(
	ctx context.Context,
	node NodeContext,
	head uint64,
	meter fuel.Meter,
) (*Result, error) {
	inputs, finalized, err := node.InboxForLevel(ctx, head)
	if err != nil {
		return nil, err
	}
	if !finalized {
		return nil, fmt.Errorf("%w: level %d", ErrInboxNotFinalized, head)
	}

	prior, err := d.levelStart(ctx, node, head)
	if err != nil {
		return nil, err
	}
	machine, err := d.newLevelMachine(ctx, prior, inputs, meter)
	if err != nil {
		return nil, err
	}

	runErr := machine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, fuel.ErrExhausted) {
		return nil, runErr
	}

	snap, err := d.persist(ctx, machine.Instance(), prior, head)
	if err != nil {
		return nil, err
	}
	commitment, err := snap.Root(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.store.Commit(ctx, snap); err != nil {
		return nil, err
	}

	d.log.Info("processed head",
		zap.Uint64("level", head),
		zap.Int("inputs", len(inputs)),
		zap.Uint64("tick", machine.Instance().Tick),
		zap.Uint64("fuel", meter.Consumed()),
		zap.Stringer("status", machine.Status()),
		zap.Stringer("commitment", commitment),
	)
	return &Result{
		Snapshot:   snap,
		Commitment: commitment,
		Tick:       machine.Instance().Tick,
	}, runErr
}

// StateOfTick reconstructs the state as of [tick], provided the tick
// occurred at or before [level]. Returns Nothing when execution never
// reached [tick]. The reconstruction is never committed; it exists to back
// a refutation proof.
func (d *Driver) StateOfTick(
	ctx context.Context,
	node NodeContext,
	tick uint64,
	level uint64,
) (maybe.Maybe[*Result], error) {
	none := maybe.Nothing[*Result]()

	// walk back to the level whose starting tick does not exceed the
	// target
	replayLevel := level
	var start tree.Snapshot
	for {
		var err error
		start, err = d.levelStart(ctx, node, replayLevel)
		if err != nil {
			return none, err
		}
		inst, err := pvm.LoadInstance(ctx, start)
		if err != nil {
			return none, err
		}
		if inst.Tick <= tick || replayLevel <= node.OriginationLevel() {
			break
		}
		replayLevel--
	}

	inputs, finalized, err := node.InboxForLevel(ctx, replayLevel)
	if err != nil {
		return none, err
	}
	if !finalized {
		return none, fmt.Errorf("%w: level %d", ErrInboxNotFinalized, replayLevel)
	}

	machine, err := d.newLevelMachine(ctx, start, inputs, fuel.NewFree())
	if err != nil {
		return none, err
	}
	for machine.Instance().Tick < tick {
		if machine.Halted() {
			return none, nil
		}
		if err := machine.Tick(ctx); err != nil {
			return none, err
		}
	}

	snap, err := pvm.SaveState(ctx, machine.Instance(), start)
	if err != nil {
		return none, err
	}
	commitment, err := snap.Root(ctx)
	if err != nil {
		return none, err
	}
	return maybe.Some(&Result{
		Snapshot:   snap,
		Commitment: commitment,
		Tick:       machine.Instance().Tick,
	}), nil
}

// StateOfHead returns the state for [head], falling back to the genesis
// state when [head] predates origination.
func (d *Driver) StateOfHead(ctx context.Context, node NodeContext, head uint64) (tree.Snapshot, error) {
	if head < node.OriginationLevel() {
		return node.Genesis(ctx)
	}
	state, err := node.StateAt(ctx, head)
	if err != nil {
		return nil, err
	}
	if state.IsNothing() {
		return nil, fmt.Errorf("%w: level %d", ErrStateUnavailable, head)
	}
	return state.Value(), nil
}

// levelStart returns the state a level's execution begins from: the state
// of the previous head, or genesis for the origination level itself.
func (d *Driver) levelStart(ctx context.Context, node NodeContext, level uint64) (tree.Snapshot, error) {
	if level <= node.OriginationLevel() {
		return node.Genesis(ctx)
	}
	return d.StateOfHead(ctx, node, level-1)
}

// newLevelMachine loads the instance from [prior] and arms it for a fresh
// level with [inputs] pending.
func (d *Driver) newLevelMachine(
	ctx context.Context,
	prior tree.Snapshot,
	inputs []inbox.Input,
	meter fuel.Meter,
) (*pvm.Machine, error) {
	inst, err := pvm.LoadInstance(ctx, prior)
	if err != nil {
		return nil, err
	}
	// a new level always starts collecting; a failure recorded in an
	// earlier level stays provable in that level's snapshot
	inst.Status = pvm.Collecting
	inst.Failure = nil
	for _, input := range inputs {
		inst.Inbox.Push(input)
	}
	return pvm.NewMachine(d.log, d.stepper, meter, inst), nil
}

// persist saves the instance plus the level's drained outbox.
func (d *Driver) persist(
	ctx context.Context,
	inst *pvm.Instance,
	prior tree.Snapshot,
	level uint64,
) (tree.Snapshot, error) {
	snap, err := pvm.SaveState(ctx, inst, prior)
	if err != nil {
		return nil, err
	}
	changes := map[tree.Path]maybe.Maybe[[]byte]{
		lastLevelPath: maybe.Some(packLevel(level)),
	}
	for i, message := range inst.Outbox.Drain() {
		changes[pvm.OutboxPath(level, uint64(i))] = maybe.Some(message)
	}
	return snap.SetMany(ctx, changes)
}
