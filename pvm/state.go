// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pvm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/ava-labs/avalanchego/utils/maybe"
	"github.com/ava-labs/avalanchego/utils/wrappers"

	"github.com/art-w/tezos/inbox"
	"github.com/art-w/tezos/lazymap"
	"github.com/art-w/tezos/tree"
	"github.com/art-w/tezos/vector"
)

// Durable layout of a PVM state snapshot.
const (
	statusPath       = tree.Path("/pvm/status")
	tickPath         = tree.Path("/pvm/tick")
	failurePath      = tree.Path("/pvm/failure")
	memoryLengthPath = tree.Path("/pvm/memory/length")
	memoryChunksPath = tree.Path("/pvm/memory/chunks")
	globalsPath      = tree.Path("/pvm/globals")
)

const maxGlobalsSize = 1 << 20

var ErrCorruptState = errors.New("corrupt durable state")

// SaveState writes [inst] into [snap] and returns the new snapshot. Only
// materialized memory chunks are written; pages untouched this level keep
// their previous durable value. The snapshot's root is the state
// commitment.
func SaveState(ctx context.Context, inst *Instance, snap tree.Snapshot) (tree.Snapshot, error) {
	changes := map[tree.Path]maybe.Maybe[[]byte]{
		statusPath:       maybe.Some([]byte{byte(inst.Status)}),
		tickPath:         maybe.Some(packUint64(inst.Tick)),
		memoryLengthPath: maybe.Some(packUint64(inst.Memory.Length())),
		globalsPath:      maybe.Some(packGlobals(inst.Globals.LoadedBindings())),
	}

	// a stale failure from an earlier level must not survive a successful
	// save
	if inst.Failure != nil {
		changes[failurePath] = maybe.Some([]byte(inst.Failure.Error()))
	} else {
		changes[failurePath] = maybe.Nothing[[]byte]()
	}

	for _, binding := range inst.Memory.LoadedChunks() {
		path := tree.Indexed(memoryChunksPath, binding.Key)
		changes[path] = maybe.Some(binding.Value)
	}

	return snap.SetMany(ctx, changes)
}

// LoadInstance reconstructs an instance from [snap]. Memory chunks are not
// fetched eagerly: they materialize from the snapshot on first access, so
// replaying a single tick only ever touches the pages that tick needs. The
// inbox and outbox start empty; the driver feeds the level's inputs.
func LoadInstance(ctx context.Context, snap tree.Snapshot) (*Instance, error) {
	inst := NewInstance()

	status, err := snap.Get(ctx, statusPath)
	if err != nil {
		return nil, err
	}
	if status.HasValue() {
		if len(status.Value()) != 1 || !validStatus(Status(status.Value()[0])) {
			return nil, fmt.Errorf("%w: bad status", ErrCorruptState)
		}
		inst.Status = Status(status.Value()[0])
	}

	tick, err := snap.Get(ctx, tickPath)
	if err != nil {
		return nil, err
	}
	if tick.HasValue() {
		if inst.Tick, err = unpackUint64(tick.Value()); err != nil {
			return nil, err
		}
	}

	failure, err := snap.Get(ctx, failurePath)
	if err != nil {
		return nil, err
	}
	if failure.HasValue() {
		inst.Failure = errors.New(string(failure.Value()))
	}

	length := uint64(0)
	memoryLength, err := snap.Get(ctx, memoryLengthPath)
	if err != nil {
		return nil, err
	}
	if memoryLength.HasValue() {
		if length, err = unpackUint64(memoryLength.Value()); err != nil {
			return nil, err
		}
	}
	inst.Memory = vector.New(length, vector.WithProducer(chunkProducer(snap)))

	globals, err := snap.Get(ctx, globalsPath)
	if err != nil {
		return nil, err
	}
	if globals.HasValue() {
		if inst.Globals, err = unpackGlobals(globals.Value()); err != nil {
			return nil, err
		}
	}

	inst.Inbox = inbox.NewBuffer()
	inst.Outbox = inbox.NewOutbox()
	return inst, nil
}

// chunkProducer materializes memory pages from the durable tree. A page
// that was never written reads as zero.
func chunkProducer(snap tree.Snapshot) vector.ChunkProducer {
	return func(ctx context.Context, index uint64) ([]byte, error) {
		chunk, err := snap.Get(ctx, tree.Indexed(memoryChunksPath, index))
		if err != nil {
			return nil, err
		}
		if chunk.IsNothing() {
			return make([]byte, vector.ChunkSize), nil
		}
		return chunk.Value(), nil
	}
}

func packUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func unpackUint64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("%w: expected 8 bytes, got %d", ErrCorruptState, len(buf))
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Globals are packed as one sorted sequence so that identical contents
// always produce identical bytes.
func packGlobals(bindings []lazymap.Binding[string, int64]) []byte {
	p := wrappers.Packer{Bytes: make([]byte, 0, 64), MaxSize: maxGlobalsSize}
	p.PackInt(uint32(len(bindings)))
	for _, binding := range bindings {
		p.PackStr(binding.Key)
		p.PackLong(uint64(binding.Value))
	}
	return p.Bytes
}

func unpackGlobals(buf []byte) (*lazymap.Mutable[string, int64], error) {
	p := wrappers.Packer{Bytes: buf, MaxSize: maxGlobalsSize}
	count := p.UnpackInt()
	values := make(map[string]int64, count)
	for i := uint32(0); i < count; i++ {
		name := p.UnpackStr()
		value := p.UnpackLong()
		values[name] = int64(value)
	}
	if p.Err != nil {
		return nil, fmt.Errorf("%w: globals: %s", ErrCorruptState, p.Err)
	}
	return lazymap.NewMutableFromValues(values, nil), nil
}

// ChunkPaths lists the durable paths of the pages [inst] touched, the
// exact set a proof of the current tick must cover.
func ChunkPaths(inst *Instance) []tree.Path {
	loaded := inst.Memory.LoadedChunks()
	paths := make([]tree.Path, len(loaded))
	for i, binding := range loaded {
		paths[i] = tree.Indexed(memoryChunksPath, binding.Key)
	}
	return paths
}

// OutboxPath addresses the [index]-th outbox message of [level].
func OutboxPath(level uint64, index uint64) tree.Path {
	return tree.Join("/outbox", strconv.FormatUint(level, 10), strconv.FormatUint(index, 10))
}
