// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/bytecodealliance/wasmtime-go/v14"
	"github.com/stretchr/testify/require"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/inbox"
	"github.com/art-w/tezos/vector"
)

func newTestCall(memoryBytes uint64, inputs ...inbox.Input) (*CallContext, *vector.Vector) {
	v := vector.New(memoryBytes)
	return &CallContext{
		Log:    logging.NoLog{},
		Memory: &VectorMemory{Vector: v},
		Inbox:  inbox.NewBuffer(inputs...),
		Outbox: inbox.NewOutbox(),
		Meter:  fuel.NewFree(),
	}, v
}

func TestReadInput(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	call, v := newTestCall(1024, inbox.Input{
		Rtype:   2,
		Level:   7,
		ID:      3,
		Payload: []byte("hello"),
	})

	written, err := ReadInput(ctx, call, 0, 4, 8, 100, 64)
	require.NoError(err)
	require.Equal(uint64(5), written)
	require.Zero(call.Inbox.Len(), "input must be consumed")

	field, err := v.LoadBytes(ctx, 0, 4)
	require.NoError(err)
	require.Equal(uint32(2), binary.LittleEndian.Uint32(field))

	field, err = v.LoadBytes(ctx, 4, 4)
	require.NoError(err)
	require.Equal(uint32(7), binary.LittleEndian.Uint32(field))

	field, err = v.LoadBytes(ctx, 8, 4)
	require.NoError(err)
	require.Equal(uint32(3), binary.LittleEndian.Uint32(field))

	payload, err := v.LoadBytes(ctx, 100, 5)
	require.NoError(err)
	require.Equal([]byte("hello"), payload)
}

func TestReadInputEmptyInbox(t *testing.T) {
	require := require.New(t)

	call, _ := newTestCall(64)
	written, err := ReadInput(context.Background(), call, 0, 4, 8, 16, 32)
	require.NoError(err)
	require.Zero(written)
}

func TestReadInputTooLarge(t *testing.T) {
	require := require.New(t)

	call, v := newTestCall(1024, inbox.Input{Payload: []byte("12345")})

	// max_bytes = 4 with a 5-byte payload must fail, not truncate
	_, err := ReadInput(context.Background(), call, 0, 4, 8, 100, 4)
	require.ErrorIs(err, ErrInputTooLarge)

	got, err := v.LoadBytes(context.Background(), 100, 5)
	require.NoError(err)
	require.Equal(make([]byte, 5), got, "no partial copy on failure")
}

func TestReadInputOutOfBounds(t *testing.T) {
	require := require.New(t)

	call, _ := newTestCall(8, inbox.Input{Payload: []byte("x")})
	_, err := ReadInput(context.Background(), call, 0, 4, 8, 16, 32)
	require.ErrorIs(err, vector.ErrOutOfBounds)
	require.Equal(1, call.Inbox.Len(), "failed call must not consume the input")
}

func TestWriteOutput(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	call, v := newTestCall(256)
	require.NoError(v.StoreBytes(ctx, 10, []byte("receipt")))

	require.NoError(WriteOutput(ctx, call, 10, 7))
	require.Equal([][]byte{[]byte("receipt")}, call.Outbox.Messages())

	require.ErrorIs(WriteOutput(ctx, call, 250, 10), vector.ErrOutOfBounds)
	require.ErrorIs(WriteOutput(ctx, call, 0, inbox.MaxPayloadSize+1), ErrOutputTooLarge)
}

func TestAbortExit(t *testing.T) {
	require := require.New(t)

	call, _ := newTestCall(0)
	require.ErrorIs(Abort(call), ErrAborted)

	err := Exit(call, 42)
	exit := &ExitError{}
	require.ErrorAs(err, &exit)
	require.Equal(int32(42), exit.Code)
}

func TestImportsSetFuelCost(t *testing.T) {
	require := require.New(t)

	imports := DefaultImports()
	require.True(imports.SetFuelCost(RollupModuleName, "read_input", 12))
	require.False(imports.SetFuelCost(RollupModuleName, "missing", 1))
	require.False(imports.SetFuelCost("missing", "read_input", 1))
	require.Equal(uint64(12), imports.Modules[RollupModuleName].HostFunctions["read_input"].FuelCost)
}

func TestBoundCallInheritsTickContext(t *testing.T) {
	require := require.New(t)

	type tickKey struct{}
	ctx := context.WithValue(context.Background(), tickKey{}, uint64(7))

	var got context.Context
	fn := HostFunction{
		Type:     wasmtime.NewFuncType([]*wasmtime.ValType{}, []*wasmtime.ValType{}),
		FuelCost: 1,
		Call: func(ctx context.Context, _ *CallContext, _ []wasmtime.Val) ([]wasmtime.Val, error) {
			got = ctx
			return nil, nil
		},
	}

	call, _ := newTestCall(0)
	call.Context = ctx

	bound := fn.bind(func(wasmtime.Storelike) *CallContext { return call })
	_, trap := bound(nil, nil)
	require.Nil(trap)
	require.Equal(uint64(7), got.Value(tickKey{}))

	// a call registered without a context still runs
	call.Context = nil
	_, trap = bound(nil, nil)
	require.Nil(trap)
	require.NotNil(got)
}
