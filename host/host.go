// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/art-w/tezos/fuel"
	"github.com/art-w/tezos/inbox"
)

var (
	// ErrInputTooLarge means an inbox payload exceeds the caller-supplied
	// buffer. Never silently truncated: truncation would make guest
	// behavior depend on the buffer size and break replay.
	ErrInputTooLarge = errors.New("input exceeds max bytes")

	ErrOutputTooLarge = errors.New("output exceeds max message size")

	// ErrAborted is the guest-triggered fatal trap.
	ErrAborted = errors.New("guest aborted")
)

// ExitError carries the guest-supplied status of an env.exit call.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("guest exited with code %d", e.Code)
}

// CallContext is the state one host call operates on. It is owned by the
// machine executing the current tick.
type CallContext struct {
	// Context of the tick driving this call; host functions invoked from
	// inside the guest inherit it.
	Context context.Context

	Log    logging.Logger
	Memory Memory
	Inbox  *inbox.Buffer
	Outbox *inbox.Outbox
	Meter  fuel.Meter
}

// ReadInput pops the next pending inbox message, writes its rtype, level
// and id as little-endian u32 fields at the given offsets and its payload
// at [dst]. Returns the payload size. Returns 0 without touching memory
// when no input is pending.
func ReadInput(
	ctx context.Context,
	call *CallContext,
	rtypeOffset uint64,
	levelOffset uint64,
	idOffset uint64,
	dst uint64,
	maxBytes uint64,
) (uint64, error) {
	next, ok := call.Inbox.Peek()
	if !ok {
		return 0, nil
	}
	if uint64(len(next.Payload)) > maxBytes {
		return 0, fmt.Errorf("%w: payload %d bytes, max %d",
			ErrInputTooLarge, len(next.Payload), maxBytes)
	}

	if err := writeUint32(ctx, call.Memory, rtypeOffset, next.Rtype); err != nil {
		return 0, err
	}
	if err := writeUint32(ctx, call.Memory, levelOffset, next.Level); err != nil {
		return 0, err
	}
	if err := writeUint32(ctx, call.Memory, idOffset, next.ID); err != nil {
		return 0, err
	}
	if err := call.Memory.Write(ctx, dst, next.Payload); err != nil {
		return 0, err
	}

	call.Inbox.Pop()
	call.Log.Debug("read input",
		zap.Uint32("level", next.Level),
		zap.Uint32("id", next.ID),
		zap.Int("payload", len(next.Payload)),
	)
	return uint64(len(next.Payload)), nil
}

// WriteOutput copies [length] bytes of guest memory at [src] into the
// outbox.
func WriteOutput(ctx context.Context, call *CallContext, src uint64, length uint64) error {
	if length > inbox.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrOutputTooLarge, length, inbox.MaxPayloadSize)
	}
	message, err := call.Memory.Range(ctx, src, length)
	if err != nil {
		return err
	}
	call.Outbox.Push(message)
	return nil
}

// Abort terminates the current tick with a fatal, guest-triggered trap.
func Abort(call *CallContext) error {
	call.Log.Error("guest abort")
	return ErrAborted
}

// Exit terminates the current tick with a guest-supplied status code.
func Exit(call *CallContext, code int32) error {
	return &ExitError{Code: code}
}

func writeUint32(ctx context.Context, mem Memory, offset uint64, value uint32) error {
	field := make([]byte, 4)
	binary.LittleEndian.PutUint32(field, value)
	return mem.Write(ctx, offset, field)
}
