// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"

	"github.com/art-w/tezos/vector"
)

// Memory is the guest linear memory a host call reads and writes. Host
// calls bypass the guest's own bounds-checked instruction path, so every
// implementation must reject out-of-range accesses itself.
type Memory interface {
	// Range reads [length] bytes at [offset].
	Range(ctx context.Context, offset uint64, length uint64) ([]byte, error)

	// Write copies [buf] into memory at [offset].
	Write(ctx context.Context, offset uint64, buf []byte) error

	// Len returns the current memory size in bytes.
	Len(ctx context.Context) (uint64, error)
}

var _ Memory = (*VectorMemory)(nil)

// VectorMemory adapts a chunked byte vector to the [Memory] surface.
type VectorMemory struct {
	Vector *vector.Vector
}

func (m *VectorMemory) Range(ctx context.Context, offset uint64, length uint64) ([]byte, error) {
	return m.Vector.LoadBytes(ctx, offset, length)
}

func (m *VectorMemory) Write(ctx context.Context, offset uint64, buf []byte) error {
	return m.Vector.StoreBytes(ctx, offset, buf)
}

func (m *VectorMemory) Len(context.Context) (uint64, error) {
	return m.Vector.Length(), nil
}
