// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"context"
	"fmt"
	"runtime"

	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/art-w/tezos/vector"
)

var _ Memory = (*wasmMemory)(nil)

// wasmMemory reads and writes the exported linear memory of the wasmtime
// instance behind [caller]. Bound checks are done here, independent of the
// guest's own checked accesses.
type wasmMemory struct {
	caller *wasmtime.Caller
}

func (m *wasmMemory) memory() (*wasmtime.Memory, error) {
	export := m.caller.GetExport(MemoryName)
	if export == nil {
		return nil, fmt.Errorf("guest does not export %q", MemoryName)
	}
	mem := export.Memory()
	if mem == nil {
		return nil, fmt.Errorf("guest export %q is not a memory", MemoryName)
	}
	return mem, nil
}

func (m *wasmMemory) Range(_ context.Context, offset uint64, length uint64) ([]byte, error) {
	mem, err := m.memory()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	size := mem.DataSize(m.caller)
	if offset >= uint64(size) || length > uint64(size)-offset {
		return nil, fmt.Errorf("%w: range of %d bytes at %d, memory %d",
			vector.ErrOutOfBounds, length, offset, size)
	}

	data := mem.UnsafeData(m.caller)
	buf := make([]byte, length)
	copy(buf, data[offset:offset+length])
	runtime.KeepAlive(mem)
	return buf, nil
}

func (m *wasmMemory) Write(_ context.Context, offset uint64, buf []byte) error {
	mem, err := m.memory()
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	size := mem.DataSize(m.caller)
	if offset >= uint64(size) || uint64(len(buf)) > uint64(size)-offset {
		return fmt.Errorf("%w: write of %d bytes at %d, memory %d",
			vector.ErrOutOfBounds, len(buf), offset, size)
	}

	data := mem.UnsafeData(m.caller)
	copy(data[offset:], buf)
	runtime.KeepAlive(mem)
	return nil
}

func (m *wasmMemory) Len(context.Context) (uint64, error) {
	mem, err := m.memory()
	if err != nil {
		return 0, err
	}
	return uint64(mem.DataSize(m.caller)), nil
}
