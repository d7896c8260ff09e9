// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/maybe"
)

// MaxFileChunkSize bounds a single durable read or write. Values larger
// than this are split across indexed sibling paths.
const MaxFileChunkSize = 2048

var ErrCorruptFile = errors.New("corrupt chunked value")

const fileLengthSegment = "length"

// WriteAll stores [value] under [path], splitting it into bounded chunks:
// [path]/length holds the total size and [path]/<i> the i-th chunk.
func WriteAll(ctx context.Context, snap Snapshot, path Path, value []byte) (Snapshot, error) {
	lengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(lengthBytes, uint64(len(value)))

	changes := map[Path]maybe.Maybe[[]byte]{
		Join(path, fileLengthSegment): maybe.Some(lengthBytes),
	}
	for i := 0; len(value) > 0; i++ {
		n := len(value)
		if n > MaxFileChunkSize {
			n = MaxFileChunkSize
		}
		changes[Indexed(path, uint64(i))] = maybe.Some(value[:n])
		value = value[n:]
	}
	return snap.SetMany(ctx, changes)
}

// ReadAll reassembles a value stored by [WriteAll]. Returns Nothing if no
// value was ever written under [path].
func ReadAll(ctx context.Context, snap Snapshot, path Path) (maybe.Maybe[[]byte], error) {
	lengthValue, err := snap.Get(ctx, Join(path, fileLengthSegment))
	if err != nil {
		return maybe.Nothing[[]byte](), err
	}
	if lengthValue.IsNothing() {
		return maybe.Nothing[[]byte](), nil
	}
	if len(lengthValue.Value()) != 8 {
		return maybe.Nothing[[]byte](), fmt.Errorf("%w: bad length field at %q", ErrCorruptFile, path)
	}
	length := binary.LittleEndian.Uint64(lengthValue.Value())

	value := make([]byte, 0, length)
	for i := uint64(0); uint64(len(value)) < length; i++ {
		chunk, err := snap.Get(ctx, Indexed(path, i))
		if err != nil {
			return maybe.Nothing[[]byte](), err
		}
		if chunk.IsNothing() {
			return maybe.Nothing[[]byte](), fmt.Errorf("%w: missing chunk %d at %q", ErrCorruptFile, i, path)
		}
		value = append(value, chunk.Value()...)
	}
	if uint64(len(value)) != length {
		return maybe.Nothing[[]byte](), fmt.Errorf("%w: size mismatch at %q", ErrCorruptFile, path)
	}
	return maybe.Some(value), nil
}
