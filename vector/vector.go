// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/art-w/tezos/lazymap"
)

const (
	// ChunkSize is the fixed page size of the linear memory, in bytes.
	ChunkSize = 1 << 12 // 4 KiB
)

var (
	ErrOutOfBounds = errors.New("memory access out of bounds")
	ErrOverflow    = errors.New("memory length overflow")
)

// ChunkProducer materializes the page at [index] on first access, typically
// from a proof-augmented tree store. Produced chunks shorter than
// [ChunkSize] are zero-padded.
type ChunkProducer func(ctx context.Context, index uint64) ([]byte, error)

// Vector is a growable, byte-addressable linear memory split into
// fixed-size chunks that are produced lazily. It is exclusively owned by a
// single module instance.
type Vector struct {
	length uint64
	chunks *lazymap.Mutable[uint64, []byte]
}

// Option configures a new Vector.
type Option func(*options)

type options struct {
	producer ChunkProducer
}

// WithProducer installs [producer] as the source of absent chunks. Without
// it, absent chunks read as zero.
func WithProducer(producer ChunkProducer) Option {
	return func(o *options) {
		o.producer = producer
	}
}

// New creates a vector of [length] addressable bytes. No chunk is allocated
// up front; pages materialize on first access.
func New(length uint64, opts ...Option) *Vector {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	producer := o.producer
	if producer == nil {
		producer = zeroChunk
	}
	return &Vector{
		length: length,
		chunks: lazymap.NewMutable(normalized(producer)),
	}
}

func zeroChunk(context.Context, uint64) ([]byte, error) {
	return make([]byte, ChunkSize), nil
}

// normalized pads short producer output so every resident chunk is exactly
// ChunkSize bytes.
func normalized(producer ChunkProducer) lazymap.Producer[uint64, []byte] {
	return func(ctx context.Context, index uint64) ([]byte, error) {
		chunk, err := producer(ctx, index)
		if err != nil {
			return nil, err
		}
		if len(chunk) > ChunkSize {
			return nil, fmt.Errorf("%w: produced chunk of %d bytes", ErrOverflow, len(chunk))
		}
		if len(chunk) < ChunkSize {
			padded := make([]byte, ChunkSize)
			copy(padded, chunk)
			chunk = padded
		}
		return chunk, nil
	}
}

// NumNeeded returns the number of chunks required to back [length] bytes.
func NumNeeded(length uint64) uint64 {
	if length == 0 {
		return 0
	}
	return (length-1)/ChunkSize + 1
}

// Length returns the number of addressable bytes.
func (v *Vector) Length() uint64 {
	return v.length
}

// Grow extends the vector by [delta] bytes. Existing chunk contents are
// untouched; new bytes read as zero until written.
func (v *Vector) Grow(delta uint64) error {
	if delta > math.MaxUint64-v.length {
		return ErrOverflow
	}
	v.length += delta
	return nil
}

// LoadByte reads the byte at [index], materializing the owning chunk if it
// is not resident.
func (v *Vector) LoadByte(ctx context.Context, index uint64) (byte, error) {
	if index >= v.length {
		return 0, fmt.Errorf("%w: load at %d, length %d", ErrOutOfBounds, index, v.length)
	}
	chunk, err := v.chunks.Get(ctx, index/ChunkSize)
	if err != nil {
		return 0, err
	}
	return chunk[index%ChunkSize], nil
}

// StoreByte writes [value] at [index] in place. The owning chunk is
// materialized first so that a write to a not-yet-resident page never
// shadows unread data.
func (v *Vector) StoreByte(ctx context.Context, index uint64, value byte) error {
	if index >= v.length {
		return fmt.Errorf("%w: store at %d, length %d", ErrOutOfBounds, index, v.length)
	}
	chunk, err := v.chunks.Get(ctx, index/ChunkSize)
	if err != nil {
		return err
	}
	chunk[index%ChunkSize] = value
	v.chunks.Set(index/ChunkSize, chunk)
	return nil
}

// LoadBytes reads [length] bytes starting at [index], crossing chunk
// boundaries as needed.
func (v *Vector) LoadBytes(ctx context.Context, index uint64, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if err := v.checkRange(index, length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	filled := uint64(0)
	for filled < length {
		at := index + filled
		chunk, err := v.chunks.Get(ctx, at/ChunkSize)
		if err != nil {
			return nil, err
		}
		filled += uint64(copy(buf[filled:], chunk[at%ChunkSize:]))
	}
	return buf, nil
}

// StoreBytes writes [data] starting at [index]. It behaves exactly like
// issuing one StoreByte per byte, including across chunk boundaries.
func (v *Vector) StoreBytes(ctx context.Context, index uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := v.checkRange(index, uint64(len(data))); err != nil {
		return err
	}
	written := uint64(0)
	for written < uint64(len(data)) {
		at := index + written
		chunkIndex := at / ChunkSize
		chunk, err := v.chunks.Get(ctx, chunkIndex)
		if err != nil {
			return err
		}
		written += uint64(copy(chunk[at%ChunkSize:], data[written:]))
		v.chunks.Set(chunkIndex, chunk)
	}
	return nil
}

func (v *Vector) checkRange(index uint64, length uint64) error {
	if index >= v.length || length > v.length-index {
		return fmt.Errorf(
			"%w: access of %d bytes at %d, length %d",
			ErrOutOfBounds, length, index, v.length,
		)
	}
	return nil
}

// LoadedChunks enumerates the resident pages in ascending index order. Only
// these pages need to appear in a tick's proof.
func (v *Vector) LoadedChunks() []lazymap.Binding[uint64, []byte] {
	return v.chunks.LoadedBindings()
}
