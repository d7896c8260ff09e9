// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vector

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNumNeeded(t *testing.T) {
	tests := []struct {
		length   uint64
		expected uint64
	}{
		{0, 0},
		{1, 1},
		{ChunkSize - 1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{2 * ChunkSize, 2},
		{2*ChunkSize + 1, 3},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, NumNeeded(tt.length), "NumNeeded(%d)", tt.length)
	}
}

func TestNewReadsZero(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(ChunkSize + 100)
	require.Equal(uint64(ChunkSize+100), v.Length())

	for _, index := range []uint64{0, ChunkSize - 1, ChunkSize, ChunkSize + 99} {
		b, err := v.LoadByte(ctx, index)
		require.NoError(err)
		require.Zero(b)
	}

	_, err := v.LoadByte(ctx, ChunkSize+100)
	require.ErrorIs(err, ErrOutOfBounds)
}

func TestStoreByteBounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(10)
	require.NoError(v.StoreByte(ctx, 9, 0xff))
	require.ErrorIs(v.StoreByte(ctx, 10, 0xff), ErrOutOfBounds)

	b, err := v.LoadByte(ctx, 9)
	require.NoError(err)
	require.Equal(byte(0xff), b)
}

func TestBulkStoreMatchesByteStores(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	// straddle a chunk boundary to catch off-by-one bulk writes
	offset := uint64(ChunkSize - 37)
	data := []byte(strings.Repeat("0123456789", 20))

	bulk := New(3 * ChunkSize)
	require.NoError(bulk.StoreBytes(ctx, offset, data))

	single := New(3 * ChunkSize)
	for i, b := range data {
		require.NoError(single.StoreByte(ctx, offset+uint64(i), b))
	}

	got, err := bulk.LoadBytes(ctx, 0, 3*ChunkSize)
	require.NoError(err)
	want, err := single.LoadBytes(ctx, 0, 3*ChunkSize)
	require.NoError(err)
	require.True(bytes.Equal(got, want), "bulk and single-byte stores diverged")
}

func TestStoreBytesBounds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(100)
	require.ErrorIs(v.StoreBytes(ctx, 96, []byte("hello")), ErrOutOfBounds)
	require.ErrorIs(v.StoreBytes(ctx, 100, []byte("h")), ErrOutOfBounds)
	require.NoError(v.StoreBytes(ctx, 95, []byte("hello")))
	require.NoError(v.StoreBytes(ctx, 0, nil))
}

func TestGrowPreservesContents(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(ChunkSize - 100)
	fill := bytes.Repeat([]byte{'a'}, ChunkSize-100)
	require.NoError(v.StoreBytes(ctx, 0, fill))

	require.NoError(v.Grow(1000))
	require.Equal(uint64(ChunkSize+900), v.Length())

	// write across the previous end of memory
	msg := []byte(strings.Repeat("z", 100) + "Hello" + strings.Repeat("w", 100))
	require.NoError(v.StoreBytes(ctx, ChunkSize-100, msg))

	b, err := v.LoadByte(ctx, 0)
	require.NoError(err)
	require.Equal(byte('a'), b)

	b, err = v.LoadByte(ctx, ChunkSize-100)
	require.NoError(err)
	require.Equal(msg[0], b)

	// 200 bytes into the message lands past the old chunk boundary
	b, err = v.LoadByte(ctx, ChunkSize+100)
	require.NoError(err)
	require.Equal(msg[200], b)

	b, err = v.LoadByte(ctx, ChunkSize-101)
	require.NoError(err)
	require.Equal(byte('a'), b)
}

func TestProducerBacksAbsentChunks(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	produced := 0
	v := New(2*ChunkSize, WithProducer(func(_ context.Context, index uint64) ([]byte, error) {
		produced++
		chunk := make([]byte, ChunkSize)
		for i := range chunk {
			chunk[i] = byte(index + 1)
		}
		return chunk, nil
	}))

	b, err := v.LoadByte(ctx, 10)
	require.NoError(err)
	require.Equal(byte(1), b)

	b, err = v.LoadByte(ctx, ChunkSize+10)
	require.NoError(err)
	require.Equal(byte(2), b)

	// reads within materialized chunks do not re-produce
	_, err = v.LoadByte(ctx, 20)
	require.NoError(err)
	require.Equal(2, produced)
}

func TestProducerShortChunkPadded(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(ChunkSize, WithProducer(func(context.Context, uint64) ([]byte, error) {
		return []byte{0xaa, 0xbb}, nil
	}))

	got, err := v.LoadBytes(ctx, 0, 4)
	require.NoError(err)
	require.Equal([]byte{0xaa, 0xbb, 0, 0}, got)
}

func TestLoadedChunksScoped(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	v := New(4 * ChunkSize)
	require.Empty(v.LoadedChunks())

	require.NoError(v.StoreByte(ctx, 3*ChunkSize, 1))
	require.NoError(v.StoreByte(ctx, 0, 1))

	loaded := v.LoadedChunks()
	require.Len(loaded, 2)
	require.Equal(uint64(0), loaded[0].Key)
	require.Equal(uint64(3), loaded[1].Key)
}
