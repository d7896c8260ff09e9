// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inbox

// MaxPayloadSize bounds the payload of a single inbox or outbox message.
// Protocol constant.
const MaxPayloadSize = 4096

// Input is one inbox message, tagged with its source classification, the
// level that produced it, and its sequence id within that level.
type Input struct {
	Rtype   uint32
	Level   uint32
	ID      uint32
	Payload []byte
}

// Buffer is a FIFO queue of pending inputs for one level. It is owned by a
// single machine; no locking.
type Buffer struct {
	items []Input
}

func NewBuffer(items ...Input) *Buffer {
	return &Buffer{items: items}
}

func (b *Buffer) Push(input Input) {
	b.items = append(b.items, input)
}

// Peek returns the next pending input without consuming it.
func (b *Buffer) Peek() (Input, bool) {
	if len(b.items) == 0 {
		return Input{}, false
	}
	return b.items[0], true
}

// Pop consumes and returns the next pending input.
func (b *Buffer) Pop() (Input, bool) {
	if len(b.items) == 0 {
		return Input{}, false
	}
	next := b.items[0]
	b.items = b.items[1:]
	return next, true
}

func (b *Buffer) Len() int {
	return len(b.items)
}
