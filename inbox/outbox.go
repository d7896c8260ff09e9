// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package inbox

// Outbox accumulates messages produced by the guest during a level. Drained
// into durable storage after the level is processed.
type Outbox struct {
	messages [][]byte
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Push(message []byte) {
	o.messages = append(o.messages, message)
}

func (o *Outbox) Len() int {
	return len(o.messages)
}

// Messages returns the accumulated messages in production order.
func (o *Outbox) Messages() [][]byte {
	return o.messages
}

// Drain returns the accumulated messages and resets the outbox.
func (o *Outbox) Drain() [][]byte {
	drained := o.messages
	o.messages = nil
	return drained
}
