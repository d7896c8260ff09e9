// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fuel

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned by an accounted meter once its budget is spent.
var ErrExhausted = errors.New("fuel exhausted")

// Meter charges execution work against a budget. One unit corresponds to
// one tick of the interpreter.
type Meter interface {
	// Consume charges [units] of work. An accounted meter fails with
	// [ErrExhausted] once the budget is reached; a free meter never fails.
	Consume(units uint64) error

	// Consumed returns the total units charged so far.
	Consumed() uint64
}

var (
	_ Meter = (*Accounted)(nil)
	_ Meter = (*Free)(nil)
)

// Accounted meters against a fixed budget, the on-chain gas-like allowance
// charged to the committer.
type Accounted struct {
	budget   uint64
	consumed uint64
}

func NewAccounted(budget uint64) *Accounted {
	return &Accounted{budget: budget}
}

func (m *Accounted) Consume(units uint64) error {
	if units > m.budget-m.consumed {
		return fmt.Errorf("%w: budget %d, consumed %d, requested %d",
			ErrExhausted, m.budget, m.consumed, units)
	}
	m.consumed += units
	return nil
}

func (m *Accounted) Consumed() uint64 {
	return m.consumed
}

func (m *Accounted) Remaining() uint64 {
	return m.budget - m.consumed
}

// Free is unmetered fuel for non-consensus execution such as node-side
// read-only queries. It still counts work so ticks stay comparable.
type Free struct {
	consumed uint64
}

func NewFree() *Free {
	return &Free{}
}

func (m *Free) Consume(units uint64) error {
	m.consumed += units
	return nil
}

func (m *Free) Consumed() uint64 {
	return m.consumed
}
