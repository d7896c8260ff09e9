// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lazymap

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrUnexpectedAccess is returned when a key is absent and no producer was
// configured. Hitting it means the caller accessed a key that should already
// have been resident, which is a bug in the engine, not a runtime condition.
var ErrUnexpectedAccess = errors.New("unexpected access to lazy map")

// Producer materializes the value bound to [key] on first access. Producers
// backed by a remote tree store may block on [ctx]; in-memory producers
// ignore it. A producer must be deterministic: the same key always yields
// the same value.
type Producer[K cmp.Ordered, V any] func(ctx context.Context, key K) (V, error)

// Binding is a single materialized (key, value) pair.
type Binding[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Map memoizes values produced per key. Once a key is materialized it is
// never re-produced unless overwritten via [Set].
//
// [Set] is persistent: it returns a new Map and leaves the receiver
// untouched. Use [Mutable] for in-place updates.
type Map[K cmp.Ordered, V any] struct {
	producer Producer[K, V]
	values   map[K]V
}

// New creates an empty map whose absent keys are materialized by [producer].
// A nil producer is allowed; any access to an absent key then fails with
// [ErrUnexpectedAccess].
func New[K cmp.Ordered, V any](producer Producer[K, V]) *Map[K, V] {
	return NewFromValues(nil, producer)
}

// NewFromValues creates a map pre-populated with [values]. The map takes
// ownership of the given map.
func NewFromValues[K cmp.Ordered, V any](values map[K]V, producer Producer[K, V]) *Map[K, V] {
	if values == nil {
		values = make(map[K]V)
	}
	return &Map[K, V]{
		producer: producer,
		values:   values,
	}
}

// Get returns the value bound to [key], invoking the producer if the key has
// not been materialized yet. The producer is invoked at most once per key.
func (m *Map[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := m.values[key]; ok {
		return value, nil
	}
	if m.producer == nil {
		var zero V
		return zero, fmt.Errorf("%w: key %v", ErrUnexpectedAccess, key)
	}
	value, err := m.producer(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	m.values[key] = value
	return value, nil
}

// Set returns a new map with [key] bound to [value]. The receiver is left
// unchanged.
func (m *Map[K, V]) Set(key K, value V) *Map[K, V] {
	values := maps.Clone(m.values)
	values[key] = value
	return &Map[K, V]{
		producer: m.producer,
		values:   values,
	}
}

// Len returns the number of materialized entries.
func (m *Map[K, V]) Len() int {
	return len(m.values)
}

// LoadedBindings enumerates the materialized entries in ascending key order.
// Keys that were never accessed are not included, which scopes proof
// construction to exactly the state touched so far.
func (m *Map[K, V]) LoadedBindings() []Binding[K, V] {
	ks := maps.Keys(m.values)
	slices.Sort(ks)
	bindings := make([]Binding[K, V], len(ks))
	for i, k := range ks {
		bindings[i] = Binding[K, V]{Key: k, Value: m.values[k]}
	}
	return bindings
}
