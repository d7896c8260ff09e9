// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lazymap

import (
	"cmp"
	"context"
)

// Mutable wraps [Map] behind in-place updates. It is exclusively owned by
// one module instance and must not be shared across concurrent executions.
type Mutable[K cmp.Ordered, V any] struct {
	inner *Map[K, V]
}

func NewMutable[K cmp.Ordered, V any](producer Producer[K, V]) *Mutable[K, V] {
	return &Mutable[K, V]{inner: New(producer)}
}

func NewMutableFromValues[K cmp.Ordered, V any](values map[K]V, producer Producer[K, V]) *Mutable[K, V] {
	return &Mutable[K, V]{inner: NewFromValues(values, producer)}
}

func (m *Mutable[K, V]) Get(ctx context.Context, key K) (V, error) {
	return m.inner.Get(ctx, key)
}

// Set binds [key] to [value] in place.
func (m *Mutable[K, V]) Set(key K, value V) {
	m.inner.values[key] = value
}

func (m *Mutable[K, V]) Len() int {
	return m.inner.Len()
}

func (m *Mutable[K, V]) LoadedBindings() []Binding[K, V] {
	return m.inner.LoadedBindings()
}
