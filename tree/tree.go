// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"context"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/maybe"
	"github.com/ava-labs/avalanchego/x/merkledb"
)

// Snapshot is an opaque, content-addressed, immutable view of the durable
// state tree. Mutation always yields a new handle; the receiver remains
// valid and unchanged.
type Snapshot interface {
	// Get returns the value at [path], or Nothing if the path is unbound.
	Get(ctx context.Context, path Path) (maybe.Maybe[[]byte], error)

	// Set returns a new snapshot with [path] bound to [value].
	Set(ctx context.Context, path Path, value []byte) (Snapshot, error)

	// SetMany returns a new snapshot reflecting all of [changes] at once.
	// A Nothing value deletes the path.
	SetMany(ctx context.Context, changes map[Path]maybe.Maybe[[]byte]) (Snapshot, error)

	// Delete returns a new snapshot with [path] unbound.
	Delete(ctx context.Context, path Path) (Snapshot, error)

	// Root returns the commitment hash of the snapshot. Identical contents
	// always yield an identical root.
	Root(ctx context.Context) (ids.ID, error)

	// Prove extracts a Merkle proof for the value at [path].
	Prove(ctx context.Context, path Path) (*merkledb.Proof, error)
}
