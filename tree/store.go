// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/trace"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/maybe"
	"github.com/ava-labs/avalanchego/utils/units"
	"github.com/ava-labs/avalanchego/x/merkledb"
	"github.com/prometheus/client_golang/prometheus"

	"go.uber.org/zap"
)

var ErrUncommittableSnapshot = errors.New("snapshot does not descend from this store")

// Config tunes the backing merkledb instance.
type Config struct {
	BranchFactor                merkledb.BranchFactor
	RootGenConcurrency          uint
	HistoryLength               uint
	ValueNodeCacheSize          uint
	IntermediateNodeCacheSize   uint
	IntermediateWriteBufferSize uint
	IntermediateWriteBatchSize  uint
}

func NewConfig() Config {
	return Config{
		BranchFactor:                merkledb.BranchFactor16,
		RootGenConcurrency:          1,
		HistoryLength:               256,
		ValueNodeCacheSize:          units.MiB,
		IntermediateNodeCacheSize:   units.MiB,
		IntermediateWriteBufferSize: units.KiB,
		IntermediateWriteBatchSize:  units.KiB,
	}
}

// Store owns the content-addressed state tree. Snapshots handed out by
// [Base] stack merkledb views on top of it; [Commit] flushes one of them
// back to the database.
type Store struct {
	log logging.Logger
	mdb merkledb.MerkleDB
}

func New(
	ctx context.Context,
	db database.Database,
	reg prometheus.Registerer,
	log logging.Logger,
	cfg Config,
) (*Store, error) {
	mdb, err := merkledb.New(ctx, db, merkledb.Config{
		BranchFactor:                cfg.BranchFactor,
		RootGenConcurrency:          cfg.RootGenConcurrency,
		HistoryLength:               cfg.HistoryLength,
		ValueNodeCacheSize:          cfg.ValueNodeCacheSize,
		IntermediateNodeCacheSize:   cfg.IntermediateNodeCacheSize,
		IntermediateWriteBufferSize: cfg.IntermediateWriteBufferSize,
		IntermediateWriteBatchSize:  cfg.IntermediateWriteBatchSize,
		Reg:                         reg,
		TraceLevel:                  merkledb.InfoTrace,
		Tracer:                      trace.Noop,
	})
	if err != nil {
		return nil, fmt.Errorf("creating merkledb: %w", err)
	}
	return &Store{log: log, mdb: mdb}, nil
}

// Base returns a snapshot of the committed tree.
func (s *Store) Base() Snapshot {
	return &snapshot{trie: s.mdb}
}

// Commit persists [snap] and all its ancestors to the database.
func (s *Store) Commit(ctx context.Context, snap Snapshot) error {
	inner, ok := snap.(*snapshot)
	if !ok {
		return ErrUncommittableSnapshot
	}
	view, ok := inner.trie.(merkledb.View)
	if !ok {
		// the base snapshot, nothing pending
		return nil
	}
	root, err := view.GetMerkleRoot(ctx)
	if err != nil {
		return err
	}
	if err := view.CommitToDB(ctx); err != nil {
		return err
	}
	s.log.Debug("committed state tree",
		zap.Stringer("root", root),
	)
	return nil
}

func (s *Store) Close() error {
	return s.mdb.Close()
}

type snapshot struct {
	trie merkledb.Trie
}

func (s *snapshot) Get(ctx context.Context, path Path) (maybe.Maybe[[]byte], error) {
	if err := Valid(path); err != nil {
		return maybe.Nothing[[]byte](), err
	}
	value, err := s.trie.GetValue(ctx, []byte(path))
	if errors.Is(err, database.ErrNotFound) {
		return maybe.Nothing[[]byte](), nil
	}
	if err != nil {
		return maybe.Nothing[[]byte](), err
	}
	return maybe.Some(value), nil
}

func (s *snapshot) Set(ctx context.Context, path Path, value []byte) (Snapshot, error) {
	return s.SetMany(ctx, map[Path]maybe.Maybe[[]byte]{path: maybe.Some(value)})
}

func (s *snapshot) Delete(ctx context.Context, path Path) (Snapshot, error) {
	return s.SetMany(ctx, map[Path]maybe.Maybe[[]byte]{path: maybe.Nothing[[]byte]()})
}

func (s *snapshot) SetMany(ctx context.Context, changes map[Path]maybe.Maybe[[]byte]) (Snapshot, error) {
	mapOps := make(map[string]maybe.Maybe[[]byte], len(changes))
	for path, value := range changes {
		if err := Valid(path); err != nil {
			return nil, err
		}
		mapOps[string(path)] = value
	}
	view, err := s.trie.NewView(ctx, merkledb.ViewChanges{MapOps: mapOps})
	if err != nil {
		return nil, err
	}
	return &snapshot{trie: view}, nil
}

func (s *snapshot) Root(ctx context.Context) (ids.ID, error) {
	return s.trie.GetMerkleRoot(ctx)
}

func (s *snapshot) Prove(ctx context.Context, path Path) (*merkledb.Proof, error) {
	return s.trie.GetProof(ctx, []byte(path))
}
