// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollup

import (
	"context"
	"encoding/binary"

	"github.com/ava-labs/avalanchego/utils/maybe"
	"golang.org/x/sync/errgroup"
)

// StatesOfTicks reconstructs several disputed ticks of [level] in
// parallel. Each reconstruction runs on its own machine; the replays share
// only the immutable tree and the stepper, which supports concurrent
// Steps, so this respects the one-machine-per-execution ownership rule.
func (d *Driver) StatesOfTicks(
	ctx context.Context,
	node NodeContext,
	ticks []uint64,
	level uint64,
) ([]maybe.Maybe[*Result], error) {
	results := make([]maybe.Maybe[*Result], len(ticks))
	eg, egctx := errgroup.WithContext(ctx)
	for i, tick := range ticks {
		i, tick := i, tick
		eg.Go(func() error {
			result, err := d.StateOfTick(egctx, node, tick, level)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func packLevel(level uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, level)
	return buf
}
