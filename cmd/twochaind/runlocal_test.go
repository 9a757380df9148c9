// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestChoiceValue(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChoiceValue(liveness.RotatingElection, liveness.WeightedElection)
	require.Equal(t, liveness.RotatingElection, c.String())
	require.False(t, c.isSet)
	require.Error(t, c.Set("random"))
	require.NoError(t, c.Set(liveness.WeightedElection))
	require.Equal(t, liveness.WeightedElection, c.String())
	require.True(t, c.isSet)
}

func TestRunLocalLocksDataDir(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	held := flock.New(filepath.Join(dir, lockFilename))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	err = runLocal(context.Background(), dir)
	require.ErrorContains(t, err, "in use")
	require.NoError(t, held.Unlock())
}

func TestRunLocalStopsOnCancel(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runLocal(ctx, dir))
	require.DirExists(t, filepath.Join(dir, "node-0"))

	// the lock is released on return
	lock := flock.New(filepath.Join(dir, lockFilename))
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	require.NoError(t, lock.Unlock())
}
