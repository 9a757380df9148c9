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

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestCyclicWrite(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	live, archive := filepath.Join(dir, "node.log"), filepath.Join(dir, "node.archive.log")
	w, err := MakeCyclicFileWriter(live, archive, 1024)
	require.NoError(t, err)
	defer w.Close()

	first := bytes.Repeat([]byte{'A'}, 1024)
	n, err := w.Write(first)
	require.NoError(t, err)
	require.Equal(t, len(first), n)

	n, err = w.Write([]byte{'B'})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	data, err := os.ReadFile(live)
	require.NoError(t, err)
	require.Equal(t, []byte{'B'}, data)
	data, err = os.ReadFile(archive)
	require.NoError(t, err)
	require.Equal(t, first, data)

	_, err = w.Write(make([]byte, 1025))
	require.Error(t, err)
}

func TestCyclicWriteResumes(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	live, archive := filepath.Join(dir, "node.log"), filepath.Join(dir, "node.archive.log")
	require.NoError(t, os.WriteFile(live, bytes.Repeat([]byte{'A'}, 10), 0644))

	w, err := MakeCyclicFileWriter(live, archive, 16)
	require.NoError(t, err)
	_, err = w.Write([]byte("12345"))
	require.NoError(t, err)
	_, err = w.Write([]byte("6"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(live)
	require.NoError(t, err)
	require.Equal(t, "AAAAAAAAAA123456", string(data))
	require.NoFileExists(t, archive)
}
