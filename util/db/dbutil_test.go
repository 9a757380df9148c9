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

package db

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestInMemoryDisposal(t *testing.T) {
	partitiontest.PartitionTest(t)

	acc, err := MakeAccessor(t.Name()+".db", false, true)
	require.NoError(t, err)
	err = acc.Atomic("create", func(tx *sql.Tx) error {
		_, err := tx.Exec("create table Service (data blob)")
		return err
	})
	require.NoError(t, err)

	err = acc.Atomic("insert", func(tx *sql.Tx) error {
		_, err := tx.Exec("insert or replace into Service (rowid, data) values (1, ?)", []byte{0, 1, 2})
		return err
	})
	require.NoError(t, err)

	anotherAcc, err := MakeAccessor(t.Name()+".db", false, true)
	require.NoError(t, err)
	err = anotherAcc.Atomic("count", func(tx *sql.Tx) error {
		var nrows int
		return tx.QueryRow("select count(*) from Service").Scan(&nrows)
	})
	require.NoError(t, err)
	anotherAcc.Close()
	acc.Close()

	acc, err = MakeAccessor(t.Name()+".db", false, true)
	require.NoError(t, err)
	defer acc.Close()
	err = acc.Atomic("count", func(tx *sql.Tx) error {
		var nrows int
		if tx.QueryRow("select count(*) from Service").Scan(&nrows) == nil {
			return errors.New("table `Service` presents while it should not")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAtomicRollback(t *testing.T) {
	partitiontest.PartitionTest(t)

	acc, err := MakeAccessor(filepath.Join(t.TempDir(), "rollback.sqlite"), false, false)
	require.NoError(t, err)
	defer acc.Close()

	require.NoError(t, acc.Atomic("create", func(tx *sql.Tx) error {
		_, err := tx.Exec("create table kv (k text primary key, v blob)")
		return err
	}))

	boom := errors.New("boom")
	err = acc.Atomic("failing", func(tx *sql.Tx) error {
		if _, err := tx.Exec("insert into kv (k, v) values ('a', x'01')"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = acc.Atomic("panicking", func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.ErrorContains(t, err, "unexpected")

	var n int
	require.NoError(t, acc.Atomic("count", func(tx *sql.Tx) error {
		return tx.QueryRow("select count(*) from kv").Scan(&n)
	}))
	require.Zero(t, n)
}

func TestURI(t *testing.T) {
	partitiontest.PartitionTest(t)

	require.Contains(t, URI("x.db", false, false), "_txlock=immediate")
	require.NotContains(t, URI("x.db", true, false), "_txlock")
	require.Contains(t, URI("x.db", false, true), "mode=memory")
}

func TestMigrate(t *testing.T) {
	partitiontest.PartitionTest(t)

	path := filepath.Join(t.TempDir(), "migrate.sqlite")
	acc, err := MakeAccessor(path, false, false)
	require.NoError(t, err)

	first := []Migration{
		func(tx *sql.Tx) error {
			_, err := tx.Exec("create table kv (k text primary key, v blob)")
			return err
		},
	}
	require.NoError(t, acc.Migrate("schema", first))
	// applied migrations are not run again
	require.NoError(t, acc.Migrate("schema", first))

	second := append(first, func(tx *sql.Tx) error {
		_, err := tx.Exec("alter table kv add column updated integer")
		return err
	})
	require.NoError(t, acc.Migrate("schema", second))
	require.NoError(t, acc.Atomic("version", func(tx *sql.Tx) error {
		v, err := SchemaVersion(tx)
		require.Equal(t, 2, v)
		return err
	}))
	acc.Close()

	acc, err = MakeAccessor(path, false, false)
	require.NoError(t, err)
	defer acc.Close()
	require.ErrorContains(t, acc.Migrate("schema", first), "newer than this binary")

	broken := append(second, func(tx *sql.Tx) error {
		_, err := tx.Exec("create table kv (k text)")
		return err
	})
	require.ErrorContains(t, acc.Migrate("schema", broken), "migrating to version 3")
}
