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

package kvstore

import (
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
)

func init() {
	kvImpls["pebble"] = pebbleDBFactory{}
	kvImpls["pebbledb"] = pebbleDBFactory{}
}

type pebbleDBFactory struct{}

func (pebbleDBFactory) New(dbdir string, inMem bool) (KVStore, error) {
	return NewPebbleDB(dbdir, inMem)
}

const (
	pebbleCacheSize    = 32 << 20
	pebbleMemTableSize = 8 << 20
	pebbleLevels       = 7
)

// pebbleOptions sizes pebble for a block tree: a few thousand values of up
// to a few megabytes, written once and deleted on pruning. Values arrive
// already compressed.
func pebbleOptions(cache *pebble.Cache, inMem bool) *pebble.Options {
	opts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                pebbleMemTableSize,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       64,
		LBaseMaxBytes:               32 << 20,
		MaxConcurrentCompactions:    func() int { return 1 },
		Levels:                      make([]pebble.LevelOptions, pebbleLevels),
	}
	for i := range opts.Levels {
		l := &opts.Levels[i]
		l.BlockSize = 64 << 10
		l.Compression = pebble.NoCompression
		if i < pebbleLevels-1 {
			l.FilterPolicy = bloom.FilterPolicy(10)
			l.FilterType = pebble.TableFilter
		}
		if i > 0 {
			l.TargetFileSize = opts.Levels[i-1].TargetFileSize * 2
		}
		l.EnsureDefaults()
	}
	if inMem {
		opts.FS = vfs.NewMem()
	}
	return opts
}

// PebbleDB implements KVStore on a pebble database.
type PebbleDB struct {
	Pdb *pebble.DB
	wo  *pebble.WriteOptions
}

// NewPebbleDB opens or creates a pebble database in dbdir. Writes are
// synced unless the database is in memory.
func NewPebbleDB(dbdir string, inMem bool) (*PebbleDB, error) {
	cache := pebble.NewCache(pebbleCacheSize)
	defer cache.Unref()
	db, err := pebble.Open(dbdir, pebbleOptions(cache, inMem))
	if err != nil {
		return nil, err
	}
	return &PebbleDB{Pdb: db, wo: &pebble.WriteOptions{Sync: !inMem}}, nil
}

// Close implements KVStore.
func (db *PebbleDB) Close() error { return db.Pdb.Close() }

// Get returns a copy of the value stored under key.
func (db *PebbleDB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.Pdb.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// Set implements KVStore.
func (db *PebbleDB) Set(key, value []byte) error { return db.Pdb.Set(key, value, db.wo) }

// Delete implements KVStore.
func (db *PebbleDB) Delete(key []byte) error { return db.Pdb.Delete(key, db.wo) }

// NewBatch implements KVStore. Nothing is visible until Commit.
func (db *PebbleDB) NewBatch() BatchWriter { return &pebbleBatch{b: db.Pdb.NewBatch(), wo: db.wo} }

type pebbleBatch struct {
	b  *pebble.Batch
	wo *pebble.WriteOptions
}

func (b *pebbleBatch) Set(key, value []byte) error { return b.b.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte) error     { return b.b.Delete(key, nil) }
func (b *pebbleBatch) Commit() error               { return b.b.Commit(b.wo) }
func (b *pebbleBatch) Cancel()                     { b.b.Close() }

// NewIterator walks keys in [start, end) in order. A nil bound is open.
func (db *PebbleDB) NewIterator(start, end []byte) Iterator {
	it := db.Pdb.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	it.First()
	return pebbleIterator{it}
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (i pebbleIterator) Next()       { i.it.Next() }
func (i pebbleIterator) Valid() bool { return i.it.Valid() }
func (i pebbleIterator) Close()      { i.it.Close() }
func (i pebbleIterator) Key() []byte { return append([]byte(nil), i.it.Key()...) }

func (i pebbleIterator) Value() ([]byte, error) {
	return append([]byte(nil), i.it.Value()...), nil
}
