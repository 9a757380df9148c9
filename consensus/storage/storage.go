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

// Package storage persists the consensus state a validator needs after a
// restart: its last vote, the highest timeout certificate it has seen, and
// its safety data. Everything lives in one sqlite database.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
	"github.com/algorand/go-twochain/util/db"
)

const (
	keyLastVote  = "lastvote"
	keyHighestTC = "highesttc"
	keySafety    = "safety"
)

var errCorruptRecord = errors.New("corrupt consensus record")

var migrations = []db.Migration{
	func(tx *sql.Tx) error {
		_, err := tx.Exec("create table ConsensusState (key text primary key, data blob)")
		return err
	},
}

// RecoveryData is what a restarting node reloads before rejoining.
type RecoveryData struct {
	LastVote           *types.Vote
	HighestTimeoutCert *types.TwoChainTimeoutCertificate
}

// Store is a sqlite backed liveness and safety store.
type Store struct {
	acc db.Accessor
	log logging.Logger
}

// Open opens (or creates) the store at filename. inMemory databases are
// shared by name within the process.
func Open(filename string, inMemory bool, log logging.Logger) (*Store, error) {
	acc, err := db.MakeAccessor(filename, false, inMemory)
	if err != nil {
		return nil, fmt.Errorf("opening consensus store %s: %w", filename, err)
	}
	if err := acc.Migrate("consensus store schema", migrations); err != nil {
		acc.Close()
		return nil, err
	}
	return &Store{acc: acc, log: log}, nil
}

// Close releases the database.
func (s *Store) Close() {
	s.acc.Close()
}

func (s *Store) put(key string, raw []byte) error {
	return s.acc.Atomic("put "+key, func(tx *sql.Tx) error {
		_, err := tx.Exec("insert or replace into ConsensusState (key, data) values (?, ?)", key, raw)
		return err
	})
}

func (s *Store) del(key string) error {
	return s.acc.Atomic("delete "+key, func(tx *sql.Tx) error {
		_, err := tx.Exec("delete from ConsensusState where key = ?", key)
		return err
	})
}

// get returns nil without error when key is absent.
func (s *Store) get(key string) (raw []byte, err error) {
	err = s.acc.Atomic("get "+key, func(tx *sql.Tx) error {
		err := tx.QueryRow("select data from ConsensusState where key = ?", key).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			raw = nil
			return nil
		}
		return err
	})
	return
}

// SaveVote durably records v as the last vote cast.
func (s *Store) SaveVote(v types.Vote) error {
	return s.put(keyLastVote, protocol.EncodeReflect(v))
}

// SaveHighestTimeoutCert durably records tc.
func (s *Store) SaveHighestTimeoutCert(tc *types.TwoChainTimeoutCertificate) error {
	if tc == nil {
		return s.del(keyHighestTC)
	}
	return s.put(keyHighestTC, protocol.EncodeReflect(tc))
}

// RecoveryData loads the last vote and highest timeout certificate. Either
// may be nil on a fresh store. Unreadable records are dropped with a
// warning rather than blocking startup.
func (s *Store) RecoveryData() (RecoveryData, error) {
	var rd RecoveryData

	raw, err := s.get(keyLastVote)
	if err != nil {
		return rd, err
	}
	if raw != nil {
		var v types.Vote
		if err := protocol.DecodeReflect(raw, &v); err != nil {
			s.log.Warnf("dropping last vote: %v: %v", errCorruptRecord, err)
			if err := s.del(keyLastVote); err != nil {
				return rd, err
			}
		} else {
			rd.LastVote = &v
		}
	}

	raw, err = s.get(keyHighestTC)
	if err != nil {
		return rd, err
	}
	if raw != nil {
		var tc types.TwoChainTimeoutCertificate
		if err := protocol.DecodeReflect(raw, &tc); err != nil {
			s.log.Warnf("dropping highest timeout cert: %v: %v", errCorruptRecord, err)
			if err := s.del(keyHighestTC); err != nil {
				return rd, err
			}
		} else {
			rd.HighestTimeoutCert = &tc
		}
	}
	return rd, nil
}

// SafetyData implements safety.Storage. A fresh store yields zero data.
func (s *Store) SafetyData() (safety.SafetyData, error) {
	var data safety.SafetyData
	raw, err := s.get(keySafety)
	if err != nil || raw == nil {
		return data, err
	}
	if err := protocol.DecodeReflect(raw, &data); err != nil {
		return data, fmt.Errorf("%w: safety data: %v", errCorruptRecord, err)
	}
	return data, nil
}

// SetSafetyData implements safety.Storage.
func (s *Store) SetSafetyData(data safety.SafetyData) error {
	return s.put(keySafety, protocol.EncodeReflect(data))
}
