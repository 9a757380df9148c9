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

package safety

import (
	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
)

// SafetyData is the durable voting state of one validator.
type SafetyData struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch               basics.Epoch `codec:"e"`
	LastVotedRound      basics.Round `codec:"lvr"`
	PreferredRound      basics.Round `codec:"pr"`
	OneChainRound       basics.Round `codec:"ocr"`
	HighestTimeoutRound basics.Round `codec:"htr"`
	LastVote            *types.Vote  `codec:"lv"`
}

// Storage persists SafetyData. SetSafetyData must be durable before it
// returns.
type Storage interface {
	SafetyData() (SafetyData, error)
	SetSafetyData(SafetyData) error
}

// MemoryStorage keeps SafetyData in memory. It survives nothing and is
// meant for tests and throwaway local networks.
type MemoryStorage struct {
	mu   deadlock.Mutex
	data SafetyData
}

// SafetyData implements Storage.
func (m *MemoryStorage) SafetyData() (SafetyData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

// SetSafetyData implements Storage.
func (m *MemoryStorage) SetSafetyData(d SafetyData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = d
	return nil
}
