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

package basics

// Round is a logical-time slot of the consensus protocol. At most one block
// per round is certified on the canonical chain.
type Round uint64

// Epoch numbers a validator-set configuration.
type Epoch uint64

// Next returns the round after r.
func (r Round) Next() Round {
	return r + 1
}

// SubSaturate subtracts x rounds, stopping at zero.
func (r Round) SubSaturate(x Round) Round {
	if x > r {
		return 0
	}
	return r - x
}

// MaxRound returns the larger of two rounds.
func MaxRound(a, b Round) Round {
	if a > b {
		return a
	}
	return b
}
