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

package protocol

// HashID is a domain separation prefix for an object type that might be hashed
// This ensures, for example, the hash of a block will never collide with the hash of a vote
type HashID string

// Hash IDs for specific object types, in lexicographic order to avoid dups.
const (
	BlockData       HashID = "BD"
	BlockInfo       HashID = "BI"
	BlockSig        HashID = "BS"
	BatchInfo       HashID = "BT"
	ExecutedState   HashID = "ES"
	FastShare       HashID = "FS"
	LedgerInfo      HashID = "LI"
	OptBlockData    HashID = "OB"
	PayloadBatch    HashID = "PB"
	PublicKeyAddr   HashID = "PK"
	ProposerSeed    HashID = "PS"
	RoundTimeout    HashID = "RT"
	TestHashable    HashID = "TE"
	TwoChainTimeout HashID = "TT"
	VoteData        HashID = "VD"
	ValidatorTxn    HashID = "VT"
)
